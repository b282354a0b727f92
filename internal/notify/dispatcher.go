package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	CategoryChatMessage = "chat_message"
	DefaultPreviewLen   = 100
)

// PushRequest is what the push-delivery endpoint receives.
type PushRequest struct {
	Title        string   `json:"title"`
	Body         string   `json:"body"`
	TargetURL    string   `json:"targetUrl"`
	RecipientIDs []string `json:"recipientIds"`
	Category     string   `json:"category"`
}

type Rooms interface {
	Get(ctx context.Context, id string) (*domain.Room, error)
}

type Members interface {
	ListByRoom(ctx context.Context, roomID string) ([]domain.Membership, error)
}

type Profiles interface {
	GetMany(ctx context.Context, ids []string) (map[string]*domain.Profile, error)
}

type Inbox interface {
	InsertMany(ctx context.Context, list []domain.Notification) error
}

type Pusher interface {
	Push(ctx context.Context, req PushRequest) error
}

type Config struct {
	PreviewLen  int
	PushTimeout time.Duration
}

// Dispatcher fans a sent message out to its recipients as push requests and
// in-app notifications. It never fails the send: every error is logged and counted.
type Dispatcher struct {
	rooms    Rooms
	members  Members
	profiles Profiles
	inbox    Inbox
	pusher   Pusher
	breaker  *CircuitBreaker
	cfg      Config
	log      *slog.Logger

	outcomes     metric.Int64Counter
	pushDuration metric.Float64Histogram
}

func NewDispatcher(rooms Rooms, members Members, profiles Profiles, inbox Inbox, pusher Pusher, breaker *CircuitBreaker, cfg Config, log *slog.Logger) *Dispatcher {
	if cfg.PreviewLen <= 0 {
		cfg.PreviewLen = DefaultPreviewLen
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 3 * time.Second
	}
	meter := otel.Meter("chat-service")
	outcomes, _ := meter.Int64Counter("chat_notifications_total",
		metric.WithDescription("Notification deliveries by stage and outcome"))
	pushDuration, _ := meter.Float64Histogram("chat_push_duration_seconds",
		metric.WithDescription("Push delivery request latency"))

	return &Dispatcher{
		rooms:        rooms,
		members:      members,
		profiles:     profiles,
		inbox:        inbox,
		pusher:       pusher,
		breaker:      breaker,
		cfg:          cfg,
		log:          log,
		outcomes:     outcomes,
		pushDuration: pushDuration,
	}
}

func (d *Dispatcher) MessageSent(ctx context.Context, m domain.Message, recipientIDs []string) {
	recipients := lo.Uniq(lo.Filter(recipientIDs, func(id string, _ int) bool {
		return id != "" && id != m.SenderID
	}))
	if len(recipients) == 0 {
		return
	}
	recipients = d.inRoom(ctx, m.RoomID, recipients)
	if len(recipients) == 0 {
		return
	}

	var room *domain.Room
	if r, err := d.rooms.Get(ctx, m.RoomID); err != nil {
		d.log.WarnContext(ctx, "notification room lookup failed", slog.String("room_id", m.RoomID), slog.Any("err", err))
	} else {
		room = r
	}

	var sender *domain.Profile
	if ps, err := d.profiles.GetMany(ctx, []string{m.SenderID}); err != nil {
		d.log.WarnContext(ctx, "notification sender lookup failed", slog.String("sender_id", m.SenderID), slog.Any("err", err))
	} else {
		sender = ps[m.SenderID]
	}

	req := Compose(room, sender.Name(), m, recipients, d.cfg.PreviewLen)
	d.push(ctx, req)
	d.store(ctx, req)
}

// inRoom keeps the recipients that belong to the room. Without a membership
// list nobody is notified.
func (d *Dispatcher) inRoom(ctx context.Context, roomID string, ids []string) []string {
	list, err := d.members.ListByRoom(ctx, roomID)
	if err != nil {
		d.count(ctx, "recipients", "error")
		d.log.WarnContext(ctx, "notification member lookup failed", slog.String("room_id", roomID), slog.Any("err", err))
		return nil
	}
	member := lo.SliceToMap(list, func(m domain.Membership) (string, struct{}) { return m.UserID, struct{}{} })
	kept := lo.Filter(ids, func(id string, _ int) bool {
		_, ok := member[id]
		return ok
	})
	if dropped := len(ids) - len(kept); dropped > 0 {
		d.log.DebugContext(ctx, "dropped recipients outside the room",
			slog.String("room_id", roomID), slog.Int("dropped", dropped))
	}
	return kept
}

func (d *Dispatcher) push(ctx context.Context, req PushRequest) {
	if d.pusher == nil {
		return
	}
	if d.breaker != nil && !d.breaker.Allow() {
		d.count(ctx, "push", "skipped")
		d.log.DebugContext(ctx, "push skipped, circuit open")
		return
	}

	pctx, cancel := context.WithTimeout(ctx, d.cfg.PushTimeout)
	defer cancel()

	start := time.Now()
	err := d.pusher.Push(pctx, req)
	if d.pushDuration != nil {
		d.pushDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		if d.breaker != nil {
			d.breaker.RecordFailure()
		}
		d.count(ctx, "push", "failed")
		d.log.WarnContext(ctx, "push delivery failed",
			slog.Int("recipients", len(req.RecipientIDs)), slog.Any("err", err))
		return
	}
	if d.breaker != nil {
		d.breaker.RecordSuccess()
	}
	d.count(ctx, "push", "sent")
}

func (d *Dispatcher) store(ctx context.Context, req PushRequest) {
	if d.inbox == nil {
		return
	}
	list := lo.Map(req.RecipientIDs, func(id string, _ int) domain.Notification {
		return domain.Notification{
			UserID:    id,
			Title:     req.Title,
			Body:      req.Body,
			TargetURL: req.TargetURL,
			Category:  req.Category,
		}
	})
	if err := d.inbox.InsertMany(ctx, list); err != nil {
		d.count(ctx, "inbox", "failed")
		d.log.WarnContext(ctx, "in-app notifications not stored", slog.Any("err", err))
		return
	}
	d.count(ctx, "inbox", "sent")
}

func (d *Dispatcher) count(ctx context.Context, stage, outcome string) {
	if d.outcomes == nil {
		return
	}
	d.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}

// Compose builds the push payload. room may be nil when it could not be loaded.
func Compose(room *domain.Room, senderName string, m domain.Message, recipients []string, previewLen int) PushRequest {
	title := "New message from " + senderName
	if room != nil && room.Kind == domain.RoomKindGroup && strings.TrimSpace(room.Name) != "" {
		title = senderName + " in " + room.Name
	}
	return PushRequest{
		Title:        title,
		Body:         Preview(m, previewLen),
		TargetURL:    "/chat/" + m.RoomID,
		RecipientIDs: recipients,
		Category:     CategoryChatMessage,
	}
}

func Preview(m domain.Message, limit int) string {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		switch m.Kind {
		case domain.MessageKindImage:
			return "Sent a photo"
		case domain.MessageKindFile:
			return "Sent a file"
		case domain.MessageKindVoice:
			return "Sent a voice message"
		default:
			return "Sent a message"
		}
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "…"
}
