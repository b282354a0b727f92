package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/realtime"

	"github.com/samber/lo"
)

type MessageConfig struct {
	MaxLength int
	PageSize  int
}

// MessageService is the authoritative side of the timeline: it stores
// messages and announces every change on the feed.
type MessageService struct {
	messages MessageStore
	guard    guard
	feed     Publisher
	cfg      MessageConfig
	log      *slog.Logger
}

func NewMessageService(messages MessageStore, members MemberStore, feed Publisher, cfg MessageConfig, log *slog.Logger) *MessageService {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 4000
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	return &MessageService{
		messages: messages,
		guard:    guard{members: members},
		feed:     feed,
		cfg:      cfg,
		log:      log,
	}
}

func (s *MessageService) PageSize() int { return s.cfg.PageSize }

// Fetch returns one page in display order (oldest first). Offset counts from
// the newest message.
func (s *MessageService) Fetch(ctx context.Context, actorID, roomID string, offset, limit int) ([]domain.Message, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, domain.Invalid("negative offset")
	}
	limit = domain.PageLimit(limit, s.cfg.PageSize)

	if err := s.guard.requireMember(ctx, roomID, actorID); err != nil {
		return nil, err
	}
	page, err := s.messages.Page(ctx, roomID, offset, limit)
	if err != nil {
		return nil, domain.Transport(err)
	}
	return lo.Reverse(page), nil
}

func (s *MessageService) Send(ctx context.Context, in domain.SendInput) (*domain.Message, error) {
	if err := requireActor(in.SenderID); err != nil {
		return nil, err
	}
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}
	if err := s.guard.requireMember(ctx, in.RoomID, in.SenderID); err != nil {
		return nil, err
	}

	m, err := s.messages.Insert(ctx, in)
	if err != nil {
		return nil, domain.Transport(err)
	}
	publish(ctx, s.feed, s.log, realtime.TableMessages, realtime.OpInsert, m.RoomID, m)
	return m, nil
}

// Edit is sender-only; a deleted message cannot be edited.
func (s *MessageService) Edit(ctx context.Context, actorID, messageID, text string) (*domain.Message, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.Invalid("empty text")
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxLength {
		return nil, domain.Invalid("text longer than %d characters", s.cfg.MaxLength)
	}

	cur, err := s.owned(ctx, actorID, messageID)
	if err != nil {
		return nil, err
	}
	if cur.IsDeleted {
		return nil, domain.ErrMessageDeleted
	}

	m, err := s.messages.UpdateText(ctx, messageID, actorID, text)
	if err != nil {
		// deleted between the read and the update.
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrMessageDeleted
		}
		return nil, domain.Transport(err)
	}
	publish(ctx, s.feed, s.log, realtime.TableMessages, realtime.OpUpdate, m.RoomID, m)
	return m, nil
}

// Delete is a sender-only soft delete; the row is kept.
func (s *MessageService) Delete(ctx context.Context, actorID, messageID string) (*domain.Message, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	cur, err := s.owned(ctx, actorID, messageID)
	if err != nil {
		return nil, err
	}
	if cur.IsDeleted {
		return cur, nil
	}

	m, err := s.messages.SoftDelete(ctx, messageID, actorID)
	if err != nil {
		return nil, domain.Transport(err)
	}
	publish(ctx, s.feed, s.log, realtime.TableMessages, realtime.OpUpdate, m.RoomID, m)
	return m, nil
}

func (s *MessageService) owned(ctx context.Context, actorID, messageID string) (*domain.Message, error) {
	m, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, domain.Transport(err)
	}
	if m.SenderID != actorID {
		return nil, domain.ErrPermissionDenied
	}
	return m, nil
}

func (s *MessageService) normalize(in domain.SendInput) (domain.SendInput, error) {
	if in.RoomID == "" {
		return in, domain.Invalid("room is required")
	}
	if in.Kind == "" {
		in.Kind = domain.MessageKindText
	}
	if !in.Kind.Valid() {
		return in, domain.Invalid("unknown message kind %q", in.Kind)
	}

	in.Text = strings.TrimSpace(in.Text)
	in.FileURL = blankToNil(in.FileURL)
	in.ReplyToID = blankToNil(in.ReplyToID)
	in.ClientID = blankToNil(in.ClientID)

	if utf8.RuneCountInString(in.Text) > s.cfg.MaxLength {
		return in, domain.Invalid("text longer than %d characters", s.cfg.MaxLength)
	}
	if in.Text == "" && (in.Kind == domain.MessageKindText || in.FileURL == nil) {
		return in, domain.Invalid("empty message")
	}
	return in, nil
}

func blankToNil(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}
