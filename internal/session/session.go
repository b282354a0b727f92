package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/access"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/presence"
	"github.com/cwrk-planet/chat-service/internal/realtime"
	"github.com/cwrk-planet/chat-service/internal/timeline"
)

// Typing is the authoritative typing store as seen by one session.
type Typing interface {
	presence.Typing
	CleanupStale(ctx context.Context) (int, error)
	Active(ctx context.Context, roomID, actorID string) ([]domain.TypingState, error)
}

// Sink receives everything a client should render.
type Sink interface {
	Timeline(v timeline.View)
	Typing(roomID string, users []string)
}

type Config struct {
	UserID        string
	PageSize      int
	TypingTimeout time.Duration
	TypingTTL     time.Duration
	Cache         *access.Cache
	Log           *slog.Logger
}

type Deps struct {
	Feed     realtime.Feed
	Messages timeline.Backend
	Typing   Typing
	Profiles timeline.Profiles
	Notifier timeline.Notifier
}

// Session is one connected client: a bridge, a timeline and a typing tracker
// for whichever room the client has open.
type Session struct {
	userID  string
	typing  Typing
	cache   *access.Cache
	timeout time.Duration
	sink    Sink
	log     *slog.Logger

	bridge   *realtime.Bridge
	timeline *timeline.Timeline
	roster   *presence.Roster

	openMu sync.Mutex

	mu      sync.Mutex
	tracker *presence.Tracker
}

func New(deps Deps, cfg Config, sink Sink) *Session {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.TypingTimeout <= 0 {
		cfg.TypingTimeout = presence.DefaultTimeout
	}
	log := cfg.Log.With(slog.String("user_id", cfg.UserID))

	s := &Session{
		userID:  cfg.UserID,
		typing:  deps.Typing,
		cache:   cfg.Cache,
		timeout: cfg.TypingTimeout,
		sink:    sink,
		log:     log,
		bridge:  realtime.NewBridge(deps.Feed, log),
		roster:  presence.NewRoster(cfg.UserID, cfg.TypingTTL),
	}
	s.timeline = timeline.New(deps.Messages, timeline.Config{
		UserID:   cfg.UserID,
		PageSize: cfg.PageSize,
		Profiles: deps.Profiles,
		Notifier: deps.Notifier,
		OnChange: sink.Timeline,
		Log:      log,
	})
	return s
}

// Open makes roomID the active room. Switching rooms stops typing in the
// previous one, drops cached permission checks and replaces the feed
// subscriptions before the first page is loaded.
func (s *Session) Open(ctx context.Context, roomID string) error {
	if roomID == "" {
		return domain.Invalid("room id is required")
	}
	s.openMu.Lock()
	defer s.openMu.Unlock()

	s.closeTracker(ctx)
	s.cache.Reset()
	s.timeline.Open(roomID)

	if err := s.bridge.Open(roomID, realtime.Handlers{
		OnMessage: s.timeline.Apply,
		OnTyping:  s.onTyping,
	}); err != nil {
		return err
	}

	if err := s.timeline.Fetch(ctx, 0, 0); err != nil {
		s.bridge.Close()
		s.timeline.Open("")
		return err
	}

	if n, err := s.typing.CleanupStale(ctx); err != nil {
		s.log.DebugContext(ctx, "typing cleanup on open failed", slog.Any("err", err))
	} else if n > 0 {
		s.log.DebugContext(ctx, "stale typing rows removed", slog.Int("count", n))
	}

	states, err := s.typing.Active(ctx, roomID, s.userID)
	if err != nil {
		s.log.WarnContext(ctx, "load typing users failed", slog.String("room_id", roomID), slog.Any("err", err))
	}
	s.roster.Reset(states)
	s.sink.Typing(roomID, s.roster.Users())

	s.mu.Lock()
	s.tracker = presence.NewTracker(s.typing, roomID, s.userID, s.timeout, s.log)
	s.mu.Unlock()
	return nil
}

func (s *Session) Room() string { return s.bridge.Room() }

func (s *Session) View() timeline.View { return s.timeline.View() }

func (s *Session) LoadMore(ctx context.Context) error {
	return s.timeline.LoadMore(ctx)
}

// Send stops the typing indicator before sending.
func (s *Session) Send(ctx context.Context, req timeline.SendRequest) (*domain.Message, error) {
	if t := s.currentTracker(); t != nil {
		if err := t.StopTyping(ctx); err != nil {
			s.log.DebugContext(ctx, "stop typing before send failed", slog.Any("err", err))
		}
	}
	return s.timeline.Send(ctx, req)
}

func (s *Session) Edit(ctx context.Context, messageID, text string) (*domain.Message, error) {
	return s.timeline.Edit(ctx, messageID, text)
}

func (s *Session) Delete(ctx context.Context, messageID string) (*domain.Message, error) {
	return s.timeline.Delete(ctx, messageID)
}

func (s *Session) StartTyping(ctx context.Context) error {
	t := s.currentTracker()
	if t == nil {
		return domain.Invalid("no open room")
	}
	return t.StartTyping(ctx)
}

func (s *Session) StopTyping(ctx context.Context) error {
	t := s.currentTracker()
	if t == nil {
		return nil
	}
	return t.StopTyping(ctx)
}

// Close releases the subscriptions and removes this user's typing row.
func (s *Session) Close(ctx context.Context) {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	s.closeTracker(ctx)
	s.bridge.Close()
}

func (s *Session) onTyping(_ context.Context, ev realtime.TypingEvent) {
	if !s.roster.Apply(ev) {
		return
	}
	s.sink.Typing(ev.State.RoomID, s.roster.Users())
}

func (s *Session) currentTracker() *presence.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker
}

func (s *Session) closeTracker(ctx context.Context) {
	s.mu.Lock()
	t := s.tracker
	s.tracker = nil
	s.mu.Unlock()

	if t == nil {
		return
	}
	if err := t.Close(ctx); err != nil {
		s.log.DebugContext(ctx, "typing teardown failed", slog.Any("err", err))
	}
}
