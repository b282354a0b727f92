package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type MessageEvent struct {
	Op      Op
	Message domain.Message
}

type TypingEvent struct {
	Op    Op
	State domain.TypingState
}

type Handlers struct {
	OnMessage func(ctx context.Context, ev MessageEvent)
	OnTyping  func(ctx context.Context, ev TypingEvent)
}

// Bridge keeps exactly one message and one typing subscription, both for the
// currently open room, and turns raw changes into typed events.
type Bridge struct {
	feed Feed
	log  *slog.Logger

	mu     sync.Mutex
	msgSub Subscription
	typSub Subscription
	room   atomic.Pointer[string]
}

func NewBridge(feed Feed, log *slog.Logger) *Bridge {
	return &Bridge{feed: feed, log: log}
}

// Open releases the previous pair before subscribing to roomID. If either new
// subscription fails the bridge is left closed.
func (b *Bridge) Open(roomID string, h Handlers) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.teardownLocked()
	b.room.Store(&roomID)

	msgSub, err := b.feed.Subscribe(TableMessages, roomID, func(ctx context.Context, c Change) {
		b.dispatchMessage(ctx, roomID, c, h.OnMessage)
	})
	if err != nil {
		b.room.Store(nil)
		return domain.Transport(err)
	}

	typSub, err := b.feed.Subscribe(TableTyping, roomID, func(ctx context.Context, c Change) {
		b.dispatchTyping(ctx, roomID, c, h.OnTyping)
	})
	if err != nil {
		b.unsubscribe(msgSub)
		b.room.Store(nil)
		return domain.Transport(err)
	}

	b.msgSub, b.typSub = msgSub, typSub
	return nil
}

func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardownLocked()
}

// Room is the room currently subscribed to, or "" when closed.
func (b *Bridge) Room() string {
	if p := b.room.Load(); p != nil {
		return *p
	}
	return ""
}

func (b *Bridge) teardownLocked() {
	b.room.Store(nil)
	b.unsubscribe(b.msgSub)
	b.unsubscribe(b.typSub)
	b.msgSub, b.typSub = nil, nil
}

func (b *Bridge) unsubscribe(s Subscription) {
	if s == nil {
		return
	}
	if err := s.Unsubscribe(); err != nil {
		b.log.Warn("unsubscribe failed", slog.Any("err", err))
	}
}

func (b *Bridge) current(roomID string, c Change) bool {
	return c.RoomID == roomID && b.Room() == roomID
}

func (b *Bridge) dispatchMessage(ctx context.Context, roomID string, c Change, fn func(context.Context, MessageEvent)) {
	if fn == nil || !b.current(roomID, c) {
		return
	}
	var m domain.Message
	if err := json.Unmarshal(c.Record, &m); err != nil {
		b.log.WarnContext(ctx, "drop malformed message change", slog.Any("err", err))
		return
	}
	if m.RoomID != roomID {
		return
	}
	fn(ctx, MessageEvent{Op: c.Op, Message: m})
}

func (b *Bridge) dispatchTyping(ctx context.Context, roomID string, c Change, fn func(context.Context, TypingEvent)) {
	if fn == nil || !b.current(roomID, c) {
		return
	}
	var st domain.TypingState
	if err := json.Unmarshal(c.Record, &st); err != nil {
		b.log.WarnContext(ctx, "drop malformed typing change", slog.Any("err", err))
		return
	}
	fn(ctx, TypingEvent{Op: c.Op, State: st})
}
