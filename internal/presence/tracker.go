package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const DefaultTimeout = 3 * time.Second

// Typing persists and announces typing rows.
type Typing interface {
	Start(ctx context.Context, roomID, userID string) error
	Stop(ctx context.Context, roomID, userID string) error
}

// Tracker is the idle -> typing -> idle state machine of one user in one room.
// Every keystroke rearms a single inactivity timer; expiry returns to idle.
type Tracker struct {
	typing  Typing
	roomID  string
	userID  string
	timeout time.Duration
	log     *slog.Logger

	mu     sync.Mutex
	gen    uint64
	timer  *time.Timer
	active bool
	closed bool

	// store calls run one at a time, in the order of the state changes
	// that issued them.
	storeMu sync.Mutex
}

func NewTracker(typing Typing, roomID, userID string, timeout time.Duration, log *slog.Logger) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{
		typing:  typing,
		roomID:  roomID,
		userID:  userID,
		timeout: timeout,
		log:     log,
	}
}

func (t *Tracker) StartTyping(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.gen++
	gen := t.gen
	t.stopTimerLocked()
	t.timer = time.AfterFunc(t.timeout, func() { t.expire(gen) })
	t.active = true

	err := t.storeLocked(func() error { return t.typing.Start(ctx, t.roomID, t.userID) })
	if err != nil {
		t.mu.Lock()
		if gen == t.gen {
			t.stopTimerLocked()
			t.active = false
		}
		t.mu.Unlock()
		return err
	}
	return nil
}

// StopTyping removes the row at once (message sent, input blurred).
func (t *Tracker) StopTyping(ctx context.Context) error {
	t.mu.Lock()
	if !t.idleLocked() {
		t.mu.Unlock()
		return nil
	}
	return t.storeLocked(func() error { return t.typing.Stop(ctx, t.roomID, t.userID) })
}

// Close stops typing and makes later StartTyping calls no-ops.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	if !t.idleLocked() {
		t.mu.Unlock()
		return nil
	}
	return t.storeLocked(func() error { return t.typing.Stop(ctx, t.roomID, t.userID) })
}

func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Tracker) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.timer = nil

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.storeLocked(func() error { return t.typing.Stop(ctx, t.roomID, t.userID) }); err != nil {
		t.log.Warn("typing expiry cleanup failed",
			slog.String("room_id", t.roomID), slog.String("user_id", t.userID), slog.Any("err", err))
	}
}

// storeLocked queues call behind any store call already issued, then releases
// t.mu and runs it. Must be entered with t.mu held; returns with it released.
func (t *Tracker) storeLocked(call func() error) error {
	t.storeMu.Lock()
	t.mu.Unlock()
	defer t.storeMu.Unlock()
	return call()
}

func (t *Tracker) idleLocked() bool {
	t.gen++
	t.stopTimerLocked()
	wasActive := t.active
	t.active = false
	return wasActive
}

func (t *Tracker) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
