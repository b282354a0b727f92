package presence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/realtime"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// rowTyping mimics the typing table: a row exists between Start and Stop.
type rowTyping struct {
	mu     sync.Mutex
	rows   map[string]bool
	starts int
	stops  int
	err    error

	// when set, Start signals entered and waits on release
	entered chan struct{}
	release chan struct{}
}

func newRowTyping() *rowTyping { return &rowTyping{rows: map[string]bool{}} }

func (r *rowTyping) Start(_ context.Context, roomID, userID string) error {
	if r.release != nil {
		r.entered <- struct{}{}
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.starts++
	r.rows[roomID+"/"+userID] = true
	return nil
}

func (r *rowTyping) Stop(_ context.Context, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	delete(r.rows, roomID+"/"+userID)
	return nil
}

func (r *rowTyping) present(roomID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[roomID+"/"+userID]
}

func TestTracker_ExpiresWithoutRefresh(t *testing.T) {
	rows := newRowTyping()
	tr := NewTracker(rows, "r1", "u1", 40*time.Millisecond, discardLogger())

	if err := tr.StartTyping(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !rows.present("r1", "u1") || !tr.Active() {
		t.Fatal("typing row must exist right after start")
	}

	eventually(t, func() bool { return !rows.present("r1", "u1") })
	if tr.Active() {
		t.Fatal("tracker must be idle after expiry")
	}
}

func TestTracker_RefreshRearmsSingleTimer(t *testing.T) {
	rows := newRowTyping()
	tr := NewTracker(rows, "r1", "u1", 80*time.Millisecond, discardLogger())

	for i := 0; i < 4; i++ {
		_ = tr.StartTyping(context.Background())
		time.Sleep(30 * time.Millisecond)
	}
	if !rows.present("r1", "u1") {
		t.Fatal("row expired while keystrokes kept coming")
	}

	eventually(t, func() bool { return !rows.present("r1", "u1") })
	time.Sleep(100 * time.Millisecond)

	rows.mu.Lock()
	defer rows.mu.Unlock()
	if rows.stops != 1 {
		t.Fatalf("want exactly one removal from the single timer, got %d", rows.stops)
	}
}

func TestTracker_StopRemovesImmediately(t *testing.T) {
	rows := newRowTyping()
	tr := NewTracker(rows, "r1", "u1", time.Minute, discardLogger())

	_ = tr.StartTyping(context.Background())
	if err := tr.StopTyping(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rows.present("r1", "u1") || tr.Active() {
		t.Fatal("stop must remove the row at once")
	}

	_ = tr.StopTyping(context.Background())
	if rows.stops != 1 {
		t.Fatalf("stop while idle must not touch storage, stops=%d", rows.stops)
	}
}

func TestTracker_CloseDisables(t *testing.T) {
	rows := newRowTyping()
	tr := NewTracker(rows, "r1", "u1", time.Minute, discardLogger())

	_ = tr.StartTyping(context.Background())
	if err := tr.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = tr.StartTyping(context.Background())
	if rows.present("r1", "u1") || rows.starts != 1 {
		t.Fatalf("closed tracker must stay idle (starts=%d)", rows.starts)
	}
}

func TestTracker_StartFailureStaysIdle(t *testing.T) {
	rows := newRowTyping()
	rows.err = domain.ErrNotInRoom
	tr := NewTracker(rows, "r1", "u1", time.Minute, discardLogger())

	if err := tr.StartTyping(context.Background()); !errors.Is(err, domain.ErrNotInRoom) {
		t.Fatalf("want ErrNotInRoom, got %v", err)
	}
	if tr.Active() {
		t.Fatal("failed start must leave the tracker idle")
	}
}

func TestTracker_StopWaitsForPendingStart(t *testing.T) {
	rows := newRowTyping()
	rows.entered = make(chan struct{})
	rows.release = make(chan struct{})
	tr := NewTracker(rows, "r1", "u1", time.Minute, discardLogger())
	ctx := context.Background()

	started := make(chan error, 1)
	go func() { started <- tr.StartTyping(ctx) }()
	<-rows.entered

	stopped := make(chan error, 1)
	go func() { stopped <- tr.StopTyping(ctx) }()

	select {
	case <-stopped:
		t.Fatal("stop finished while the start write was still pending")
	case <-time.After(30 * time.Millisecond):
	}

	close(rows.release)
	if err := <-started; err != nil {
		t.Fatal(err)
	}
	if err := <-stopped; err != nil {
		t.Fatal(err)
	}
	if rows.present("r1", "u1") || tr.Active() {
		t.Fatal("row left behind after start then stop")
	}
}

type countingCleaner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingCleaner) CleanupStale(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 1, c.err
}

func (c *countingCleaner) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestJanitor_RunsUntilCancelled(t *testing.T) {
	c := &countingCleaner{}
	j := NewJanitor(c, 10*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- j.Run(ctx) }()

	eventually(t, func() bool { return c.count() >= 3 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run must end cleanly, got %v", err)
	}
}

func TestJanitor_StopsSilentlyWithoutAuth(t *testing.T) {
	c := &countingCleaner{err: domain.ErrAuthRequired}
	j := NewJanitor(c, 5*time.Millisecond, discardLogger())

	done := make(chan error)
	go func() { done <- j.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("want silent stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("janitor kept running without authorization")
	}
}

func TestRoster(t *testing.T) {
	r := NewRoster("me", 10*time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	ev := func(op realtime.Op, user string) realtime.TypingEvent {
		return realtime.TypingEvent{Op: op, State: domain.TypingState{UserID: user, RoomID: "r1"}}
	}

	if r.Apply(ev(realtime.OpInsert, "me")) {
		t.Fatal("own typing must be ignored")
	}
	if !r.Apply(ev(realtime.OpInsert, "bob")) || r.Apply(ev(realtime.OpUpdate, "bob")) {
		t.Fatal("insert must change the set once")
	}
	r.Apply(ev(realtime.OpInsert, "ann"))
	if got := r.Users(); len(got) != 2 || got[0] != "ann" || got[1] != "bob" {
		t.Fatalf("unexpected users: %v", got)
	}

	if !r.Apply(ev(realtime.OpDelete, "ann")) {
		t.Fatal("delete must change the set")
	}

	now = now.Add(11 * time.Second)
	if got := r.Users(); len(got) != 0 {
		t.Fatalf("stale entries must expire, got %v", got)
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
