package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/access"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/realtime"
	"github.com/cwrk-planet/chat-service/internal/timeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend stores messages in memory and announces inserts on the feed
// the way the message service does.
type fakeBackend struct {
	feed    realtime.Feed
	members map[string]bool // room ids the user belongs to

	mu   sync.Mutex
	seq  int
	msgs []domain.Message
}

func (b *fakeBackend) Fetch(_ context.Context, _, roomID string, _, _ int) ([]domain.Message, error) {
	if !b.members[roomID] {
		return nil, domain.ErrNotInRoom
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Message
	for _, m := range b.msgs {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (b *fakeBackend) Send(ctx context.Context, in domain.SendInput) (*domain.Message, error) {
	b.mu.Lock()
	b.seq++
	m := domain.Message{
		ID:        fmt.Sprintf("m%02d", b.seq),
		RoomID:    in.RoomID,
		SenderID:  in.SenderID,
		Text:      in.Text,
		Kind:      in.Kind,
		ClientID:  in.ClientID,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, b.seq, 0, time.UTC),
	}
	b.msgs = append(b.msgs, m)
	b.mu.Unlock()

	c, _ := realtime.NewChange(realtime.TableMessages, realtime.OpInsert, m.RoomID, m)
	_ = b.feed.Publish(ctx, c)
	return &m, nil
}

func (b *fakeBackend) Edit(context.Context, string, string, string) (*domain.Message, error) {
	return nil, errors.New("not used")
}

func (b *fakeBackend) Delete(context.Context, string, string) (*domain.Message, error) {
	return nil, errors.New("not used")
}

type fakeTyping struct {
	mu      sync.Mutex
	rows    map[[2]string]bool
	stops   int
	cleaned int
}

func newFakeTyping() *fakeTyping { return &fakeTyping{rows: map[[2]string]bool{}} }

func (f *fakeTyping) Start(_ context.Context, roomID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[[2]string{roomID, userID}] = true
	return nil
}

func (f *fakeTyping) Stop(_ context.Context, roomID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	delete(f.rows, [2]string{roomID, userID})
	return nil
}

func (f *fakeTyping) CleanupStale(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned++
	return 0, nil
}

func (f *fakeTyping) Active(_ context.Context, roomID, _ string) ([]domain.TypingState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TypingState
	for k := range f.rows {
		if k[0] == roomID {
			out = append(out, domain.TypingState{RoomID: k[0], UserID: k[1]})
		}
	}
	return out, nil
}

func (f *fakeTyping) typing(roomID, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[[2]string{roomID, userID}]
}

type recordingSink struct {
	mu     sync.Mutex
	views  []timeline.View
	typing map[string][]string
}

func (s *recordingSink) Timeline(v timeline.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, v)
}

func (s *recordingSink) Typing(roomID string, users []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typing == nil {
		s.typing = map[string][]string{}
	}
	s.typing[roomID] = users
}

func (s *recordingSink) last() timeline.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views[len(s.views)-1]
}

func (s *recordingSink) typers(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing[roomID]
}

type fixture struct {
	feed    *realtime.LocalFeed
	backend *fakeBackend
	typing  *fakeTyping
	sink    *recordingSink
	session *Session
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	feed := realtime.NewLocalFeed()
	backend := &fakeBackend{feed: feed, members: map[string]bool{"room-a": true, "room-b": true}}
	typing := newFakeTyping()
	sink := &recordingSink{}
	s := New(Deps{
		Feed:     feed,
		Messages: backend,
		Typing:   typing,
	}, Config{
		UserID:    "u1",
		TypingTTL: 10 * time.Second,
		Cache:     access.NewCache(),
		Log:       discardLogger(),
	}, sink)
	t.Cleanup(func() { s.Close(context.Background()) })
	return fixture{feed: feed, backend: backend, typing: typing, sink: sink, session: s}
}

func publishTyping(t *testing.T, f realtime.Feed, op realtime.Op, roomID, userID string) {
	t.Helper()
	c, err := realtime.NewChange(realtime.TableTyping, op, roomID, domain.TypingState{RoomID: roomID, UserID: userID})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Publish(context.Background(), c); err != nil {
		t.Fatal(err)
	}
}

func TestSession_OpenLoadsTimeline(t *testing.T) {
	fx := newFixture(t)
	fx.backend.msgs = []domain.Message{
		{ID: "x1", RoomID: "room-a", SenderID: "u2", Text: "hello", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	if err := fx.session.Open(context.Background(), "room-a"); err != nil {
		t.Fatal(err)
	}

	v := fx.sink.last()
	if v.RoomID != "room-a" || len(v.Items) != 1 || v.Items[0].Text != "hello" {
		t.Fatalf("unexpected view %+v", v)
	}
	if fx.typing.cleaned != 1 {
		t.Fatal("stale typing rows should be swept on open")
	}
}

func TestSession_SendShowsOnceAndStopsTyping(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if err := fx.session.Open(ctx, "room-a"); err != nil {
		t.Fatal(err)
	}
	if err := fx.session.StartTyping(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := fx.session.Send(ctx, timeline.SendRequest{Text: "hi"}); err != nil {
		t.Fatal(err)
	}

	if fx.typing.typing("room-a", "u1") {
		t.Fatal("sending must clear the typing row")
	}
	v := fx.session.View()
	if len(v.Items) != 1 || v.Items[0].ID != "m01" || v.Items[0].Pending {
		t.Fatalf("expected exactly one confirmed item, got %+v", v.Items)
	}
}

func TestSession_SwitchDropsOldRoomEvents(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if err := fx.session.Open(ctx, "room-a"); err != nil {
		t.Fatal(err)
	}
	if err := fx.session.Open(ctx, "room-b"); err != nil {
		t.Fatal(err)
	}

	m := domain.Message{ID: "late", RoomID: "room-a", SenderID: "u2", Text: "old room"}
	c, _ := realtime.NewChange(realtime.TableMessages, realtime.OpInsert, "room-a", m)
	_ = fx.feed.Publish(ctx, c)

	v := fx.session.View()
	if v.RoomID != "room-b" || len(v.Items) != 0 {
		t.Fatalf("room-a message leaked into room-b: %+v", v)
	}
	if fx.session.Room() != "room-b" {
		t.Fatalf("unexpected room %q", fx.session.Room())
	}
}

func TestSession_TypingRoster(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if err := fx.session.Open(ctx, "room-a"); err != nil {
		t.Fatal(err)
	}

	publishTyping(t, fx.feed, realtime.OpInsert, "room-a", "u2")
	publishTyping(t, fx.feed, realtime.OpInsert, "room-a", "u1")
	if got := fx.sink.typers("room-a"); len(got) != 1 || got[0] != "u2" {
		t.Fatalf("expected only the other user, got %v", got)
	}

	publishTyping(t, fx.feed, realtime.OpDelete, "room-a", "u2")
	if got := fx.sink.typers("room-a"); len(got) != 0 {
		t.Fatalf("expected nobody typing, got %v", got)
	}
}

func TestSession_OpenForbiddenRoom(t *testing.T) {
	fx := newFixture(t)

	err := fx.session.Open(context.Background(), "room-z")
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if fx.session.Room() != "" {
		t.Fatal("a failed open must leave no subscription")
	}
	if err := fx.session.StartTyping(context.Background()); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("typing without a room: %v", err)
	}
}

func TestSession_CloseRemovesTypingRow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if err := fx.session.Open(ctx, "room-a"); err != nil {
		t.Fatal(err)
	}
	if err := fx.session.StartTyping(ctx); err != nil {
		t.Fatal(err)
	}

	fx.session.Close(ctx)

	if fx.typing.typing("room-a", "u1") {
		t.Fatal("close must remove the typing row")
	}
	if fx.session.Room() != "" {
		t.Fatal("close must release subscriptions")
	}
}
