package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/realtime"
)

func TestTypingService_Lifecycle(t *testing.T) {
	f := newMessageFixture(t)
	svc := NewTypingService(typingView{f.store}, memberView{f.store}, f.feed, 10*time.Second, discardLogger())
	ctx := context.Background()

	if err := svc.Start(ctx, f.room, "bob"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Start(ctx, f.room, "bob"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Stop(ctx, f.room, "bob"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Stop(ctx, f.room, "bob"); err != nil {
		t.Fatal(err)
	}

	want := []realtime.Op{realtime.OpInsert, realtime.OpUpdate, realtime.OpDelete}
	got := f.feed.ops()
	if len(got) != len(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v, got %v", want, got)
		}
	}

	if err := svc.Start(ctx, f.room, "mallory"); !errors.Is(err, domain.ErrNotInRoom) {
		t.Fatalf("outsider typing: want ErrNotInRoom, got %v", err)
	}
}

func TestTypingService_CleanupStale(t *testing.T) {
	f := newMessageFixture(t)
	svc := NewTypingService(typingView{f.store}, memberView{f.store}, f.feed, 10*time.Second, discardLogger())
	ctx := context.Background()

	_ = svc.Start(ctx, f.room, "bob")
	f.store.clock = f.store.clock.Add(5 * time.Second)
	_ = svc.Start(ctx, f.room, "alice")

	svc.now = func() time.Time { return f.store.clock }
	active, err := svc.Active(ctx, f.room, "alice")
	if err != nil || len(active) != 2 {
		t.Fatalf("both typing rows are fresh: %v %+v", err, active)
	}

	f.store.clock = f.store.clock.Add(7 * time.Second)
	active, _ = svc.Active(ctx, f.room, "alice")
	if len(active) != 1 || active[0].UserID != "alice" {
		t.Fatalf("expired row must be hidden before cleanup: %+v", active)
	}

	n, err := svc.CleanupStale(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("want 1 stale row removed, got %d", n)
	}
	if _, ok := f.store.typing[[2]string{f.room, "bob"}]; ok {
		t.Fatal("stale row still stored")
	}
	if ops := f.feed.ops(); ops[len(ops)-1] != realtime.OpDelete {
		t.Fatalf("cleanup must announce DELETE, got %v", ops)
	}
}
