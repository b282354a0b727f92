package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/realtime"

	"github.com/samber/lo"
)

// TypingService persists typing rows and announces them to the room.
type TypingService struct {
	typing TypingStore
	guard  guard
	feed   Publisher
	ttl    time.Duration
	log    *slog.Logger
	now    func() time.Time
}

func NewTypingService(typing TypingStore, members MemberStore, feed Publisher, ttl time.Duration, log *slog.Logger) *TypingService {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &TypingService{
		typing: typing,
		guard:  guard{members: members},
		feed:   feed,
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}
}

func (s *TypingService) Start(ctx context.Context, roomID, userID string) error {
	if err := requireActor(userID); err != nil {
		return err
	}
	if err := s.guard.requireMember(ctx, roomID, userID); err != nil {
		return err
	}
	st, inserted, err := s.typing.Upsert(ctx, roomID, userID)
	if err != nil {
		return domain.Transport(err)
	}
	op := realtime.OpUpdate
	if inserted {
		op = realtime.OpInsert
	}
	publish(ctx, s.feed, s.log, realtime.TableTyping, op, roomID, st)
	return nil
}

// Stop is idempotent; only an actual removal is announced.
func (s *TypingService) Stop(ctx context.Context, roomID, userID string) error {
	if err := requireActor(userID); err != nil {
		return err
	}
	st, found, err := s.typing.Delete(ctx, roomID, userID)
	if err != nil {
		return domain.Transport(err)
	}
	if found {
		publish(ctx, s.feed, s.log, realtime.TableTyping, realtime.OpDelete, roomID, st)
	}
	return nil
}

// CleanupStale removes rows older than the TTL and announces each removal.
func (s *TypingService) CleanupStale(ctx context.Context) (int, error) {
	removed, err := s.typing.DeleteStale(ctx, s.ttl)
	if err != nil {
		return 0, domain.Transport(err)
	}
	for _, st := range removed {
		publish(ctx, s.feed, s.log, realtime.TableTyping, realtime.OpDelete, st.RoomID, st)
	}
	return len(removed), nil
}

// Active lists typing users of a room, ignoring rows past the TTL that the
// janitor has not swept yet.
func (s *TypingService) Active(ctx context.Context, roomID, actorID string) ([]domain.TypingState, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if err := s.guard.requireMember(ctx, roomID, actorID); err != nil {
		return nil, err
	}
	list, err := s.typing.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, domain.Transport(err)
	}
	cutoff := s.now().Add(-s.ttl)
	return lo.Filter(list, func(st domain.TypingState, _ int) bool {
		return st.StartedAt.After(cutoff)
	}), nil
}
