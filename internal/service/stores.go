package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/realtime"
)

type RoomStore interface {
	Create(ctx context.Context, room *domain.Room) error
	Get(ctx context.Context, id string) (*domain.Room, error)
	EnsureScoped(ctx context.Context, room domain.Room) (*domain.Room, error)
	CreateDirect(ctx context.Context, actorID, otherID string) (string, error)
	Delete(ctx context.Context, id string) error
	DeleteCascade(ctx context.Context, id string) error
}

type MemberStore interface {
	AddMany(ctx context.Context, roomID string, members []domain.Membership) error
	Get(ctx context.Context, roomID, userID string) (*domain.Membership, error)
	ListByRoom(ctx context.Context, roomID string) ([]domain.Membership, error)
}

// RoomQuery is one strategy for listing a user's rooms.
type RoomQuery interface {
	ListForUser(ctx context.Context, userID string) ([]domain.RoomSummary, error)
}

type MessageStore interface {
	Insert(ctx context.Context, in domain.SendInput) (*domain.Message, error)
	Get(ctx context.Context, id string) (*domain.Message, error)
	Page(ctx context.Context, roomID string, offset, limit int) ([]domain.Message, error)
	UpdateText(ctx context.Context, id, senderID, text string) (*domain.Message, error)
	SoftDelete(ctx context.Context, id, senderID string) (*domain.Message, error)
}

type TypingStore interface {
	Upsert(ctx context.Context, roomID, userID string) (domain.TypingState, bool, error)
	Delete(ctx context.Context, roomID, userID string) (domain.TypingState, bool, error)
	DeleteStale(ctx context.Context, ttl time.Duration) ([]domain.TypingState, error)
	ListByRoom(ctx context.Context, roomID string) ([]domain.TypingState, error)
}

type Publisher interface {
	Publish(ctx context.Context, c realtime.Change) error
}

// publish is best-effort: the row is already stored, so a feed failure is
// logged and the write still succeeds.
func publish(ctx context.Context, feed Publisher, log *slog.Logger, table string, op realtime.Op, roomID string, record any) {
	c, err := realtime.NewChange(table, op, roomID, record)
	if err == nil {
		err = feed.Publish(ctx, c)
	}
	if err != nil {
		log.WarnContext(ctx, "publish change failed",
			slog.String("table", table),
			slog.String("op", string(op)),
			slog.String("room_id", roomID),
			slog.Any("err", err),
		)
	}
}

func requireActor(userID string) error {
	if userID == "" {
		return domain.ErrAuthRequired
	}
	return nil
}
