package postgres

import (
	"context"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepository struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// InsertMany writes one in-app record per notification in a single batch.
func (r *NotificationRepository) InsertMany(ctx context.Context, list []domain.Notification) error {
	if len(list) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, n := range list {
		b.Queue(queryInsertNotification, n.UserID, n.Title, n.Body, n.TargetURL, n.Category)
	}
	return mapPgError(r.db.SendBatch(ctx, b).Close())
}
