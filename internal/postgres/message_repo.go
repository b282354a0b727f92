package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Insert(ctx context.Context, in domain.SendInput) (*domain.Message, error) {
	return r.one(ctx, queryInsertMessage,
		in.RoomID, in.SenderID, in.Text, in.Kind, in.FileURL, in.ReplyToID, in.ClientID)
}

func (r *MessageRepository) Get(ctx context.Context, id string) (*domain.Message, error) {
	return r.one(ctx, queryGetMessage, id)
}

// Page returns messages newest first, skipping offset rows.
func (r *MessageRepository) Page(ctx context.Context, roomID string, offset, limit int) ([]domain.Message, error) {
	rows, err := r.db.Query(ctx, queryPageMessages, roomID, offset, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.Message])
	if err != nil {
		return nil, mapPgError(err)
	}
	return list, nil
}

// UpdateText only touches a live message owned by senderID.
func (r *MessageRepository) UpdateText(ctx context.Context, id, senderID, text string) (*domain.Message, error) {
	return r.one(ctx, queryEditMessage, id, senderID, text)
}

func (r *MessageRepository) SoftDelete(ctx context.Context, id, senderID string) (*domain.Message, error) {
	return r.one(ctx, querySoftDeleteMessage, id, senderID)
}

func (r *MessageRepository) one(ctx context.Context, sql string, args ...any) (*domain.Message, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[domain.Message])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, mapPgError(err)
	}
	return &m, nil
}
