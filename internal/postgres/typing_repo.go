package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TypingRepository struct {
	db *pgxpool.Pool
}

func NewTypingRepository(db *pgxpool.Pool) *TypingRepository {
	return &TypingRepository{db: db}
}

// Upsert refreshes started_at and reports whether the row was new.
func (r *TypingRepository) Upsert(ctx context.Context, roomID, userID string) (domain.TypingState, bool, error) {
	var (
		st       domain.TypingState
		inserted bool
	)
	err := r.db.QueryRow(ctx, queryUpsertTyping, roomID, userID).
		Scan(&st.UserID, &st.RoomID, &st.StartedAt, &inserted)
	if err != nil {
		return domain.TypingState{}, false, mapPgError(err)
	}
	return st, inserted, nil
}

// Delete reports false when there was no row to remove.
func (r *TypingRepository) Delete(ctx context.Context, roomID, userID string) (domain.TypingState, bool, error) {
	var st domain.TypingState
	err := r.db.QueryRow(ctx, queryDeleteTyping, roomID, userID).
		Scan(&st.UserID, &st.RoomID, &st.StartedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TypingState{}, false, nil
		}
		return domain.TypingState{}, false, mapPgError(err)
	}
	return st, true, nil
}

func (r *TypingRepository) DeleteStale(ctx context.Context, ttl time.Duration) ([]domain.TypingState, error) {
	rows, err := r.db.Query(ctx, queryDeleteStaleTyping, ttl.Seconds())
	if err != nil {
		return nil, mapPgError(err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.TypingState])
	if err != nil {
		return nil, mapPgError(err)
	}
	return list, nil
}

func (r *TypingRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.TypingState, error) {
	rows, err := r.db.Query(ctx, queryListTyping, roomID)
	if err != nil {
		return nil, mapPgError(err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.TypingState])
	if err != nil {
		return nil, mapPgError(err)
	}
	return list, nil
}
