package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MemberRepository struct {
	db *pgxpool.Pool
}

func NewMemberRepository(db *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{db: db}
}

// AddMany inserts all memberships in one statement; existing pairs are kept as is.
func (r *MemberRepository) AddMany(ctx context.Context, roomID string, members []domain.Membership) error {
	if len(members) == 0 {
		return nil
	}
	userIDs := make([]string, len(members))
	admins := make([]bool, len(members))
	for i, m := range members {
		userIDs[i] = m.UserID
		admins[i] = m.IsAdmin
	}

	_, err := r.db.Exec(ctx, queryAddMembers, roomID, userIDs, admins)
	return mapPgError(err)
}

func (r *MemberRepository) Get(ctx context.Context, roomID, userID string) (*domain.Membership, error) {
	var m domain.Membership
	err := r.db.QueryRow(ctx, queryGetMember, roomID, userID).
		Scan(&m.RoomID, &m.UserID, &m.IsAdmin, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotInRoom
		}
		return nil, mapPgError(err)
	}
	return &m, nil
}

func (r *MemberRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.Membership, error) {
	rows, err := r.db.Query(ctx, queryListMembers, roomID)
	if err != nil {
		return nil, mapPgError(err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.Membership])
	if err != nil {
		return nil, mapPgError(err)
	}
	return list, nil
}
