package postgres

import (
	"context"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
)

// ProfileRepository reads the users table owned by the auth service.
type ProfileRepository struct {
	db *pgxpool.Pool
}

func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetMany returns found profiles keyed by id; unknown ids are absent.
func (r *ProfileRepository) GetMany(ctx context.Context, ids []string) (map[string]*domain.Profile, error) {
	if len(ids) == 0 {
		return map[string]*domain.Profile{}, nil
	}
	rows, err := r.db.Query(ctx, queryProfiles, ids)
	if err != nil {
		return nil, mapPgError(err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[domain.Profile])
	if err != nil {
		return nil, mapPgError(err)
	}
	return lo.KeyBy(list, func(p *domain.Profile) string { return p.ID }), nil
}

func (r *ProfileRepository) Get(ctx context.Context, id string) (*domain.Profile, error) {
	m, err := r.GetMany(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	p, ok := m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}
