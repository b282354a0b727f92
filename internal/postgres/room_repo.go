package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	rows, err := r.db.Query(ctx, queryCreateRoom,
		room.Name, room.Description, room.Kind, room.IsPrivate, room.CreatedBy, room.MaxMembers)
	if err != nil {
		return mapPgError(err)
	}
	created, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[domain.Room])
	if err != nil {
		return mapPgError(err)
	}
	*room = created
	return nil
}

func (r *RoomRepository) Get(ctx context.Context, id string) (*domain.Room, error) {
	rows, err := r.db.Query(ctx, queryGetRoom, id)
	if err != nil {
		return nil, mapPgError(err)
	}
	rm, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[domain.Room])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, mapPgError(err)
	}
	return &rm, nil
}

// EnsureScoped inserts the room unless one with the same scope key exists and
// returns whichever row is stored. Concurrent callers all get the same room.
func (r *RoomRepository) EnsureScoped(ctx context.Context, room domain.Room) (*domain.Room, error) {
	rows, err := r.db.Query(ctx, queryEnsureScopedRoom,
		room.Name, room.Description, room.Kind, room.IsPrivate, room.CreatedBy, room.MaxMembers, room.ScopeKey)
	if err != nil {
		return nil, mapPgError(err)
	}
	rm, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[domain.Room])
	if err != nil {
		return nil, mapPgError(err)
	}
	return &rm, nil
}

// CreateDirect delegates to create_direct_chat, which keys rooms on the
// unordered user pair and adds both memberships.
func (r *RoomRepository) CreateDirect(ctx context.Context, actorID, otherID string) (string, error) {
	var id string
	if err := r.db.QueryRow(ctx, queryCreateDirect, actorID, otherID).Scan(&id); err != nil {
		return "", mapPgError(err)
	}
	return id, nil
}

// Delete removes the room row only; used to compensate a half-created room.
func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, queryDeleteRoom, id)
	return mapPgError(err)
}

// DeleteCascade removes reactions, messages, memberships, typing rows and the
// room in one transaction.
func (r *RoomRepository) DeleteCascade(ctx context.Context, id string) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, q := range []string{
			queryDeleteRoomReactions,
			queryDeleteRoomMessages,
			queryDeleteRoomMembers,
			queryDeleteRoomTyping,
		} {
			if _, err := tx.Exec(ctx, q, id); err != nil {
				return mapPgError(err)
			}
		}

		cmd, err := tx.Exec(ctx, queryDeleteRoom, id)
		if err != nil {
			return mapPgError(err)
		}
		if cmd.RowsAffected() == 0 {
			return domain.ErrRoomNotFound
		}
		return nil
	})
}
