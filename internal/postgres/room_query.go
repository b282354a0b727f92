package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// JoinedRoomsQuery lists a user's rooms with counts and previews in one statement.
type JoinedRoomsQuery struct {
	db *pgxpool.Pool
}

func NewJoinedRoomsQuery(db *pgxpool.Pool) *JoinedRoomsQuery {
	return &JoinedRoomsQuery{db: db}
}

func (q *JoinedRoomsQuery) ListForUser(ctx context.Context, userID string) ([]domain.RoomSummary, error) {
	rows, err := q.db.Query(ctx, queryJoinedRooms, userID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	out := make([]domain.RoomSummary, 0, 16)
	for rows.Next() {
		var (
			s          domain.RoomSummary
			senderID   *string
			senderName *string
			text       *string
			sentAt     *time.Time
		)
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Description, &s.Kind, &s.IsPrivate, &s.CreatedBy, &s.MaxMembers,
			&s.IsActive, &s.ScopeKey, &s.CreatedAt, &s.UpdatedAt,
			&s.MemberCount,
			&senderID, &senderName, &text, &sentAt,
		); err != nil {
			return nil, mapPgError(err)
		}
		if senderID != nil && sentAt != nil {
			s.LastMessage = &domain.LastMessage{
				SenderID:   *senderID,
				SenderName: (&domain.Profile{DisplayName: senderName}).Name(),
				Text:       lo.FromPtr(text),
				CreatedAt:  *sentAt,
			}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

// TwoStepRoomsQuery avoids joins entirely: membership ids first, then rooms,
// then per-room count and last message.
type TwoStepRoomsQuery struct {
	db       *pgxpool.Pool
	profiles *ProfileRepository
	limit    int
}

func NewTwoStepRoomsQuery(db *pgxpool.Pool, profiles *ProfileRepository) *TwoStepRoomsQuery {
	return &TwoStepRoomsQuery{db: db, profiles: profiles, limit: 8}
}

func (q *TwoStepRoomsQuery) ListForUser(ctx context.Context, userID string) ([]domain.RoomSummary, error) {
	rows, err := q.db.Query(ctx, queryMemberRoomIDs, userID)
	if err != nil {
		return nil, mapPgError(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapPgError(err)
	}
	if len(ids) == 0 {
		return []domain.RoomSummary{}, nil
	}

	rows, err = q.db.Query(ctx, queryRoomsByIDs, ids)
	if err != nil {
		return nil, mapPgError(err)
	}
	rooms, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.Room])
	if err != nil {
		return nil, mapPgError(err)
	}

	out := make([]domain.RoomSummary, len(rooms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.limit)
	for i, rm := range rooms {
		i, rm := i, rm
		out[i].Room = rm
		g.Go(func() error {
			if err := q.db.QueryRow(gctx, queryCountMembers, rm.ID).Scan(&out[i].MemberCount); err != nil {
				return mapPgError(err)
			}
			last, err := q.lastMessage(gctx, rm.ID)
			if err != nil {
				return err
			}
			out[i].LastMessage = last
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	senders := lo.Uniq(lo.FilterMap(out, func(s domain.RoomSummary, _ int) (string, bool) {
		if s.LastMessage == nil {
			return "", false
		}
		return s.LastMessage.SenderID, true
	}))
	profiles, err := q.profiles.GetMany(ctx, senders)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if lm := out[i].LastMessage; lm != nil {
			lm.SenderName = profiles[lm.SenderID].Name()
		}
	}
	return out, nil
}

func (q *TwoStepRoomsQuery) lastMessage(ctx context.Context, roomID string) (*domain.LastMessage, error) {
	var lm domain.LastMessage
	err := q.db.QueryRow(ctx, queryLastMessage, roomID).Scan(&lm.SenderID, &lm.Text, &lm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapPgError(err)
	}
	return &lm, nil
}
