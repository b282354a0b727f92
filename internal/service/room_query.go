package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// FallbackRoomQuery runs Primary and switches to Fallback only when Primary
// reports ErrAmbiguousRelationship. Any other error is returned as is.
type FallbackRoomQuery struct {
	Primary  RoomQuery
	Fallback RoomQuery

	log       *slog.Logger
	fallbacks metric.Int64Counter
}

func NewFallbackRoomQuery(primary, fallback RoomQuery, log *slog.Logger) *FallbackRoomQuery {
	fallbacks, _ := otel.Meter("chat-service").Int64Counter("chat_room_query_fallbacks_total",
		metric.WithDescription("Room list queries served by the fallback strategy"))
	return &FallbackRoomQuery{Primary: primary, Fallback: fallback, log: log, fallbacks: fallbacks}
}

func (q *FallbackRoomQuery) ListForUser(ctx context.Context, userID string) ([]domain.RoomSummary, error) {
	list, err := q.Primary.ListForUser(ctx, userID)
	if err == nil {
		return list, nil
	}
	if !errors.Is(err, domain.ErrAmbiguousRelationship) || q.Fallback == nil {
		return nil, err
	}

	if q.log != nil {
		q.log.WarnContext(ctx, "room query ambiguous, using fallback", slog.Any("err", err))
	}
	if q.fallbacks != nil {
		q.fallbacks.Add(ctx, 1)
	}
	return q.Fallback.ListForUser(ctx, userID)
}

// sortSummaries orders by last activity, newest first, then by id.
func sortSummaries(list []domain.RoomSummary) {
	sort.SliceStable(list, func(i, j int) bool {
		ai, aj := list[i].LastActivity(), list[j].LastActivity()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return list[i].ID < list[j].ID
	})
}
