package realtime

import (
	"context"
	"encoding/json"
	"fmt"
)

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

const (
	TableMessages = "messages"
	TableTyping   = "typing_indicators"
)

// Change is one row-level event of a table, scoped to a room.
type Change struct {
	Table  string          `json:"table"`
	Op     Op              `json:"op"`
	RoomID string          `json:"room_id"`
	Record json.RawMessage `json:"record"`
}

func NewChange(table string, op Op, roomID string, record any) (Change, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Change{}, fmt.Errorf("marshal %s record: %w", table, err)
	}
	return Change{Table: table, Op: op, RoomID: roomID, Record: raw}, nil
}

type Handler func(ctx context.Context, c Change)

type Subscription interface {
	Unsubscribe() error
}

// Feed carries change events between writers and the sessions watching a room.
type Feed interface {
	Publish(ctx context.Context, c Change) error
	Subscribe(table, roomID string, fn Handler) (Subscription, error)
}
