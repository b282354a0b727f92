package domain

import "time"

// TypingState is ephemeral: refreshed per keystroke, removed on stop and swept after a TTL.
type TypingState struct {
	UserID    string    `db:"user_id" json:"user_id"`
	RoomID    string    `db:"room_id" json:"room_id"`
	StartedAt time.Time `db:"started_at" json:"started_at"`
}
