package domain

import "time"

type RoomKind string

const (
	RoomKindDirect RoomKind = "direct"
	RoomKindGroup  RoomKind = "group"
)

type Room struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Kind        RoomKind  `db:"kind"`
	IsPrivate   bool      `db:"is_private"`
	CreatedBy   string    `db:"created_by"`
	MaxMembers  int64     `db:"max_members"`
	IsActive    bool      `db:"is_active"`
	ScopeKey    *string   `db:"scope_key"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// LastMessage is the preview shown next to a room in the room list.
type LastMessage struct {
	SenderID   string
	SenderName string
	Text       string
	CreatedAt  time.Time
}

type RoomSummary struct {
	Room
	MemberCount int
	LastMessage *LastMessage
}

// LastActivity is the newest of the last message time and the room update time.
func (s RoomSummary) LastActivity() time.Time {
	if s.LastMessage != nil && s.LastMessage.CreatedAt.After(s.UpdatedAt) {
		return s.LastMessage.CreatedAt
	}
	return s.UpdatedAt
}
