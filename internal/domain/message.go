package domain

import (
	"sort"
	"time"
)

type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindImage  MessageKind = "image"
	MessageKindFile   MessageKind = "file"
	MessageKindVoice  MessageKind = "voice"
	MessageKindSystem MessageKind = "system"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindImage, MessageKindFile, MessageKindVoice, MessageKindSystem:
		return true
	}
	return false
}

// MaxPageSize bounds every message page, whatever the caller asked for.
const MaxPageSize = 100

// PageLimit resolves a requested page size: non-positive means def, and the
// result never exceeds MaxPageSize.
func PageLimit(requested, def int) int {
	if requested <= 0 {
		requested = def
	}
	return min(requested, MaxPageSize)
}

type Message struct {
	ID        string      `db:"id" json:"id"`
	RoomID    string      `db:"room_id" json:"room_id"`
	SenderID  string      `db:"sender_id" json:"sender_id"`
	Text      string      `db:"text" json:"text"`
	Kind      MessageKind `db:"kind" json:"kind"`
	FileURL   *string     `db:"file_url" json:"file_url,omitempty"`
	ReplyToID *string     `db:"reply_to_id" json:"reply_to_id,omitempty"`
	ClientID  *string     `db:"client_id" json:"client_id,omitempty"`
	IsEdited  bool        `db:"is_edited" json:"is_edited"`
	EditedAt  *time.Time  `db:"edited_at" json:"edited_at,omitempty"`
	IsDeleted bool        `db:"is_deleted" json:"is_deleted"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

// SendInput is what a sender supplies; ids and timestamps are assigned by storage.
type SendInput struct {
	RoomID    string
	SenderID  string
	Text      string
	Kind      MessageKind
	FileURL   *string
	ReplyToID *string
	ClientID  *string
}

// MessageBefore is the display order: created_at ascending, ties broken by id.
func MessageBefore(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func SortMessages(ms []Message) {
	sort.SliceStable(ms, func(i, j int) bool { return MessageBefore(ms[i], ms[j]) })
}
