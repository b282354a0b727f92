package ws

import (
	"encoding/json"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

// Client commands.
const (
	TypeOpenRoom    = "open_room"
	TypeLoadMore    = "load_more"
	TypeSend        = "send"
	TypeEdit        = "edit"
	TypeDelete      = "delete"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
)

// Server events.
const (
	TypeTimeline = "timeline" // full view of the open room
	TypeTyping   = "typing"   // other users typing in the open room
	TypeAck      = "ack"      // command finished; id echoes the command id
	TypeError    = "error"
)

type Command struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Event struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type OpenRoomPayload struct {
	RoomID string `json:"room_id"`
}

type SendPayload struct {
	Text         string             `json:"text"`
	Kind         domain.MessageKind `json:"kind"`
	FileURL      *string            `json:"file_url"`
	ReplyToID    *string            `json:"reply_to_id"`
	RecipientIDs []string           `json:"recipient_ids"`
}

type EditPayload struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

type DeletePayload struct {
	MessageID string `json:"message_id"`
}

type TypingPayload struct {
	RoomID  string   `json:"room_id"`
	UserIDs []string `json:"user_ids"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
