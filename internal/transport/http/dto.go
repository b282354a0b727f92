package http

import (
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/samber/lo"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type DataResponse struct {
	Data any `json:"data"`
}

type CreateGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	MemberIDs   []string `json:"member_ids"`
	IsPrivate   bool     `json:"is_private"`
	MaxMembers  int64    `json:"max_members"`
}

type CreateDirectRequest struct {
	UserID string `json:"user_id"`
}

type CreateDirectResponse struct {
	RoomID string `json:"room_id"`
}

type SendMessageRequest struct {
	Text         string             `json:"text"`
	Kind         domain.MessageKind `json:"kind"`
	FileURL      *string            `json:"file_url"`
	ReplyToID    *string            `json:"reply_to_id"`
	ClientID     *string            `json:"client_id"`
	RecipientIDs []string           `json:"recipient_ids"`
}

type EditMessageRequest struct {
	Text string `json:"text"`
}

type LastMessageItem struct {
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

type RoomItem struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Kind        domain.RoomKind  `json:"kind"`
	IsPrivate   bool             `json:"is_private"`
	CreatedBy   string           `json:"created_by"`
	MaxMembers  int64            `json:"max_members"`
	MemberCount int              `json:"member_count"`
	LastMessage *LastMessageItem `json:"last_message,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type MemberItem struct {
	UserID   string    `json:"user_id"`
	IsAdmin  bool      `json:"is_admin"`
	JoinedAt time.Time `json:"joined_at"`
}

type MessagesResponse struct {
	Items   []domain.Message `json:"items"`
	HasMore bool             `json:"has_more"`
}

func toRoomItem(r domain.Room) RoomItem {
	return RoomItem{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Kind:        r.Kind,
		IsPrivate:   r.IsPrivate,
		CreatedBy:   r.CreatedBy,
		MaxMembers:  r.MaxMembers,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toSummaryItems(list []domain.RoomSummary) []RoomItem {
	return lo.Map(list, func(s domain.RoomSummary, _ int) RoomItem {
		it := toRoomItem(s.Room)
		it.MemberCount = s.MemberCount
		if lm := s.LastMessage; lm != nil {
			it.LastMessage = &LastMessageItem{
				SenderID:   lm.SenderID,
				SenderName: lm.SenderName,
				Text:       lm.Text,
				CreatedAt:  lm.CreatedAt,
			}
		}
		return it
	})
}

func toMemberItems(list []domain.Membership) []MemberItem {
	return lo.Map(list, func(m domain.Membership, _ int) MemberItem {
		return MemberItem{UserID: m.UserID, IsAdmin: m.IsAdmin, JoinedAt: m.JoinedAt}
	})
}
