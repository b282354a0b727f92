package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/logger"
	"github.com/cwrk-planet/chat-service/internal/service"
	"github.com/cwrk-planet/chat-service/internal/transport/errs"
	httpmw "github.com/cwrk-planet/chat-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
)

type Rooms interface {
	Rooms(ctx context.Context, userID string) ([]domain.RoomSummary, error)
	CreateGroup(ctx context.Context, in service.GroupInput) (*domain.Room, error)
	CreateDirect(ctx context.Context, userA, userB string) (string, error)
	DeleteRoom(ctx context.Context, roomID, actorID string) error
	Members(ctx context.Context, roomID, actorID string) ([]domain.Membership, error)
}

type Messages interface {
	PageSize() int
	Fetch(ctx context.Context, actorID, roomID string, offset, limit int) ([]domain.Message, error)
	Send(ctx context.Context, in domain.SendInput) (*domain.Message, error)
	Edit(ctx context.Context, actorID, messageID, text string) (*domain.Message, error)
	Delete(ctx context.Context, actorID, messageID string) (*domain.Message, error)
}

type Notifier interface {
	MessageSent(ctx context.Context, m domain.Message, recipientIDs []string)
}

type Handler struct {
	rooms    Rooms
	messages Messages
	notifier Notifier
}

func NewHandler(rooms Rooms, messages Messages, notifier Notifier) *Handler {
	return &Handler{rooms: rooms, messages: messages, notifier: notifier}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errs.ToHTTP(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorContext(r.Context(), op, slog.Any("err", err))
	}
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: errs.Code(err), Message: errs.Message(err)}})
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Invalid("invalid json")
	}
	return nil
}

// GET /rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	uid := httpmw.UserIDFromCtx(r.Context())
	list, err := h.rooms.Rooms(r.Context(), uid)
	if err != nil {
		writeError(w, r, "handler.ListRooms", err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: toSummaryItems(list)})
}

// POST /rooms
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "handler.CreateGroup", err)
		return
	}
	room, err := h.rooms.CreateGroup(r.Context(), service.GroupInput{
		Name:        req.Name,
		Description: req.Description,
		CreatorID:   httpmw.UserIDFromCtx(r.Context()),
		MemberIDs:   req.MemberIDs,
		IsPrivate:   req.IsPrivate,
		MaxMembers:  req.MaxMembers,
	})
	if err != nil {
		writeError(w, r, "handler.CreateGroup", err)
		return
	}
	writeJSON(w, http.StatusCreated, DataResponse{Data: toRoomItem(*room)})
}

// POST /rooms/direct
func (h *Handler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	var req CreateDirectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "handler.CreateDirect", err)
		return
	}
	id, err := h.rooms.CreateDirect(r.Context(), httpmw.UserIDFromCtx(r.Context()), req.UserID)
	if err != nil {
		writeError(w, r, "handler.CreateDirect", err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: CreateDirectResponse{RoomID: id}})
}

// DELETE /rooms/{id}
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	err := h.rooms.DeleteRoom(r.Context(), chi.URLParam(r, "id"), httpmw.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, r, "handler.DeleteRoom", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /rooms/{id}/members
func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	list, err := h.rooms.Members(r.Context(), chi.URLParam(r, "id"), httpmw.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, r, "handler.Members", err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: toMemberItems(list)})
}

// GET /rooms/{id}/messages?offset=&limit=
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	offset, limit := 0, h.messages.PageSize()
	q := r.URL.Query()
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, r, "handler.Messages", domain.Invalid("offset must be a number"))
			return
		}
		offset = n
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, r, "handler.Messages", domain.Invalid("limit must be a number"))
			return
		}
		limit = n
	}
	// has_more compares against what the service will actually return
	limit = domain.PageLimit(limit, h.messages.PageSize())

	items, err := h.messages.Fetch(r.Context(), httpmw.UserIDFromCtx(r.Context()), chi.URLParam(r, "id"), offset, limit)
	if err != nil {
		writeError(w, r, "handler.Messages", err)
		return
	}
	if items == nil {
		items = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: MessagesResponse{
		Items:   items,
		HasMore: len(items) == limit,
	}})
}

// POST /rooms/{id}/messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "handler.SendMessage", err)
		return
	}
	m, err := h.messages.Send(r.Context(), domain.SendInput{
		RoomID:    chi.URLParam(r, "id"),
		SenderID:  httpmw.UserIDFromCtx(r.Context()),
		Text:      req.Text,
		Kind:      req.Kind,
		FileURL:   req.FileURL,
		ReplyToID: req.ReplyToID,
		ClientID:  req.ClientID,
	})
	if err != nil {
		writeError(w, r, "handler.SendMessage", err)
		return
	}
	if h.notifier != nil && len(req.RecipientIDs) > 0 {
		h.notifier.MessageSent(r.Context(), *m, req.RecipientIDs)
	}
	writeJSON(w, http.StatusCreated, DataResponse{Data: m})
}

// PATCH /messages/{id}
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	var req EditMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "handler.EditMessage", err)
		return
	}
	m, err := h.messages.Edit(r.Context(), httpmw.UserIDFromCtx(r.Context()), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeError(w, r, "handler.EditMessage", err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: m})
}

// DELETE /messages/{id}
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	m, err := h.messages.Delete(r.Context(), httpmw.UserIDFromCtx(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "handler.DeleteMessage", err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: m})
}
