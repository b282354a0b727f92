package errs

import (
	"errors"
	"net/http"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

// Codes shared by the HTTP error body and WebSocket error events.
const (
	CodeAuthRequired     = "auth_required"
	CodeInvalidInput     = "invalid_input"
	CodeNotFound         = "not_found"
	CodePermissionDenied = "permission_denied"
	CodeConflict         = "conflict"
	CodeRoomFull         = "room_full"
	CodeMessageDeleted   = "message_deleted"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

func Code(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuthRequired):
		return CodeAuthRequired
	case errors.Is(err, domain.ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, domain.ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, domain.ErrConflict):
		return CodeConflict
	case errors.Is(err, domain.ErrMessageDeleted):
		return CodeMessageDeleted
	case errors.Is(err, domain.ErrTransport):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

func ToHTTP(err error) int {
	switch Code(err) {
	case CodeAuthRequired:
		return http.StatusUnauthorized
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeConflict, CodeRoomFull:
		return http.StatusConflict
	case CodeMessageDeleted:
		return http.StatusGone
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message is safe to show to clients; internal causes are not exposed.
func Message(err error) string {
	switch Code(err) {
	case CodeInternal:
		return "internal error"
	case CodeUnavailable:
		return "service unavailable"
	default:
		return err.Error()
	}
}
