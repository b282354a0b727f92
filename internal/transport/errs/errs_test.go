package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

func TestToHTTP(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrAuthRequired, http.StatusUnauthorized, CodeAuthRequired},
		{domain.Invalid("bad"), http.StatusBadRequest, CodeInvalidInput},
		{fmt.Errorf("load: %w", domain.ErrRoomNotFound), http.StatusNotFound, CodeNotFound},
		{domain.ErrNotInRoom, http.StatusForbidden, CodePermissionDenied},
		{domain.ErrRoomFull, http.StatusConflict, CodeRoomFull},
		{domain.ErrMessageDeleted, http.StatusGone, CodeMessageDeleted},
		{domain.Transport(errors.New("dial tcp")), http.StatusServiceUnavailable, CodeUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := ToHTTP(tt.err); got != tt.status {
				t.Fatalf("status: want %d, got %d", tt.status, got)
			}
			if got := Code(tt.err); got != tt.code {
				t.Fatalf("code: want %s, got %s", tt.code, got)
			}
		})
	}
}

func TestMessage_HidesInternals(t *testing.T) {
	if got := Message(domain.Transport(errors.New("password=secret"))); got != "service unavailable" {
		t.Fatalf("transport cause leaked: %q", got)
	}
	if got := Message(domain.ErrRoomNotFound); got != "room not found" {
		t.Fatalf("unexpected %q", got)
	}
}
