package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/internal/service"
	"github.com/cwrk-planet/chat-service/internal/transport/errs"
)

const (
	tokenAnn = "token-ann"
	userAnn  = "0b6f5d0c-7a31-4b2d-9f0e-1a2b3c4d5e6f"
)

type fakeVerifier struct{}

func (fakeVerifier) Verify(token string) (string, error) {
	if token == tokenAnn {
		return userAnn, nil
	}
	return "", security.ErrInvalidToken
}

type fakeRooms struct {
	summaries []domain.RoomSummary
	group     *domain.Room
	gotGroup  service.GroupInput
	directErr error
	deleteErr error
}

func (f *fakeRooms) Rooms(context.Context, string) ([]domain.RoomSummary, error) {
	return f.summaries, nil
}

func (f *fakeRooms) CreateGroup(_ context.Context, in service.GroupInput) (*domain.Room, error) {
	f.gotGroup = in
	return f.group, nil
}

func (f *fakeRooms) CreateDirect(_ context.Context, a, b string) (string, error) {
	if f.directErr != nil {
		return "", f.directErr
	}
	return "direct-" + b, nil
}

func (f *fakeRooms) DeleteRoom(context.Context, string, string) error { return f.deleteErr }

func (f *fakeRooms) Members(context.Context, string, string) ([]domain.Membership, error) {
	return []domain.Membership{{UserID: userAnn, IsAdmin: true}}, nil
}

type fakeMessages struct {
	page    []domain.Message
	offset  int
	limit   int
	sent    domain.SendInput
	editErr error
}

func (f *fakeMessages) PageSize() int { return 50 }

func (f *fakeMessages) Fetch(_ context.Context, _, _ string, offset, limit int) ([]domain.Message, error) {
	f.offset, f.limit = offset, limit
	return f.page, nil
}

func (f *fakeMessages) Send(_ context.Context, in domain.SendInput) (*domain.Message, error) {
	f.sent = in
	return &domain.Message{ID: "m1", RoomID: in.RoomID, SenderID: in.SenderID, Text: in.Text}, nil
}

func (f *fakeMessages) Edit(_ context.Context, _, id, text string) (*domain.Message, error) {
	if f.editErr != nil {
		return nil, f.editErr
	}
	return &domain.Message{ID: id, Text: text, IsEdited: true}, nil
}

func (f *fakeMessages) Delete(_ context.Context, _, id string) (*domain.Message, error) {
	return &domain.Message{ID: id, IsDeleted: true}, nil
}

type recordingNotifier struct {
	mu         sync.Mutex
	recipients []string
}

func (n *recordingNotifier) MessageSent(_ context.Context, _ domain.Message, ids []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recipients = ids
}

func newTestRouter(rooms *fakeRooms, msgs *fakeMessages, n *recordingNotifier) http.Handler {
	return NewRouter(Deps{
		Handler:  NewHandler(rooms, msgs, n),
		Verifier: fakeVerifier{},
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, RouterConfig{AllowedOrigins: []string{"http://localhost:5173"}})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+tokenAnn)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_RequiresToken(t *testing.T) {
	h := newTestRouter(&fakeRooms{}, &fakeMessages{}, nil)

	for _, header := range []string{"", "Bearer nope", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%q: want 401, got %d", header, rec.Code)
		}
	}
}

func TestRouter_Healthz(t *testing.T) {
	h := NewRouter(Deps{
		Handler:  NewHandler(&fakeRooms{}, &fakeMessages{}, nil),
		Verifier: fakeVerifier{},
		Health:   func(context.Context) error { return errors.New("db down") },
	}, RouterConfig{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", rec.Code)
	}
}

func TestListRooms(t *testing.T) {
	rooms := &fakeRooms{summaries: []domain.RoomSummary{{
		Room:        domain.Room{ID: "r1", Name: "General", Kind: domain.RoomKindGroup},
		MemberCount: 3,
		LastMessage: &domain.LastMessage{SenderName: "Ann", Text: "hi", CreatedAt: time.Now()},
	}}}
	rec := do(t, newTestRouter(rooms, &fakeMessages{}, nil), http.MethodGet, "/rooms", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Data []RoomItem `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 || resp.Data[0].MemberCount != 3 || resp.Data[0].LastMessage.Text != "hi" {
		t.Fatalf("unexpected body %s", rec.Body)
	}
}

func TestCreateGroup_UsesTokenSubject(t *testing.T) {
	rooms := &fakeRooms{group: &domain.Room{ID: "g1", Name: "Team", Kind: domain.RoomKindGroup}}
	rec := do(t, newTestRouter(rooms, &fakeMessages{}, nil), http.MethodPost, "/rooms",
		CreateGroupRequest{Name: "Team", MemberIDs: []string{"u2"}})

	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d", rec.Code)
	}
	if rooms.gotGroup.CreatorID != userAnn {
		t.Fatalf("creator must come from the token, got %q", rooms.gotGroup.CreatorID)
	}
}

func TestCreateDirect_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"ok", nil, http.StatusOK, ""},
		{"self", domain.Invalid("direct room needs two distinct users"), http.StatusBadRequest, errs.CodeInvalidInput},
		{"backend down", domain.Transport(errors.New("dial tcp")), http.StatusServiceUnavailable, errs.CodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms := &fakeRooms{directErr: tt.err}
			rec := do(t, newTestRouter(rooms, &fakeMessages{}, nil), http.MethodPost, "/rooms/direct",
				CreateDirectRequest{UserID: "u2"})
			if rec.Code != tt.status {
				t.Fatalf("want %d, got %d", tt.status, rec.Code)
			}
			if tt.code == "" {
				return
			}
			var resp ErrorResponse
			_ = json.Unmarshal(rec.Body.Bytes(), &resp)
			if resp.Error.Code != tt.code {
				t.Fatalf("want code %s, got %+v", tt.code, resp)
			}
		})
	}
}

func TestDeleteRoom(t *testing.T) {
	rec := do(t, newTestRouter(&fakeRooms{}, &fakeMessages{}, nil), http.MethodDelete, "/rooms/r1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("want 204, got %d", rec.Code)
	}

	rec = do(t, newTestRouter(&fakeRooms{deleteErr: domain.ErrPermissionDenied}, &fakeMessages{}, nil),
		http.MethodDelete, "/rooms/r1", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("want 403, got %d", rec.Code)
	}
}

func TestMessages_Pagination(t *testing.T) {
	msgs := &fakeMessages{page: []domain.Message{{ID: "a"}, {ID: "b"}}}
	rec := do(t, newTestRouter(&fakeRooms{}, msgs, nil), http.MethodGet, "/rooms/r1/messages?offset=50&limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if msgs.offset != 50 || msgs.limit != 2 {
		t.Fatalf("unexpected paging %d/%d", msgs.offset, msgs.limit)
	}
	var resp struct {
		Data MessagesResponse `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Data.HasMore {
		t.Fatal("full page must report has_more")
	}

	// limits above the cap are served as capped pages
	full := &fakeMessages{page: make([]domain.Message, domain.MaxPageSize)}
	rec = do(t, newTestRouter(&fakeRooms{}, full, nil), http.MethodGet, "/rooms/r1/messages?limit=200", nil)
	if full.limit != domain.MaxPageSize {
		t.Fatalf("limit not capped: %d", full.limit)
	}
	resp.Data = MessagesResponse{}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Data.HasMore {
		t.Fatal("capped full page must report has_more")
	}

	rec = do(t, newTestRouter(&fakeRooms{}, msgs, nil), http.MethodGet, "/rooms/r1/messages?offset=x", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestSendMessage_NotifiesRecipients(t *testing.T) {
	msgs := &fakeMessages{}
	n := &recordingNotifier{}
	rec := do(t, newTestRouter(&fakeRooms{}, msgs, n), http.MethodPost, "/rooms/r1/messages",
		SendMessageRequest{Text: "hello", RecipientIDs: []string{"u2"}})

	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d", rec.Code)
	}
	if msgs.sent.RoomID != "r1" || msgs.sent.SenderID != userAnn {
		t.Fatalf("unexpected send input %+v", msgs.sent)
	}
	if len(n.recipients) != 1 || n.recipients[0] != "u2" {
		t.Fatalf("notifier not called: %v", n.recipients)
	}
}

func TestEditMessage_NotSender(t *testing.T) {
	msgs := &fakeMessages{editErr: domain.ErrPermissionDenied}
	rec := do(t, newTestRouter(&fakeRooms{}, msgs, nil), http.MethodPatch, "/messages/m1", EditMessageRequest{Text: "x"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("want 403, got %d", rec.Code)
	}
}

func TestInvalidJSON(t *testing.T) {
	h := newTestRouter(&fakeRooms{}, &fakeMessages{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/rooms", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+tokenAnn)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}
