package httpmw

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cwrk-planet/chat-service/internal/access"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/internal/transport/errs"
)

type ctxKey string

const ctxKeyUserID ctxKey = "user_id"

type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}

// Auth requires a valid Bearer access token. The token subject becomes the
// request user, and each request gets its own permission cache.
func Auth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := security.BearerToken(r.Header.Get("Authorization"))
			if err == nil {
				var uid string
				if uid, err = v.Verify(token); err == nil {
					ctx := context.WithValue(r.Context(), ctxKeyUserID, uid)
					ctx = access.WithCache(ctx, access.NewCache())
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"code": errs.CodeAuthRequired, "message": "missing or invalid access token"},
			})
		})
	}
}

func UserIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return v
	}
	return ""
}

// WithUserID is used by tests and by transports that authenticate elsewhere.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}
