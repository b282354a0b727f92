package httpmw

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cwrk-planet/chat-service/internal/logger"

	"github.com/go-chi/chi/v5/middleware"
)

// Logging puts a request-scoped logger (with the chi request id) into the
// context and logs method, path, status and duration once the request ends.
func Logging(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			l := base.With(slog.String("req_id", middleware.GetReqID(r.Context())))
			ctx := logger.WithContext(r.Context(), l)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.FromContext(ctx).Log(ctx, level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
