package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	httpmw "github.com/cwrk-planet/chat-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type Deps struct {
	Handler  *Handler
	Verifier httpmw.TokenVerifier
	WS       http.Handler
	Health   func(ctx context.Context) error
	Log      *slog.Logger
}

func NewRouter(d Deps, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httpmw.Logging(d.Log))
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WS authenticates with the access_token query parameter
	if d.WS != nil {
		r.Method(http.MethodGet, "/ws", d.WS)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.Auth(d.Verifier))
		pr.Use(middlewareChi.Timeout(cfg.RequestTimeout))

		h := d.Handler
		pr.Route("/rooms", func(rm chi.Router) {
			rm.Get("/", h.ListRooms)
			rm.Post("/", h.CreateGroup)
			rm.Post("/direct", h.CreateDirect)

			rm.Route("/{id}", func(rr chi.Router) {
				rr.Delete("/", h.DeleteRoom)
				rr.Get("/members", h.Members)
				rr.Get("/messages", h.Messages)
				rr.Post("/messages", h.SendMessage)
			})
		})
		pr.Route("/messages/{id}", func(mr chi.Router) {
			mr.Patch("/", h.EditMessage)
			mr.Delete("/", h.DeleteMessage)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			if err := d.Health(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
