package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/access"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/logger"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/internal/session"
	"github.com/cwrk-planet/chat-service/internal/timeline"
	"github.com/cwrk-planet/chat-service/internal/transport/errs"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}

type Config struct {
	AllowedOrigins []string
	PageSize       int
	TypingTimeout  time.Duration
	TypingTTL      time.Duration
}

// Server hosts one session.Session per connection.
type Server struct {
	upgrader websocket.Upgrader
	verifier TokenVerifier
	deps     session.Deps
	cfg      Config
	log      *slog.Logger

	pingEvery time.Duration
}

func NewServer(verifier TokenVerifier, deps session.Deps, cfg Config, log *slog.Logger) *Server {
	s := &Server{
		verifier:  verifier,
		deps:      deps,
		cfg:       cfg,
		log:       log,
		pingEvery: 15 * time.Second,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 || lo.Contains(s.cfg.AllowedOrigins, "*") {
		return true
	}
	return lo.Contains(s.cfg.AllowedOrigins, origin)
}

// ServeHTTP handles GET /ws?access_token=...
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if token == "" {
		token, _ = security.BearerToken(r.Header.Get("Authorization"))
	}
	userID, err := s.verifier.Verify(token)
	if err != nil {
		http.Error(w, "missing or invalid access_token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", slog.Any("err", err))
		return
	}

	log := s.log.With(slog.String("user_id", userID), slog.String("conn_id", uuid.NewString()))
	cache := access.NewCache()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	ctx = access.WithCache(ctx, cache)
	ctx = logger.WithContext(ctx, log)

	c := newWsConn(conn, log)
	sess := session.New(s.deps, session.Config{
		UserID:        userID,
		PageSize:      s.cfg.PageSize,
		TypingTimeout: s.cfg.TypingTimeout,
		TypingTTL:     s.cfg.TypingTTL,
		Cache:         cache,
		Log:           log,
	}, c)

	log.Debug("ws connected")
	go s.writeLoop(ctx, c)

	var inflight sync.WaitGroup
	s.readLoop(ctx, c, sess, &inflight)
	inflight.Wait()

	sess.Close(context.WithoutCancel(ctx))
	if err := c.Close(); err != nil {
		log.Debug("ws close failed", slog.Any("err", err))
	}
	log.Debug("ws disconnected")
}

func (s *Server) readLoop(ctx context.Context, c *wsConn, sess *session.Session, inflight *sync.WaitGroup) {
	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("ws read failed", slog.Any("err", err))
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.fail("", domain.Invalid("malformed command"))
			continue
		}

		switch cmd.Type {
		case TypeSend, TypeEdit, TypeDelete:
			// writes may outlive a room switch; the timeline drops stale results
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				s.handle(ctx, c, sess, cmd)
			}()
		default:
			s.handle(ctx, c, sess, cmd)
		}
	}
}

func (s *Server) handle(ctx context.Context, c *wsConn, sess *session.Session, cmd Command) {
	result, err := s.dispatch(ctx, sess, cmd)
	if err != nil {
		c.fail(cmd.ID, err)
		return
	}
	c.emit(Event{Type: TypeAck, ID: cmd.ID, Payload: result})
}

func (s *Server) dispatch(ctx context.Context, sess *session.Session, cmd Command) (any, error) {
	switch cmd.Type {
	case TypeOpenRoom:
		var p OpenRoomPayload
		if err := decode(cmd.Payload, &p); err != nil {
			return nil, err
		}
		return nil, sess.Open(ctx, p.RoomID)

	case TypeLoadMore:
		return nil, sess.LoadMore(ctx)

	case TypeSend:
		var p SendPayload
		if err := decode(cmd.Payload, &p); err != nil {
			return nil, err
		}
		return sess.Send(ctx, timeline.SendRequest{
			Text:         p.Text,
			Kind:         p.Kind,
			FileURL:      p.FileURL,
			ReplyToID:    p.ReplyToID,
			RecipientIDs: p.RecipientIDs,
		})

	case TypeEdit:
		var p EditPayload
		if err := decode(cmd.Payload, &p); err != nil {
			return nil, err
		}
		return sess.Edit(ctx, p.MessageID, p.Text)

	case TypeDelete:
		var p DeletePayload
		if err := decode(cmd.Payload, &p); err != nil {
			return nil, err
		}
		return sess.Delete(ctx, p.MessageID)

	case TypeTypingStart:
		return nil, sess.StartTyping(ctx)

	case TypeTypingStop:
		return nil, sess.StopTyping(ctx)

	default:
		return nil, domain.Invalid("unknown command %q", cmd.Type)
	}
}

func (s *Server) writeLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.log.Debug("ws ping failed", slog.Any("err", err))
			}
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return domain.Invalid("payload is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.Invalid("malformed payload")
	}
	return nil
}

type wsConn struct {
	conn   *websocket.Conn
	log    *slog.Logger
	sendMu chan struct{}
	closed chan struct{}
	once   sync.Once
}

func newWsConn(c *websocket.Conn, log *slog.Logger) *wsConn {
	return &wsConn{
		conn:   c,
		log:    log,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(ev Event) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteJSON(ev)
}

func (c *wsConn) ping() error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// emit is best-effort; a dead socket is noticed by the read loop.
func (c *wsConn) emit(ev Event) {
	if err := c.Send(ev); err != nil {
		c.log.Debug("ws write failed", slog.String("type", ev.Type), slog.Any("err", err))
	}
}

func (c *wsConn) fail(id string, err error) {
	if errs.ToHTTP(err) >= http.StatusInternalServerError {
		c.log.Warn("ws command failed", slog.String("id", id), slog.Any("err", err))
	}
	c.emit(Event{Type: TypeError, ID: id, Payload: ErrorPayload{Code: errs.Code(err), Message: errs.Message(err)}})
}

// Timeline and Typing make wsConn a session.Sink.
func (c *wsConn) Timeline(v timeline.View) {
	c.emit(Event{Type: TypeTimeline, Payload: v})
}

func (c *wsConn) Typing(roomID string, users []string) {
	if users == nil {
		users = []string{}
	}
	c.emit(Event{Type: TypeTyping, Payload: TypingPayload{RoomID: roomID, UserIDs: users}})
}

func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return c.conn.Close()
}
