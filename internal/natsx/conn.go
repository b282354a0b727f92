package natsx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

type Config struct {
	URL           string
	User          string
	Password      string
	Name          string
	ConnectTries  int
	ReconnectWait time.Duration
}

// Connect dials NATS, retrying the initial connection. Once connected the
// client reconnects forever on its own.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", slog.Any("err", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.ConnectTries; attempt++ {
		nc, err := nats.Connect(cfg.URL, opts...)
		if err == nil {
			log.Info("nats connected", slog.String("url", nc.ConnectedUrl()), slog.Int("attempt", attempt))
			return nc, nil
		}
		lastErr = err
		log.Warn("nats connect failed, retrying",
			slog.Int("attempt", attempt), slog.Any("err", err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.ReconnectWait):
		}
	}
	return nil, fmt.Errorf("nats connect after %d attempts: %w", cfg.ConnectTries, lastErr)
}
