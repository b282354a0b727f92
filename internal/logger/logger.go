package logger

import (
	"context"
	"log/slog"
	"os"
)

var def *slog.Logger

// Init builds the process logger for the given environment and installs it as slog default.
func Init(cfg Config) *slog.Logger {
	if cfg.Env == "" {
		cfg.Env = DetectEnv()
	}
	if cfg.Service == "" {
		cfg.Service = "chat-service"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	cfg.InstanceID = ensureInstanceID(cfg.InstanceID)

	if cfg.Backend == "" {
		if cfg.Env == EnvDev {
			cfg.Backend = BackendStd
		} else {
			cfg.Backend = BackendZap
		}
	}

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h = newZapHandler(cfg)
	default:
		h = newStdHandler(cfg)
	}

	base := slog.New(h.WithAttrs(commonAttr(cfg)))
	slog.SetDefault(base)
	def = base
	return base
}

func L() *slog.Logger {
	if def != nil {
		return def
	}
	return Init(Config{})
}

type ctxKey int

const loggerKey ctxKey = iota

// WithContext stores a request or session scoped logger.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the scoped logger with trace ids attached, or the process logger.
func FromContext(ctx context.Context) *slog.Logger {
	l := L()
	if v, ok := ctx.Value(loggerKey).(*slog.Logger); ok && v != nil {
		l = v
	}
	if attrs := AttrsFromCtx(ctx); len(attrs) > 0 {
		args := make([]any, 0, len(attrs))
		for _, a := range attrs {
			args = append(args, a)
		}
		l = l.With(args...)
	}
	return l
}
