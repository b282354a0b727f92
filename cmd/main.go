package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/chat-service/config"
	"github.com/cwrk-planet/chat-service/internal/logger"
	"github.com/cwrk-planet/chat-service/internal/natsx"
	"github.com/cwrk-planet/chat-service/internal/notify"
	"github.com/cwrk-planet/chat-service/internal/postgres"
	"github.com/cwrk-planet/chat-service/internal/presence"
	"github.com/cwrk-planet/chat-service/internal/realtime"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/internal/service"
	"github.com/cwrk-planet/chat-service/internal/session"
	"github.com/cwrk-planet/chat-service/internal/telemetry"
	grpcx "github.com/cwrk-planet/chat-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/chat-service/internal/transport/http"
	"github.com/cwrk-planet/chat-service/internal/transport/ws"

	"golang.org/x/sync/errgroup"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg := logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	lg.Info("starting chat-service", slog.String("env", cfg.Logging.Env), slog.String("version", cfg.Logging.Version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Error("chat-service stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
	lg.Info("stopped")
}

func run(ctx context.Context, cfg *config.Config, lg *slog.Logger) error {
	// --- telemetry ---
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     cfg.Logging.Version,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			lg.Warn("telemetry shutdown", slog.Any("err", err))
		}
	}()

	// --- postgres ---
	pool, err := postgres.Open(ctx, postgres.Config{
		DSN:               cfg.Postgres.DSN,
		MaxConns:          cfg.Postgres.MaxConns,
		MinConns:          cfg.Postgres.MinConns,
		MaxConnLifetime:   cfg.Postgres.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Postgres.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Postgres.HealthCheckPeriod,
		ApplicationName:   cfg.Postgres.ApplicationName,
		Migrate:           cfg.Postgres.Migrate,
		SlowQuery:         cfg.Postgres.SlowQuery,
	}, lg)
	if err != nil {
		return err
	}
	defer pool.Close()

	// --- realtime feed + push ---
	var (
		feed   realtime.Feed
		pusher notify.Pusher
	)
	if cfg.NATS.URL != "" {
		nc, err := natsx.Connect(ctx, natsx.Config{
			URL:           cfg.NATS.URL,
			User:          cfg.NATS.User,
			Password:      cfg.NATS.Password,
			Name:          cfg.NATS.Name,
			ConnectTries:  cfg.NATS.ConnectTries,
			ReconnectWait: cfg.NATS.ReconnectWait,
		}, lg)
		if err != nil {
			return err
		}
		defer func() {
			if err := nc.Drain(); err != nil {
				lg.Warn("nats drain", slog.Any("err", err))
			}
		}()
		feed = realtime.NewNATSFeed(nc, lg)
		pusher = notify.NewNATSPusher(nc, cfg.Push.Subject)
	} else {
		lg.Warn("nats.url is empty, realtime feed is in-process and push delivery is off")
		feed = realtime.NewLocalFeed()
	}

	// --- auth ---
	pub, err := security.LoadRSAPublicKeyFromPEM(cfg.Auth.PublicKeyPath)
	if err != nil {
		return err
	}
	verifier := security.NewVerifier(pub, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.ClockSkew)

	// --- repos ---
	roomRepo := postgres.NewRoomRepository(pool)
	memberRepo := postgres.NewMemberRepository(pool)
	messageRepo := postgres.NewMessageRepository(pool)
	typingRepo := postgres.NewTypingRepository(pool)
	profileRepo := postgres.NewProfileRepository(pool)
	notificationRepo := postgres.NewNotificationRepository(pool)

	// --- services ---
	roomQuery := service.NewFallbackRoomQuery(
		postgres.NewJoinedRoomsQuery(pool),
		postgres.NewTwoStepRoomsQuery(pool, profileRepo),
		lg,
	)
	rooms := service.NewRoomDirectory(roomRepo, memberRepo, roomQuery, service.RoomDirectoryConfig{
		DefaultRoomName: cfg.Chat.DefaultRoomName,
		MaxGroupMembers: cfg.Chat.MaxGroupMembers,
	}, lg)
	messages := service.NewMessageService(messageRepo, memberRepo, feed, service.MessageConfig{
		MaxLength: cfg.Chat.MaxMessageLength,
		PageSize:  cfg.Chat.PageSize,
	}, lg)
	typing := service.NewTypingService(typingRepo, memberRepo, feed, cfg.Chat.TypingTTL, lg)
	dispatcher := notify.NewDispatcher(roomRepo, memberRepo, profileRepo, notificationRepo, pusher,
		notify.NewCircuitBreaker(cfg.Push.BreakerThreshold, cfg.Push.BreakerCooldown),
		notify.Config{PreviewLen: cfg.Push.PreviewLength, PushTimeout: cfg.Push.Timeout},
		lg,
	)

	// --- WS ---
	wsServer := ws.NewServer(verifier, session.Deps{
		Feed:     feed,
		Messages: messages,
		Typing:   typing,
		Profiles: profileRepo,
		Notifier: dispatcher,
	}, ws.Config{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		PageSize:       cfg.Chat.PageSize,
		TypingTimeout:  cfg.Chat.TypingTimeout,
		TypingTTL:      cfg.Chat.TypingTTL,
	}, lg)

	// --- HTTP ---
	health := func(ctx context.Context) error { return postgres.Ping(ctx, pool) }
	router := httpx.NewRouter(httpx.Deps{
		Handler:  httpx.NewHandler(rooms, messages, dispatcher),
		Verifier: verifier,
		WS:       wsServer,
		Health:   health,
		Log:      lg,
	}, httpx.RouterConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- gRPC ---
	grpcSrv := grpcx.NewServer(lg)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return err
	}

	// --- run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info("http listen", slog.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("grpc listen", slog.String("addr", cfg.GRPC.Addr))
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		grpcSrv.WatchHealth(gctx, 10*time.Second, health)
		return nil
	})
	g.Go(func() error {
		return presence.NewJanitor(typing, cfg.Chat.CleanupInterval, lg).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		grpcSrv.Stop()
		return httpSrv.Shutdown(sctx)
	})

	return g.Wait()
}
