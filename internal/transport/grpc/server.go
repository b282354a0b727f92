package grpcx

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is reported by the health service next to the overall "" entry.
const ServiceName = "chat.v1.ChatService"

type Server struct {
	srv    *grpc.Server
	health *health.Server
	log    *slog.Logger
}

func NewServer(log *slog.Logger) *Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(log, 10*time.Second)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(log)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &Server{srv: srv, health: hs, log: log}
	s.SetServing(false)
	return s
}

func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// WatchHealth runs check every interval and publishes the result until ctx ends.
func (s *Server) WatchHealth(ctx context.Context, interval time.Duration, check func(ctx context.Context) error) {
	refresh := func() {
		cctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		err := check(cctx)
		if err != nil {
			s.log.WarnContext(ctx, "health check failed", slog.Any("err", err))
		}
		s.SetServing(err == nil)
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

// Stop marks the service as not serving and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
