package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor logs every call, recovers panics and bounds calls
// that arrive without a deadline.
func UnaryServerInterceptor(log *slog.Logger, defaultTimeout time.Duration) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		start := time.Now()
		if _, ok := ctx.Deadline(); !ok && defaultTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
			defer cancel()
		}

		defer func() {
			if r := recover(); r != nil {
				log.ErrorContext(ctx, "grpc unary panic",
					slog.String("method", info.FullMethod),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				err = status.Error(codes.Internal, "internal server error")
			}
			log.DebugContext(ctx, "grpc unary",
				slog.String("method", info.FullMethod),
				slog.String("code", status.Code(err).String()),
				slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		}()

		return handler(ctx, req)
	}
}

func StreamServerInterceptor(log *slog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				log.Error("grpc stream panic",
					slog.String("method", info.FullMethod),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				err = status.Error(codes.Internal, "internal server error")
			}
			log.Debug("grpc stream",
				slog.String("method", info.FullMethod),
				slog.String("code", status.Code(err).String()),
				slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		}()

		return handler(srv, ss)
	}
}
