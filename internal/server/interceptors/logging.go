package interceptors

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor that logs one line per RPC with method, status
// code, duration and caller. Server-side failures log at error level. skipMethods are not logged.
func LoggingUnary(logger *slog.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		userID, _ := GetUserID(ctx)
		attrs := []any{
			"full_method", info.FullMethod,
			"status_code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", ClientIP(ctx),
			"user_id", userID,
		}
		switch code {
		case codes.Internal, codes.Unknown, codes.Unavailable, codes.DataLoss:
			logger.ErrorContext(ctx, "grpc request", append(attrs, "error", err)...)
		default:
			logger.InfoContext(ctx, "grpc request", attrs...)
		}
		return resp, err
	}
}
