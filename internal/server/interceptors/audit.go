package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"travel-cms/backend/internal/audit"
)

// AuditUnary returns a unary server interceptor that records an audit log entry after each
// authenticated RPC, including the resulting status code. skipMethods are never audited.
// Writes are best-effort and never fail the RPC.
func AuditUnary(logger audit.AuditLogger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if logger == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		userID, _ := GetUserID(ctx)
		if userID == "" {
			return resp, err
		}
		ar := audit.ParseFullMethod(info.FullMethod)
		logger.LogEvent(ctx, userID, "rpc_"+ar.Action, ar.Resource, "", map[string]string{
			"code": status.Code(err).String(),
		})
		return resp, err
	}
}
