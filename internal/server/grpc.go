package server

import (
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	invitationv1 "travel-cms/backend/api/invitation/v1"
	"travel-cms/backend/internal/audit"
	healthhandler "travel-cms/backend/internal/health/handler"
	invitationhandler "travel-cms/backend/internal/invitation/handler"
	"travel-cms/backend/internal/platform/rbac"
	"travel-cms/backend/internal/security"
	"travel-cms/backend/internal/server/interceptors"
)

// Deps holds optional service dependencies for gRPC handlers.
type Deps struct {
	// Invitations backs InvitationService. If nil, invitation RPCs return Unimplemented.
	Invitations invitationhandler.InvitationService
	// Roles decides which staff roles may call the administrative invitation RPCs.
	Roles rbac.InviterRoles
	// Tokens validates Bearer access tokens. If nil, every non-public RPC is Unauthenticated.
	Tokens *security.TokenProvider
	// Audit records authenticated RPCs. If nil, nothing is audited by the interceptor.
	Audit audit.AuditLogger
	// HealthPinger is used for readiness (e.g. *sql.DB). If nil, Check skips the DB ping.
	HealthPinger healthhandler.Pinger
	// HealthPolicyChecker is used for readiness (e.g. OPA evaluator). If nil, Check skips the policy check.
	HealthPolicyChecker healthhandler.PolicyChecker
	// ClientIP decides which peers may set forwarding metadata. If nil, the transport peer is the client.
	ClientIP *interceptors.ClientIPResolver
	Logger   *slog.Logger
}

// PublicMethods are the RPCs callable without a Bearer token: the redemption path and health.
func PublicMethods() map[string]bool {
	return map[string]bool{
		invitationv1.InvitationService_ValidateInvitation_FullMethodName: true,
		invitationv1.InvitationService_AcceptInvitation_FullMethodName:   true,
		healthpb.Health_Check_FullMethodName:                             true,
		healthpb.Health_Watch_FullMethodName:                             true,
	}
}

// NewServer returns a gRPC server with tracing and the client IP, auth, logging and audit interceptors
// installed, and every service registered.
func NewServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	public := PublicMethods()
	quiet := map[string]bool{healthpb.Health_Check_FullMethodName: true, healthpb.Health_Watch_FullMethodName: true}
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.ClientIPUnary(deps.ClientIP),
			interceptors.AuthUnary(deps.Tokens, public),
			interceptors.LoggingUnary(deps.Logger, quiet),
			interceptors.AuditUnary(deps.Audit, public),
		),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - InvitationService → internal/invitation/handler
//   - Health            → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	invitationv1.RegisterInvitationServiceServer(s, invitationhandler.NewServer(deps.Invitations, deps.Roles, deps.Logger))
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(deps.HealthPinger, deps.HealthPolicyChecker, invitationv1.ServiceName))
}
