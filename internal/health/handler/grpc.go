package handler

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Pinger checks the database (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks the issuance policy engine (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

const probeTimeout = 2 * time.Second

// Server implements grpc.health.v1.Health for readiness. Each Check probes the database and the
// policy engine; either failing reports NOT_SERVING.
type Server struct {
	healthpb.UnimplementedHealthServer
	pinger   Pinger
	policy   PolicyChecker
	services map[string]bool
	logger   *slog.Logger
}

// NewServer returns a health server. pinger and policy may be nil to skip that probe.
// services lists the named services answered besides the overall "" service.
func NewServer(pinger Pinger, policy PolicyChecker, services ...string) *Server {
	known := map[string]bool{"": true}
	for _, s := range services {
		known[s] = true
	}
	return &Server{pinger: pinger, policy: policy, services: known, logger: slog.Default()}
}

// Check reports SERVING when every configured probe succeeds.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if !s.services[req.GetService()] {
		return nil, status.Error(codes.NotFound, "unknown service")
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			s.logger.WarnContext(ctx, "health: database ping failed", "error", err)
			return notServing(), nil
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			s.logger.WarnContext(ctx, "health: policy engine check failed", "error", err)
			return notServing(), nil
		}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

func notServing() *healthpb.HealthCheckResponse {
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}
}
