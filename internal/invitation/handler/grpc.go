package handler

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	invitationv1 "travel-cms/backend/api/invitation/v1"
	"travel-cms/backend/internal/invitation/domain"
	"travel-cms/backend/internal/invitation/repository"
	"travel-cms/backend/internal/invitation/service"
	"travel-cms/backend/internal/platform/rbac"
	"travel-cms/backend/internal/security"
	"travel-cms/backend/internal/server/interceptors"
)

// InvitationService is the subset of *service.Service the gRPC server calls.
type InvitationService interface {
	Now() time.Time
	CreateInvitation(ctx context.Context, req service.CreateRequest) (*service.CreateResult, error)
	GetInvitation(ctx context.Context, id string) (*domain.Invitation, error)
	ListInvitations(ctx context.Context, f repository.Filter, p repository.Page) (*service.ListResult, error)
	CancelInvitation(ctx context.Context, id string, actor service.Inviter) error
	ResendInvitation(ctx context.Context, id string, opts service.ResendOptions) (*service.CreateResult, error)
	ValidateInvitation(ctx context.Context, secret, clientIP string) (*service.ValidateResult, error)
	AcceptInvitation(ctx context.Context, req service.AcceptRequest) (*service.AcceptResult, error)
}

// Server implements InvitationService (gRPC) over the invitation service.
type Server struct {
	svc    InvitationService
	roles  rbac.InviterRoles
	logger *slog.Logger
}

// NewServer returns a new Invitation gRPC server. Pass nil svc for stub (Unimplemented).
func NewServer(svc InvitationService, roles rbac.InviterRoles, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, roles: roles, logger: logger}
}

var errUnimplemented = status.Error(codes.Unimplemented, "invitation service not configured")

func (s *Server) CreateInvitation(ctx context.Context, req *invitationv1.CreateInvitationRequest) (*invitationv1.CreateInvitationResponse, error) {
	if s.svc == nil {
		return nil, errUnimplemented
	}
	caller, err := rbac.RequireInviter(ctx, s.roles)
	if err != nil {
		return nil, err
	}
	validity, err := validityFromSeconds(req.ValiditySeconds)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.CreateInvitation(ctx, service.CreateRequest{
		Email:    req.Email,
		Role:     req.Role,
		Inviter:  inviter(caller),
		ClientIP: interceptors.ClientIP(ctx),
		TripID:   req.TripID,
		Metadata: req.Metadata,
		Validity: validity,
	})
	if err != nil {
		return nil, s.adminError(ctx, err)
	}
	return &invitationv1.CreateInvitationResponse{
		Invitation:   s.toProto(res.Invitation),
		Secret:       res.Secret,
		EmailWarning: res.EmailWarning,
	}, nil
}

func (s *Server) GetInvitation(ctx context.Context, req *invitationv1.GetInvitationRequest) (*invitationv1.GetInvitationResponse, error) {
	if s.svc == nil {
		return nil, errUnimplemented
	}
	if _, err := rbac.RequireInviter(ctx, s.roles); err != nil {
		return nil, err
	}
	inv, err := s.svc.GetInvitation(ctx, req.ID)
	if err != nil {
		return nil, s.adminError(ctx, err)
	}
	return &invitationv1.GetInvitationResponse{Invitation: s.toProto(inv)}, nil
}

func (s *Server) ListInvitations(ctx context.Context, req *invitationv1.ListInvitationsRequest) (*invitationv1.ListInvitationsResponse, error) {
	if s.svc == nil {
		return nil, errUnimplemented
	}
	if _, err := rbac.RequireInviter(ctx, s.roles); err != nil {
		return nil, err
	}
	res, err := s.svc.ListInvitations(ctx, repository.Filter{
		Status:    domain.Status(req.Status),
		Role:      req.Role,
		Email:     req.Email,
		InvitedBy: req.InvitedBy,
	}, repository.Page{Limit: req.Limit, Offset: req.Offset})
	if err != nil {
		return nil, s.adminError(ctx, err)
	}
	out := make([]*invitationv1.Invitation, 0, len(res.Invitations))
	for _, inv := range res.Invitations {
		out = append(out, s.toProto(inv))
	}
	return &invitationv1.ListInvitationsResponse{Invitations: out, Total: res.Total}, nil
}

func (s *Server) CancelInvitation(ctx context.Context, req *invitationv1.CancelInvitationRequest) (*invitationv1.CancelInvitationResponse, error) {
	if s.svc == nil {
		return nil, errUnimplemented
	}
	caller, err := rbac.RequireInviter(ctx, s.roles)
	if err != nil {
		return nil, err
	}
	if err := s.svc.CancelInvitation(ctx, req.ID, inviter(caller)); err != nil {
		return nil, s.adminError(ctx, err)
	}
	return &invitationv1.CancelInvitationResponse{}, nil
}

func (s *Server) ResendInvitation(ctx context.Context, req *invitationv1.ResendInvitationRequest) (*invitationv1.ResendInvitationResponse, error) {
	if s.svc == nil {
		return nil, errUnimplemented
	}
	caller, err := rbac.RequireInviter(ctx, s.roles)
	if err != nil {
		return nil, err
	}
	validity, err := validityFromSeconds(req.ValiditySeconds)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.ResendInvitation(ctx, req.ID, service.ResendOptions{
		Validity: validity,
		Inviter:  inviter(caller),
		ClientIP: interceptors.ClientIP(ctx),
	})
	if err != nil {
		return nil, s.adminError(ctx, err)
	}
	return &invitationv1.ResendInvitationResponse{
		Invitation:   s.toProto(res.Invitation),
		Secret:       res.Secret,
		EmailWarning: res.EmailWarning,
	}, nil
}

// ValidateInvitation is public. Every lookup failure reads the same to the caller.
func (s *Server) ValidateInvitation(ctx context.Context, req *invitationv1.ValidateInvitationRequest) (*invitationv1.ValidateInvitationResponse, error) {
	if s.svc == nil {
		return nil, errUnimplemented
	}
	res, err := s.svc.ValidateInvitation(ctx, req.Token, interceptors.ClientIP(ctx))
	if err != nil {
		return nil, s.publicError(ctx, err)
	}
	return &invitationv1.ValidateInvitationResponse{Email: res.Email, Role: res.Role, ExpiresAt: res.ExpiresAt}, nil
}

// AcceptInvitation is public. Every lookup failure reads the same to the caller.
func (s *Server) AcceptInvitation(ctx context.Context, req *invitationv1.AcceptInvitationRequest) (*invitationv1.AcceptInvitationResponse, error) {
	if s.svc == nil {
		return nil, errUnimplemented
	}
	res, err := s.svc.AcceptInvitation(ctx, service.AcceptRequest{
		Secret:      req.Token,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		ClientIP:    interceptors.ClientIP(ctx),
	})
	if err != nil {
		return nil, s.publicError(ctx, err)
	}
	return &invitationv1.AcceptInvitationResponse{AccountID: res.AccountID}, nil
}

// validityFromSeconds converts a requested validity, rejecting values outside the token bounds
// before they can overflow a time.Duration. Zero selects the default.
func validityFromSeconds(secs int64) (time.Duration, error) {
	if secs == 0 {
		return 0, nil
	}
	minSecs := int64(security.MinInviteValidity / time.Second)
	maxSecs := int64(security.MaxInviteValidity / time.Second)
	if secs < minSecs || secs > maxSecs {
		return 0, status.Errorf(codes.InvalidArgument, "validity_seconds must be between %d and %d", minSecs, maxSecs)
	}
	return time.Duration(secs) * time.Second, nil
}

func inviter(c rbac.Caller) service.Inviter {
	return service.Inviter{ID: c.UserID, Role: c.Role, Name: c.Name}
}

// publicError collapses every redemption-path lookup failure into one NotFound message so callers
// can't tell an unknown token from an expired, used or conflicting one.
func (s *Server) publicError(ctx context.Context, err error) error {
	if domain.IsRedemptionFailure(err) || errors.Is(err, domain.ErrConflict) {
		return status.Error(codes.NotFound, domain.ErrInvalidOrExpired.Error())
	}
	return s.adminError(ctx, err)
}

// adminError maps error kinds to gRPC codes. Messages of expected kinds are passed through;
// fatal failures are logged and hidden.
func (s *Server) adminError(ctx context.Context, err error) error {
	var rl *domain.RateLimitError
	switch {
	case errors.As(err, &rl):
		return rateLimited(ctx, rl)
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrExpired), errors.Is(err, domain.ErrAlreadyUsed):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		s.logger.ErrorContext(ctx, "invitation request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}

// RetryAfterTrailer carries the retry-after hint in whole seconds.
const RetryAfterTrailer = "retry-after"

func rateLimited(ctx context.Context, rl *domain.RateLimitError) error {
	secs := int64((rl.RetryAfter + time.Second - 1) / time.Second)
	_ = grpc.SetTrailer(ctx, metadata.Pairs(RetryAfterTrailer, strconv.FormatInt(secs, 10)))
	st := status.New(codes.ResourceExhausted, "too many requests, retry later")
	if withDetails, err := st.WithDetails(&errdetails.RetryInfo{RetryDelay: durationpb.New(rl.RetryAfter)}); err == nil {
		st = withDetails
	}
	return st.Err()
}

func (s *Server) toProto(inv *domain.Invitation) *invitationv1.Invitation {
	if inv == nil {
		return nil
	}
	return &invitationv1.Invitation{
		ID:        inv.ID,
		Email:     inv.Email,
		Role:      inv.Role,
		Status:    string(inv.StatusAt(s.svc.Now())),
		InvitedBy: inv.InvitedBy,
		TripID:    inv.TripID,
		Metadata:  inv.Metadata,
		ExpiresAt: inv.ExpiresAt,
		UsedAt:    inv.UsedAt,
		UsedBy:    inv.UsedBy,
		CreatedAt: inv.CreatedAt,
	}
}
