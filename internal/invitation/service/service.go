// Package service is the invitation API consumed by transports and tools. Every call is throttled
// first, authorized second and only then reaches the ledger.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"travel-cms/backend/internal/audit"
	auditdomain "travel-cms/backend/internal/audit/domain"
	identityservice "travel-cms/backend/internal/identity/service"
	"travel-cms/backend/internal/invitation/domain"
	"travel-cms/backend/internal/invitation/guard"
	"travel-cms/backend/internal/invitation/ledger"
	"travel-cms/backend/internal/invitation/repository"
	"travel-cms/backend/internal/mail"
	"travel-cms/backend/internal/ratelimit"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Accounts is the account store used by acceptance and by the issuance guard.
type Accounts interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	CreateFromInvitation(ctx context.Context, email, displayName, role, password string) (string, error)
	RemoveAccount(ctx context.Context, accountID string) error
}

// Metrics records one outcome per operation. Outcomes come from domain.Outcome.
type Metrics interface {
	RecordOperation(ctx context.Context, operation, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RecordOperation(context.Context, string, string) {}

// Config tunes the Service.
type Config struct {
	// ReturnSecret echoes the plaintext secret in create and resend results. Non-production only.
	ReturnSecret bool
	// AcceptBaseURL is the page the invitation email links to.
	AcceptBaseURL string
	// MailTimeout bounds the email send made while handling create and resend.
	MailTimeout time.Duration
}

// Deps holds the Service collaborators. Mailer, Audit and Metrics may be nil.
type Deps struct {
	Ledger   *ledger.Ledger
	Guard    *guard.Guard
	Limiter  *ratelimit.Limiter
	Policies ratelimit.Policies
	Accounts Accounts
	Mailer   mail.Sender
	Audit    audit.AuditLogger
	Metrics  Metrics
	Logger   *slog.Logger
}

// Service implements the invitation operations.
type Service struct {
	ledger   *ledger.Ledger
	guard    *guard.Guard
	limiter  *ratelimit.Limiter
	policies ratelimit.Policies
	accounts Accounts
	mailer   mail.Sender
	audit    audit.AuditLogger
	metrics  Metrics
	cfg      Config
	logger   *slog.Logger
}

// New returns a Service.
func New(deps Deps, cfg Config) *Service {
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = mail.DefaultSendTimeout
	}
	s := &Service{
		ledger:   deps.Ledger,
		guard:    deps.Guard,
		limiter:  deps.Limiter,
		policies: deps.Policies,
		accounts: deps.Accounts,
		mailer:   deps.Mailer,
		audit:    deps.Audit,
		metrics:  deps.Metrics,
		cfg:      cfg,
		logger:   deps.Logger,
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Inviter identifies the authenticated caller of an administrative operation.
type Inviter struct {
	ID   string
	Role string
	Name string
}

// CreateRequest asks for a new invitation.
type CreateRequest struct {
	Email    string
	Role     string
	Inviter  Inviter
	ClientIP string
	TripID   string
	Metadata map[string]string
	Validity time.Duration
}

// CreateResult carries the stored invitation. Secret is set only when echoing is enabled.
// EmailWarning is non-empty when the record was stored but the email could not be sent.
type CreateResult struct {
	Invitation   *domain.Invitation
	Secret       string
	EmailWarning string
}

// ResendOptions tunes a resend. Zero Validity uses the default.
type ResendOptions struct {
	Validity time.Duration
	Inviter  Inviter
	ClientIP string
}

// ListResult is one page of invitations.
type ListResult struct {
	Invitations []*domain.Invitation
	Total       int
}

// ValidateResult is what a redeemer needs to render the acceptance form.
type ValidateResult struct {
	Email     string
	Role      string
	ExpiresAt time.Time
}

// AcceptRequest redeems an invitation into a new account.
type AcceptRequest struct {
	Secret      string
	DisplayName string
	Password    string
	ClientIP    string
}

// AcceptResult is the account created by an acceptance.
type AcceptResult struct {
	AccountID string
}

// Now is the clock invitation statuses are derived against.
func (s *Service) Now() time.Time {
	return s.ledger.Now()
}

func (s *Service) consume(ctx context.Context, key string, p ratelimit.Policy) error {
	if s.limiter == nil {
		return nil
	}
	d := s.limiter.Consume(ctx, key, p)
	if d.Allowed {
		return nil
	}
	s.logger.WarnContext(ctx, "rate limit exceeded", "policy", p.Name, "retry_after", d.RetryAfter)
	return &domain.RateLimitError{Policy: p.Name, RetryAfter: d.RetryAfter}
}

func (s *Service) record(ctx context.Context, op string, err error) {
	outcome := domain.Outcome(err)
	s.metrics.RecordOperation(ctx, op, outcome)
	if outcome == "fatal" {
		s.logger.ErrorContext(ctx, "invitation operation failed", "operation", op, "outcome", outcome, "error", err)
	}
}

// CreateInvitation throttles per inviter, runs the issuance guard, stores the invitation and
// sends its email.
func (s *Service) CreateInvitation(ctx context.Context, req CreateRequest) (_ *CreateResult, err error) {
	defer func() { s.record(ctx, "create", err) }()

	if err := s.consume(ctx, ratelimit.IssuanceKey(req.Inviter.ID, req.ClientIP), s.policies.Issuance); err != nil {
		return nil, err
	}
	params := ledger.CreateParams{
		Email:     req.Email,
		Role:      req.Role,
		InvitedBy: req.Inviter.ID,
		TripID:    req.TripID,
		Metadata:  req.Metadata,
		Validity:  req.Validity,
	}
	if err := ledger.CheckParams(params); err != nil {
		return nil, err
	}
	email, err := s.guard.Check(ctx, guard.Request{Email: req.Email, Role: req.Role, InviterRole: req.Inviter.Role})
	if err != nil {
		return nil, err
	}
	params.Email = email
	issued, err := s.ledger.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "invitation created",
		"invitation_id", issued.Invitation.ID,
		"role", issued.Invitation.Role,
		"invited_by", req.Inviter.ID,
		"expires_at", issued.Invitation.ExpiresAt,
	)
	s.logEvent(ctx, req.Inviter.ID, auditdomain.ActionInvitationCreated, issued.Invitation.ID,
		map[string]string{"role": issued.Invitation.Role})
	return s.deliver(ctx, issued, req.Inviter, false), nil
}

// ListInvitations returns one page of invitations matching f, newest first.
func (s *Service) ListInvitations(ctx context.Context, f repository.Filter, p repository.Page) (_ *ListResult, err error) {
	defer func() { s.record(ctx, "list", err) }()

	if p.Offset < 0 || p.Limit < 0 {
		return nil, fmt.Errorf("%w: page limit and offset must not be negative", domain.ErrInvalidInput)
	}
	if p.Limit == 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if f.Status != "" {
		if _, ok := domain.ParseStatus(string(f.Status)); !ok {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, f.Status)
		}
	}
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	items, total, err := s.ledger.List(ctx, f, p)
	if err != nil {
		return nil, err
	}
	return &ListResult{Invitations: items, Total: total}, nil
}

// GetInvitation returns invitation id.
func (s *Service) GetInvitation(ctx context.Context, id string) (_ *domain.Invitation, err error) {
	defer func() { s.record(ctx, "get", err) }()
	return s.ledger.Get(ctx, id)
}

// CancelInvitation deletes a pending or expired invitation the actor is allowed to manage.
func (s *Service) CancelInvitation(ctx context.Context, id string, actor Inviter) (err error) {
	defer func() { s.record(ctx, "cancel", err) }()

	inv, err := s.ledger.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.guard.CheckManage(ctx, actor.Role, inv.Role); err != nil {
		return err
	}
	if err := s.ledger.Cancel(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "invitation cancelled", "invitation_id", id, "actor_id", actor.ID)
	s.logEvent(ctx, actor.ID, auditdomain.ActionInvitationCancelled, id, nil)
	return nil
}

// ResendInvitation rotates the secret of an unused invitation and emails the new one. It counts
// against the same issuance budget as creation.
func (s *Service) ResendInvitation(ctx context.Context, id string, opts ResendOptions) (_ *CreateResult, err error) {
	defer func() { s.record(ctx, "resend", err) }()

	if err := s.consume(ctx, ratelimit.IssuanceKey(opts.Inviter.ID, opts.ClientIP), s.policies.Issuance); err != nil {
		return nil, err
	}
	if err := ledger.CheckValidity(opts.Validity); err != nil {
		return nil, err
	}
	inv, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckManage(ctx, opts.Inviter.Role, inv.Role); err != nil {
		return nil, err
	}
	issued, err := s.ledger.Resend(ctx, id, opts.Validity)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "invitation resent", "invitation_id", id, "actor_id", opts.Inviter.ID,
		"expires_at", issued.Invitation.ExpiresAt)
	s.logEvent(ctx, opts.Inviter.ID, auditdomain.ActionInvitationResent, id, nil)
	return s.deliver(ctx, issued, opts.Inviter, true), nil
}

// ValidateInvitation checks a secret and returns what the acceptance form shows.
func (s *Service) ValidateInvitation(ctx context.Context, secret, clientIP string) (_ *ValidateResult, err error) {
	defer func() { s.record(ctx, "validate", err) }()

	key := ratelimit.ValidationKey(clientIP, secret, s.policies.ValidationPrefixLen)
	if err := s.consume(ctx, key, s.policies.Validation); err != nil {
		return nil, err
	}
	inv, err := s.ledger.Validate(ctx, secret)
	if err != nil {
		return nil, err
	}
	return &ValidateResult{Email: inv.Email, Role: inv.Role, ExpiresAt: inv.ExpiresAt}, nil
}

// AcceptInvitation creates the invited account and marks the invitation used by it.
func (s *Service) AcceptInvitation(ctx context.Context, req AcceptRequest) (_ *AcceptResult, err error) {
	defer func() { s.record(ctx, "accept", err) }()

	if err := s.consume(ctx, ratelimit.AcceptanceKey(req.ClientIP), s.policies.Acceptance); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return nil, fmt.Errorf("%w: display name is required", domain.ErrInvalidInput)
	}
	if err := identityservice.ValidatePassword(req.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	inv, err := s.ledger.Validate(ctx, req.Secret)
	if err != nil {
		return nil, err
	}
	accountID, err := s.accounts.CreateFromInvitation(ctx, inv.Email, req.DisplayName, inv.Role, req.Password)
	if err != nil {
		return nil, s.accountError(ctx, inv.ID, err)
	}
	if _, err := s.ledger.Redeem(ctx, req.Secret, accountID); err != nil {
		return nil, s.rollbackAccount(ctx, inv.ID, accountID, err)
	}
	s.logger.InfoContext(ctx, "invitation accepted", "invitation_id", inv.ID, "account_id", accountID)
	s.logEvent(ctx, accountID, auditdomain.ActionInvitationAccepted, inv.ID, map[string]string{"role": inv.Role})
	return &AcceptResult{AccountID: accountID}, nil
}

// rollbackAccount removes an account whose invitation could not be redeemed, so a cancelled,
// rotated or expired invitation never leaves a working account behind. It returns redeemErr, or a
// fatal error when the account could not be removed.
func (s *Service) rollbackAccount(ctx context.Context, invitationID, accountID string, redeemErr error) error {
	s.logger.WarnContext(ctx, "invitation not redeemed, removing account",
		"invitation_id", invitationID, "account_id", accountID, "error", redeemErr)
	if err := s.accounts.RemoveAccount(context.WithoutCancel(ctx), accountID); err != nil {
		s.logger.ErrorContext(ctx, "account rollback failed",
			"invitation_id", invitationID, "account_id", accountID, "error", err)
		return fmt.Errorf("%w: account %s left without invitation: %v", domain.ErrFatal, accountID, err)
	}
	return redeemErr
}

// accountError maps an account store failure during acceptance. A taken email usually means a
// concurrent acceptance of the same invitation won.
func (s *Service) accountError(ctx context.Context, invitationID string, err error) error {
	switch {
	case errors.Is(err, identityservice.ErrEmailAlreadyRegistered):
		cur, getErr := s.ledger.Get(ctx, invitationID)
		if getErr == nil && cur.Used {
			return domain.ErrAlreadyUsed
		}
		return fmt.Errorf("%w: an account already exists for this email", domain.ErrConflict)
	case errors.Is(err, identityservice.ErrWeakPassword),
		errors.Is(err, identityservice.ErrInvalidEmail),
		errors.Is(err, identityservice.ErrInvalidDisplayName):
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	default:
		return fmt.Errorf("%w: create account: %v", domain.ErrFatal, err)
	}
}

// deliver sends the invitation email. A failed send leaves the invitation in place and is
// reported as a warning.
func (s *Service) deliver(ctx context.Context, issued *ledger.Issued, inviter Inviter, resent bool) *CreateResult {
	res := &CreateResult{Invitation: issued.Invitation}
	if s.cfg.ReturnSecret {
		res.Secret = issued.Secret
	}
	if s.mailer == nil {
		res.EmailWarning = "email delivery is not configured"
		return res
	}
	msg := mail.NewInvitationMessage(mail.InvitationEmail{
		InvitationID: issued.Invitation.ID,
		To:           issued.Invitation.Email,
		Role:         issued.Invitation.Role,
		InviterName:  inviter.Name,
		Secret:       issued.Secret,
		ExpiresAt:    issued.Invitation.ExpiresAt,
		Resent:       resent,
	}, s.cfg.AcceptBaseURL)
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.MailTimeout)
	defer cancel()
	if err := s.mailer.Send(sendCtx, msg); err != nil {
		s.logger.WarnContext(ctx, "invitation email failed",
			"operation", "send_invitation_email",
			"outcome", "failure",
			"invitation_id", issued.Invitation.ID,
			"error", err,
		)
		s.logEvent(ctx, inviter.ID, auditdomain.ActionInvitationEmailFailed, issued.Invitation.ID, nil)
		res.EmailWarning = "invitation saved but the email could not be sent; resend to retry"
	}
	return res
}

func (s *Service) logEvent(ctx context.Context, actorID, action, invitationID string, meta map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, actorID, action, auditdomain.ResourceInvitation, invitationID, meta)
}
