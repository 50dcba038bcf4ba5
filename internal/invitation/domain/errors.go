package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds shared by the ledger, the issuance guard and the service layer. Wrap them with
// fmt.Errorf("%w: ...") and test with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("invitation not found")
	ErrExpired      = errors.New("invitation expired")
	ErrAlreadyUsed  = errors.New("invitation already used")
	ErrRateLimited  = errors.New("rate limited")
	ErrFatal        = errors.New("internal failure")
)

// ErrInvalidOrExpired is the only redemption-path failure shown to the public.
var ErrInvalidOrExpired = errors.New("invalid or expired invitation")

// RateLimitError reports a rejected request and how long the caller should wait.
type RateLimitError struct {
	Policy     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s policy, retry after %s", e.Policy, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// IsRedemptionFailure reports whether err is one of the kinds that collapse into ErrInvalidOrExpired.
func IsRedemptionFailure(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) || errors.Is(err, ErrAlreadyUsed)
}

// Outcome names the error kind of err for logs and metrics: "ok" for nil, "fatal" for anything unrecognized.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "fatal"
	}
}
