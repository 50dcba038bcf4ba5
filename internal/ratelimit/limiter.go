// Package ratelimit implements fixed-window request limits keyed by actor and action.
package ratelimit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Policy is one independent limit: at most Limit calls per key within Window.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Enabled reports whether the policy limits anything.
func (p Policy) Enabled() bool {
	return p.Limit > 0 && p.Window > 0
}

// Decision is the outcome of one Consume call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Store counts hits in a window. Incr adds one hit to key, starting a window of length window
// when none is open, and returns the count so far and the time until the window resets.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

// Limiter applies Policies over a Store. Counters are not durable; losing them only resets windows.
type Limiter struct {
	store  Store
	logger *slog.Logger
}

// New returns a Limiter over store. logger may be nil.
func New(store Store, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, logger: logger}
}

// Consume records one call for key under p. When the store is unavailable the call is allowed
// and a warning is logged; abuse control degrades before availability does.
func (l *Limiter) Consume(ctx context.Context, key string, p Policy) Decision {
	if !p.Enabled() || strings.TrimSpace(key) == "" {
		return Decision{Allowed: true, Remaining: -1}
	}
	count, resetIn, err := l.store.Incr(ctx, "ratelimit:"+p.Name+":"+key, p.Window)
	if err != nil {
		l.logger.WarnContext(ctx, "rate-limit state unavailable",
			"operation", "rate_limit",
			"outcome", "warning",
			"policy", p.Name,
			"error", err,
		)
		return Decision{Allowed: true, Remaining: -1}
	}
	if count > int64(p.Limit) {
		if resetIn <= 0 {
			resetIn = p.Window
		}
		return Decision{Allowed: false, RetryAfter: resetIn}
	}
	return Decision{Allowed: true, Remaining: p.Limit - int(count)}
}
