// Package telemetry holds the invitation service's OpenTelemetry instruments.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the invitation instruments.
const MeterName = "travel-cms/backend/invitation"

// InvitationMetrics counts invitation operations by outcome.
type InvitationMetrics struct {
	operations  metric.Int64Counter
	rateLimited metric.Int64Counter
	failures    metric.Int64Counter
}

// NewInvitationMetrics creates the instruments on mp's meter.
func NewInvitationMetrics(mp metric.MeterProvider) (*InvitationMetrics, error) {
	m := mp.Meter(MeterName)
	ops, err := m.Int64Counter("invitation.operations",
		metric.WithDescription("Invitation operations by operation and outcome"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, err
	}
	limited, err := m.Int64Counter("invitation.rate_limited",
		metric.WithDescription("Requests refused by an invitation rate limit"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	failures, err := m.Int64Counter("invitation.failures",
		metric.WithDescription("Invitation operations that failed with an internal error"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, err
	}
	return &InvitationMetrics{operations: ops, rateLimited: limited, failures: failures}, nil
}

// RecordOperation adds one to the operation counter, plus the rate-limit or failure counter when
// the outcome says so.
func (m *InvitationMetrics) RecordOperation(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	op := attribute.String("operation", operation)
	m.operations.Add(ctx, 1, metric.WithAttributes(op, attribute.String("outcome", outcome)))
	switch outcome {
	case "rate_limited":
		m.rateLimited.Add(ctx, 1, metric.WithAttributes(op))
	case "fatal":
		m.failures.Add(ctx, 1, metric.WithAttributes(op))
	}
}
