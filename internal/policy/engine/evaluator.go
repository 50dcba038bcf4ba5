package engine

import (
	"context"

	"travel-cms/backend/internal/policy/domain"
)

// GrantEvaluator decides whether an inviter holding one role may issue an invitation for another.
type GrantEvaluator interface {
	CanGrant(ctx context.Context, inviterRole, targetRole string) (bool, error)
}

// StaticEvaluator answers grant questions straight from the loaded IssuancePolicy.
type StaticEvaluator struct {
	policy *domain.IssuancePolicy
}

// NewStaticEvaluator returns a StaticEvaluator over policy.
func NewStaticEvaluator(policy *domain.IssuancePolicy) *StaticEvaluator {
	return &StaticEvaluator{policy: policy}
}

func (e *StaticEvaluator) CanGrant(ctx context.Context, inviterRole, targetRole string) (bool, error) {
	return e.policy.CanGrant(inviterRole, targetRole), nil
}
