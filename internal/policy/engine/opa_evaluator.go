package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"travel-cms/backend/internal/policy/domain"
)

// GrantQuery is the Rego rule every issuance module must define.
const GrantQuery = "data.travelcms.invitation.allow"

// DefaultGrantModule allows a grant when the target role is in the inviter's grant list.
const DefaultGrantModule = `package travelcms.invitation

default allow := false

allow if {
	input.target_role in input.grants[input.inviter_role]
}
`

// OPAEvaluator evaluates grant decisions with a compiled Rego module. The IssuancePolicy's grant
// table is passed as input so operators can layer extra rules on top of it.
type OPAEvaluator struct {
	policy *domain.IssuancePolicy
	query  rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles module (DefaultGrantModule when empty) and prepares GrantQuery.
func NewOPAEvaluator(ctx context.Context, policy *domain.IssuancePolicy, module string) (*OPAEvaluator, error) {
	if strings.TrimSpace(module) == "" {
		module = DefaultGrantModule
	}
	compiler, err := ast.CompileModules(map[string]string{"issuance.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile issuance policy: %w", err)
	}
	q, err := rego.New(rego.Query(GrantQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare issuance policy: %w", err)
	}
	return &OPAEvaluator{policy: policy, query: q}, nil
}

// NewOPAEvaluatorFromFile loads the Rego module at path; an empty path uses DefaultGrantModule.
func NewOPAEvaluatorFromFile(ctx context.Context, policy *domain.IssuancePolicy, path string) (*OPAEvaluator, error) {
	if strings.TrimSpace(path) == "" {
		return NewOPAEvaluator(ctx, policy, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read issuance policy: %w", err)
	}
	return NewOPAEvaluator(ctx, policy, string(b))
}

func (e *OPAEvaluator) input(inviterRole, targetRole string) map[string]interface{} {
	grants := make(map[string]interface{}, len(e.policy.Grants))
	for from, tos := range e.policy.Grants {
		list := make([]interface{}, len(tos))
		for i, to := range tos {
			list[i] = to
		}
		grants[from] = list
	}
	return map[string]interface{}{
		"inviter_role": inviterRole,
		"target_role":  targetRole,
		"grants":       grants,
	}
}

// CanGrant evaluates the prepared query. Anything but a boolean true is a denial.
func (e *OPAEvaluator) CanGrant(ctx context.Context, inviterRole, targetRole string) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(e.input(inviterRole, targetRole)))
	if err != nil {
		return false, fmt.Errorf("eval issuance policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}

// HealthCheck evaluates the prepared query once to prove the engine is usable.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	rs, err := e.query.Eval(ctx, rego.EvalInput(e.input(domain.RoleViewer, domain.RoleViewer)))
	if err != nil {
		return fmt.Errorf("eval issuance policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("issuance policy query returned no result")
	}
	return nil
}
