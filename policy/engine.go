// Package policy decides whether a run may proceed past the pre-flight gate.
// The decision is a rego policy evaluated over the check results, so
// operators can tighten the gate (e.g. abort on warnings too) without
// touching runner code.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
	"github.com/quantford/tradepilot/internal/domain"
)

// Decision values returned by the readiness policy.
const (
	DecisionProceed = "proceed"
	DecisionAbort   = "abort"
)

// Engine is the OPA readiness-gate engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares the given rego policy for evaluation.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.readiness.decision"),
		rego.Module("readiness.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate runs the policy over the pre-flight check results and returns
// the decision. Callers fail safe: any error here should be treated as abort.
func (e *Engine) Evaluate(ctx context.Context, checks []domain.CheckResult) (string, error) {
	input := map[string]interface{}{"checks": checksAsInput(checks)}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate readiness policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default; an empty result means it does not.
		return "", fmt.Errorf("readiness policy produced no decision")
	}

	val := results[0].Expressions[0].Value
	decision, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("readiness policy returned %T, want string", val)
	}
	switch decision {
	case DecisionProceed, DecisionAbort:
		return decision, nil
	default:
		return "", fmt.Errorf("readiness policy returned unknown decision %q", decision)
	}
}

func checksAsInput(checks []domain.CheckResult) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(checks))
	for _, c := range checks {
		out = append(out, map[string]interface{}{
			"name":    c.Name,
			"status":  string(c.Status),
			"message": c.Message,
		})
	}
	return out
}

// DefaultPolicy encodes the stock gate: any critical check aborts the run,
// warnings proceed.
const DefaultPolicy = `
package readiness

import rego.v1

default decision := "proceed"

decision := "abort" if {
	some check in input.checks
	check.status == "critical"
}
`
