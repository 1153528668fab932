package runner

import (
	"context"
	"fmt"

	"github.com/quantford/tradepilot/internal/domain"
	"github.com/quantford/tradepilot/policy"
	"go.uber.org/zap"
)

// runPreflight executes the three gate checks. Checks are independent: one
// blowing up does not stop the others, it just records as critical.
func (r *Runner) runPreflight(ctx context.Context) []domain.CheckResult {
	specs := []struct {
		name string
		fn   CheckFunc
	}{
		{"data", r.collab.DataCheck},
		{"strategy", r.collab.StrategyCheck},
		{"api", r.collab.APICheck},
	}

	results := make([]domain.CheckResult, 0, len(specs))
	for _, s := range specs {
		res := r.safeCheck(s.name, s.fn)
		results = append(results, res)

		level := domain.LevelInfo
		switch res.Status {
		case domain.CheckStatusWarning:
			level = domain.LevelWarning
		case domain.CheckStatusCritical:
			level = domain.LevelCritical
		}
		r.appendEvent(ctx, &domain.Event{
			Type:    domain.EventTypeCheckpoint,
			Level:   level,
			Message: fmt.Sprintf("pre-flight check %s: %s", res.Name, res.Message),
			Status:  string(res.Status),
			Details: res.Details,
		})
		r.logger.Info("pre-flight check",
			zap.String("check", res.Name),
			zap.String("status", string(res.Status)),
		)
	}
	return results
}

// safeCheck converts errors and panics into critical results and tolerates
// checks that were never wired.
func (r *Runner) safeCheck(name string, fn CheckFunc) (out domain.CheckResult) {
	out = domain.CheckResult{Name: name, Status: domain.CheckStatusSuccess}
	defer func() {
		if rec := recover(); rec != nil {
			out = domain.CheckResult{
				Name:    name,
				Status:  domain.CheckStatusCritical,
				Message: fmt.Sprintf("check panicked: %v", rec),
			}
		}
	}()

	if fn == nil {
		out.Status = domain.CheckStatusWarning
		out.Message = "check not configured"
		return out
	}

	res, err := fn()
	if err != nil {
		return domain.CheckResult{
			Name:    name,
			Status:  domain.CheckStatusCritical,
			Message: err.Error(),
		}
	}
	if res == nil {
		return domain.CheckResult{
			Name:    name,
			Status:  domain.CheckStatusCritical,
			Message: "check returned no result",
		}
	}
	res.Name = name
	return *res
}

// gateDecision consults the readiness policy. Policy failure fails safe:
// the run aborts rather than trading past a broken gate.
func (r *Runner) gateDecision(ctx context.Context, checks []domain.CheckResult) string {
	if r.policy == nil {
		// No policy engine wired: the stock gate applies.
		for _, c := range checks {
			if c.Status == domain.CheckStatusCritical {
				return policy.DecisionAbort
			}
		}
		return policy.DecisionProceed
	}

	decision, err := r.policy.Evaluate(ctx, checks)
	if err != nil {
		r.logger.Error("readiness policy evaluation failed, aborting run", zap.Error(err))
		return policy.DecisionAbort
	}
	return decision
}

func filterChecks(checks []domain.CheckResult, status domain.CheckStatus) []domain.CheckResult {
	var out []domain.CheckResult
	for _, c := range checks {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out
}
