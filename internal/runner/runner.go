// Package runner drives one trading-readiness session end to end: pre-flight
// gate, the three validation phases in fixed order, breaker consultation
// after every equity update, and a finalize block that runs no matter how
// the session ends. A heartbeat goroutine emits progress independently for
// the whole run.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quantford/tradepilot/internal/breaker"
	"github.com/quantford/tradepilot/internal/config"
	"github.com/quantford/tradepilot/internal/domain"
	"github.com/quantford/tradepilot/internal/scheduler"
	"github.com/quantford/tradepilot/internal/store"
	"github.com/quantford/tradepilot/policy"
	"go.uber.org/zap"
)

// CheckFunc is the narrow contract of a pre-flight check. An error return
// (or panic) converts to a critical result.
type CheckFunc func() (*domain.CheckResult, error)

// Collaborators are the external callables the runner orchestrates. Any nil
// member degrades to a harmless default; the runner never requires real
// trading infrastructure to execute.
type Collaborators struct {
	DataCheck     CheckFunc
	StrategyCheck CheckFunc
	APICheck      CheckFunc

	DataPhase     scheduler.PhaseFunc
	StrategyPhase scheduler.PhaseFunc
	APIPhase      scheduler.PhaseFunc

	// Checkpoint runs after the pause between phases.
	Checkpoint scheduler.CheckFunc

	// Equity reports the current account equity. Defaults to holding the
	// last known value.
	Equity func() (float64, error)
}

// Runner is the top-level workflow state machine. One Runner instance per
// session; Run may be called once.
type Runner struct {
	cfg       *config.Config
	store     store.Store
	sched     *scheduler.Scheduler
	breaker   *breaker.Manager
	policy    *policy.Engine
	logger    *zap.Logger
	collab    Collaborators
	sessionID string

	// injectable for tests
	now       func() time.Time
	sleep     func(time.Duration)
	hbTimeout time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithSessionID pins the session ID instead of generating one.
func WithSessionID(id string) Option {
	return func(r *Runner) { r.sessionID = id }
}

// New wires a runner. All dependencies are explicit; there is no ambient
// configuration.
func New(cfg *config.Config, st store.Store, sched *scheduler.Scheduler, brk *breaker.Manager, pol *policy.Engine, logger *zap.Logger, collab Collaborators, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		store:     st,
		sched:     sched,
		breaker:   brk,
		policy:    pol,
		logger:    logger,
		collab:    collab,
		sessionID: "sess_" + uuid.New().String()[:8],
		now:       time.Now,
		sleep:     time.Sleep,
		hbTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.collab.Equity == nil {
		r.collab.Equity = func() (float64, error) { return cfg.InitialCapital, nil }
	}
	return r
}

// SessionID returns the session this runner writes under.
func (r *Runner) SessionID() string { return r.sessionID }

type phaseSpec struct {
	name    string
	fn      scheduler.PhaseFunc
	timeout time.Duration
}

func (r *Runner) phases() []phaseSpec {
	return []phaseSpec{
		{domain.PhaseData, orDefault(r.collab.DataPhase, domain.PhaseData), r.cfg.PhaseTimeouts.Data},
		{domain.PhaseStrategy, orDefault(r.collab.StrategyPhase, domain.PhaseStrategy), r.cfg.PhaseTimeouts.Strategy},
		{domain.PhaseAPI, orDefault(r.collab.APIPhase, domain.PhaseAPI), r.cfg.PhaseTimeouts.API},
	}
}

func orDefault(fn scheduler.PhaseFunc, name string) scheduler.PhaseFunc {
	if fn != nil {
		return fn
	}
	return func() (map[string]interface{}, error) {
		return map[string]interface{}{"status": "success", "note": name + " not configured"}, nil
	}
}

// Run executes the whole workflow and returns the final summary. The
// returned error covers infrastructure failure only; workflow outcomes
// (failed phase, breaker trip, pre-flight abort) are reported through
// Summary.Status.
func (r *Runner) Run(ctx context.Context) (*domain.Summary, error) {
	start := r.now()
	summary := &domain.Summary{
		SessionID:      r.sessionID,
		SessionStart:   start.UTC(),
		Status:         domain.RunStatusRunning,
		PhasesTotal:    len(r.phases()),
		InitialCapital: r.cfg.InitialCapital,
		CurrentEquity:  r.cfg.InitialCapital,
	}
	r.writeSummary(ctx, summary)

	r.appendEvent(ctx, &domain.Event{
		Type:    domain.EventTypeRunnerStart,
		Level:   domain.LevelInfo,
		Message: "workflow runner started",
		Details: map[string]interface{}{
			"dry_run":         r.cfg.DryRun,
			"initial_capital": r.cfg.InitialCapital,
			"phases_total":    summary.PhasesTotal,
		},
	})
	r.logger.Info("runner started",
		zap.String("session_id", r.sessionID),
		zap.Bool("dry_run", r.cfg.DryRun),
	)

	stopHeartbeat := r.startHeartbeat(ctx)

	// Finalize runs on every exit path, including panics out of collaborator
	// code that escaped the scheduler's guard.
	defer func() {
		stopHeartbeat()
		r.finalize(ctx, summary, start)
	}()

	// Pre-flight gate: three independent checks, policy decides.
	checks := r.runPreflight(ctx)
	decision := r.gateDecision(ctx, checks)
	if decision == policy.DecisionAbort {
		summary.Status = domain.RunStatusAborted
		summary.AbortReason = "pre_live_checks_failed"
		r.appendEvent(ctx, &domain.Event{
			Type:    domain.EventTypeWorkflowAborted,
			Level:   domain.LevelCritical,
			Message: "pre-flight checks failed, aborting before any phase",
			Details: map[string]interface{}{
				"critical_failures": filterChecks(checks, domain.CheckStatusCritical),
				"warnings":          filterChecks(checks, domain.CheckStatusWarning),
			},
		})
		return summary, nil
	}

	// Seed the equity curve so the first post-phase observation already has
	// a peak to measure against.
	r.breaker.UpdateEquity(r.cfg.InitialCapital)

	phases := r.phases()
	for i, p := range phases {
		pr := r.sched.RunPhase(r.sessionID, p.name, p.fn, p.timeout, r.onSchedulerEvent(ctx))

		equity := r.currentEquity(summary)
		summary.CurrentEquity = equity
		if pr.Status == domain.PhaseStatusSuccess && phaseResultOK(pr.Result) {
			summary.PhasesCompleted++
		}
		r.writeSummary(ctx, summary)

		r.breaker.UpdateEquity(equity)
		if r.breaker.Check(r.cfg.DryRun) {
			_, level := r.breaker.Triggered()
			summary.Status = domain.RunStatusCircuitBreaker
			r.appendEvent(ctx, &domain.Event{
				Type:    domain.EventTypeCircuitBreaker,
				Phase:   p.name,
				Level:   domain.LevelCritical,
				Message: fmt.Sprintf("circuit breaker tripped at level %.1f, terminating workflow", level),
				Metrics: map[string]interface{}{
					"equity":   equity,
					"drawdown": r.breaker.CurrentDrawdown(),
					"level":    level,
				},
			})
			r.logger.Error("circuit breaker tripped, skipping remaining phases",
				zap.String("phase", p.name),
				zap.Float64("level", level),
			)
			return summary, nil
		}

		if pr.Status == domain.PhaseStatusError {
			summary.Status = domain.RunStatusError
			return summary, nil
		}
		if pr.Status != domain.PhaseStatusSuccess || !phaseResultOK(pr.Result) {
			summary.Status = domain.RunStatusFailed
			return summary, nil
		}

		if i < len(phases)-1 {
			r.sched.PauseAndCheck(r.sessionID, r.checkpoint(), r.cfg.PauseSeconds, r.onSchedulerEvent(ctx))
		}
	}

	summary.Status = domain.RunStatusSuccess
	return summary, nil
}

// phaseResultOK inspects the raw result map's status key. Phases that return
// no map, or a map without status, pass: the scheduler has already vouched
// for them.
func phaseResultOK(result map[string]interface{}) bool {
	if result == nil {
		return true
	}
	status, ok := result["status"]
	if !ok {
		return true
	}
	s, ok := status.(string)
	return ok && s == "success"
}

func (r *Runner) checkpoint() scheduler.CheckFunc {
	if r.collab.Checkpoint != nil {
		return r.collab.Checkpoint
	}
	return func() (map[string]interface{}, error) {
		return map[string]interface{}{"status": "success"}, nil
	}
}

// currentEquity polls the equity collaborator, holding the last known value
// when the poll fails. A flaky equity feed must not decide the run.
func (r *Runner) currentEquity(summary *domain.Summary) float64 {
	equity, err := r.collab.Equity()
	if err != nil {
		r.logger.Warn("equity poll failed, holding last value",
			zap.Float64("last", summary.CurrentEquity),
			zap.Error(err),
		)
		return summary.CurrentEquity
	}
	return equity
}

// finalize computes the closing figures and writes the final summary. It
// must succeed partially even when the store is unhealthy, so every write
// error is logged, never returned.
func (r *Runner) finalize(ctx context.Context, summary *domain.Summary, start time.Time) {
	end := r.now()

	if summary.Status == domain.RunStatusRunning {
		// Only reachable when something escaped every containment layer.
		summary.Status = domain.RunStatusError
	}

	endUTC := end.UTC()
	summary.SessionEnd = &endUTC
	summary.RuntimeSecs = end.Sub(start).Seconds()
	summary.ROI = store.CalculateROI(summary.InitialCapital, summary.CurrentEquity)
	if md := r.breaker.MaxDrawdown(); md > 0 {
		summary.MaxDrawdownPercent = md
	}
	if triggered, level := r.breaker.Triggered(); triggered {
		summary.CircuitBreakerTriggered = true
		summary.CircuitBreakerReason = fmt.Sprintf("drawdown crossed -%.1f%%", level)
	}
	r.writeSummary(ctx, summary)

	r.appendEvent(ctx, &domain.Event{
		Type:            domain.EventTypeRunnerEnd,
		Level:           domain.LevelInfo,
		Message:         fmt.Sprintf("workflow runner finished with status %s", summary.Status),
		Status:          string(summary.Status),
		DurationSeconds: summary.RuntimeSecs,
		Metrics: map[string]interface{}{
			"roi":              summary.ROI,
			"phases_completed": summary.PhasesCompleted,
			"equity":           summary.CurrentEquity,
		},
	})
	r.logger.Info("runner finished",
		zap.String("session_id", r.sessionID),
		zap.String("status", string(summary.Status)),
		zap.Float64("roi", summary.ROI),
		zap.Float64("runtime_s", summary.RuntimeSecs),
	)
}

// onSchedulerEvent forwards scheduler lifecycle events into the store.
func (r *Runner) onSchedulerEvent(ctx context.Context) scheduler.EventFunc {
	return func(e *domain.Event) {
		r.appendEvent(ctx, e)
	}
}

// appendEvent persists one event, stamping the session. Sink failures are
// logged and swallowed: losing one event must never affect the run outcome.
func (r *Runner) appendEvent(ctx context.Context, e *domain.Event) {
	if e.SessionID == "" {
		e.SessionID = r.sessionID
	}
	if err := r.store.AppendEvent(ctx, e); err != nil {
		r.logger.Error("failed to append event",
			zap.String("type", string(e.Type)),
			zap.Error(err),
		)
	}
}

// writeSummary persists the rolling summary, deriving ROI on every write,
// and emits a summary_updated event. Sink failures are swallowed.
func (r *Runner) writeSummary(ctx context.Context, summary *domain.Summary) {
	summary.ROI = store.CalculateROI(summary.InitialCapital, summary.CurrentEquity)
	if err := r.store.WriteSummary(ctx, summary); err != nil {
		r.logger.Error("failed to write summary", zap.Error(err))
		return
	}
	r.appendEvent(ctx, &domain.Event{
		Type:  domain.EventTypeSummaryUpdated,
		Level: domain.LevelInfo,
		Metrics: map[string]interface{}{
			"equity":           summary.CurrentEquity,
			"phases_completed": summary.PhasesCompleted,
		},
	})
}
