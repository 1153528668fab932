// Package scheduler executes one phase function at a time under a wall-clock
// budget. Timeouts are soft: the phase runs to completion synchronously and
// the elapsed time is classified afterwards. Phases are assumed cooperative;
// nothing here cancels an in-flight phase.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/quantford/tradepilot/internal/domain"
	"go.uber.org/zap"
)

// PhaseFunc is the narrow contract a phase implements. The returned map
// conventionally carries a "status" key; a non-nil error classifies the
// phase as errored.
type PhaseFunc func() (map[string]interface{}, error)

// CheckFunc is a post-pause checkpoint probe.
type CheckFunc func() (map[string]interface{}, error)

// EventFunc receives lifecycle events (phase_start, phase_end, checkpoint)
// as they happen. May be nil.
type EventFunc func(event *domain.Event)

// CheckOutcome is the result of a pause-and-check step. Check failures are
// contained here, never propagated.
type CheckOutcome struct {
	Status domain.PhaseStatus     `json:"status"`
	Paused time.Duration          `json:"paused"`
	Result map[string]interface{} `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// Scheduler runs phases and accumulates their results.
type Scheduler struct {
	maxPause time.Duration
	logger   *zap.Logger

	// injectable for tests
	now   func() time.Time
	sleep func(time.Duration)

	mu      sync.Mutex
	results map[string]*domain.PhaseResult
}

// New creates a scheduler. maxPauseMinutes caps every pause-and-check sleep;
// values < 1 fall back to 1 minute so a misconfiguration can never park the
// workflow indefinitely.
func New(maxPauseMinutes int, logger *zap.Logger) *Scheduler {
	if maxPauseMinutes < 1 {
		maxPauseMinutes = 1
	}
	return &Scheduler{
		maxPause: time.Duration(maxPauseMinutes) * time.Minute,
		logger:   logger,
		now:      time.Now,
		sleep:    time.Sleep,
		results:  map[string]*domain.PhaseResult{},
	}
}

// RunPhase executes fn synchronously and classifies the outcome:
// error return -> error, elapsed > timeout -> timeout, otherwise success.
// The raw result map is retained on the PhaseResult in every case.
func (s *Scheduler) RunPhase(sessionID, name string, fn PhaseFunc, timeout time.Duration, onEvent EventFunc) *domain.PhaseResult {
	start := s.now()
	s.emit(onEvent, &domain.Event{
		SessionID: sessionID,
		Type:      domain.EventTypePhaseStart,
		Phase:     name,
		Level:     domain.LevelInfo,
		Message:   fmt.Sprintf("phase %s started (budget %s)", name, timeout),
	})
	s.logger.Info("phase started",
		zap.String("phase", name),
		zap.Duration("timeout", timeout),
	)

	result, err := s.runGuarded(fn)
	end := s.now()
	elapsed := end.Sub(start)

	pr := &domain.PhaseResult{
		Phase:           name,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: elapsed.Seconds(),
		Result:          result,
	}
	switch {
	case err != nil:
		pr.Status = domain.PhaseStatusError
		pr.Error = err.Error()
	case elapsed > timeout:
		pr.Status = domain.PhaseStatusTimeout
		pr.Error = fmt.Sprintf("phase exceeded budget: ran %s, budget %s", elapsed.Round(time.Millisecond), timeout)
	default:
		pr.Status = domain.PhaseStatusSuccess
	}

	s.mu.Lock()
	s.results[name] = pr
	s.mu.Unlock()

	level := domain.LevelInfo
	if pr.Status != domain.PhaseStatusSuccess {
		level = domain.LevelError
	}
	s.emit(onEvent, &domain.Event{
		SessionID:       sessionID,
		Type:            domain.EventTypePhaseEnd,
		Phase:           name,
		Level:           level,
		Status:          string(pr.Status),
		Error:           pr.Error,
		DurationSeconds: pr.DurationSeconds,
	})
	s.logger.Info("phase ended",
		zap.String("phase", name),
		zap.String("status", string(pr.Status)),
		zap.Float64("duration_s", pr.DurationSeconds),
	)
	return pr
}

// runGuarded converts a phase panic into an error so one misbehaving phase
// cannot take down the runner.
func (s *Scheduler) runGuarded(fn PhaseFunc) (result map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("phase panicked: %v", r)
		}
	}()
	return fn()
}

// PauseAndCheck sleeps min(pause, maxPause) and then runs checkFn, containing
// any failure in the returned outcome.
func (s *Scheduler) PauseAndCheck(sessionID string, checkFn CheckFunc, pause time.Duration, onEvent EventFunc) *CheckOutcome {
	if pause > s.maxPause {
		s.logger.Warn("pause capped",
			zap.Duration("requested", pause),
			zap.Duration("cap", s.maxPause),
		)
		pause = s.maxPause
	}
	if pause > 0 {
		s.sleep(pause)
	}

	outcome := &CheckOutcome{Status: domain.PhaseStatusSuccess, Paused: pause}
	result, err := s.runGuarded(PhaseFunc(checkFn))
	outcome.Result = result
	if err != nil {
		outcome.Status = domain.PhaseStatusError
		outcome.Error = err.Error()
		s.logger.Warn("checkpoint check failed", zap.Error(err))
	}

	level := domain.LevelInfo
	if outcome.Status != domain.PhaseStatusSuccess {
		level = domain.LevelWarning
	}
	s.emit(onEvent, &domain.Event{
		SessionID:       sessionID,
		Type:            domain.EventTypeCheckpoint,
		Level:           level,
		Status:          string(outcome.Status),
		Error:           outcome.Error,
		DurationSeconds: pause.Seconds(),
	})
	return outcome
}

// Metrics returns a copy of the accumulated phase results.
func (s *Scheduler) Metrics() map[string]domain.PhaseResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.PhaseResult, len(s.results))
	for name, pr := range s.results {
		out[name] = *pr
	}
	return out
}

func (s *Scheduler) emit(onEvent EventFunc, e *domain.Event) {
	if onEvent != nil {
		onEvent(e)
	}
}

// SetClock overrides the time source and sleeper. Test hook.
func (s *Scheduler) SetClock(now func() time.Time, sleep func(time.Duration)) {
	if now != nil {
		s.now = now
	}
	if sleep != nil {
		s.sleep = sleep
	}
}
