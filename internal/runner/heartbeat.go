package runner

import (
	"context"
	"sync"
	"time"

	"github.com/quantford/tradepilot/internal/domain"
	"go.uber.org/zap"
)

// startHeartbeat launches the heartbeat goroutine and returns the stop
// function the runner calls at exit. Stop waits a bounded time; a heartbeat
// stuck mid-write is abandoned rather than blocking teardown.
func (r *Runner) startHeartbeat(ctx context.Context) (stop func()) {
	stopCh := make(chan struct{})
	done := make(chan struct{})

	go r.heartbeatLoop(ctx, stopCh, done)

	var once sync.Once
	return func() {
		once.Do(func() { close(stopCh) })
		select {
		case <-done:
		case <-time.After(r.hbTimeout):
			r.logger.Warn("heartbeat did not stop in time, abandoning")
		}
	}
}

func (r *Runner) heartbeatLoop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := r.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			r.heartbeat(ctx)
		}
	}
}

// heartbeat reads the latest committed summary and emits one progress event.
// Every failure here is contained: the heartbeat must never affect the run.
func (r *Runner) heartbeat(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("heartbeat panicked", zap.Any("panic", rec))
		}
	}()

	summary, err := r.store.ReadSummary(ctx, r.sessionID)
	if err != nil {
		r.logger.Warn("heartbeat could not read summary", zap.Error(err))
		return
	}
	if summary == nil {
		return
	}

	metrics := map[string]interface{}{
		"equity": summary.CurrentEquity,
		"pnl":    summary.CurrentEquity - summary.InitialCapital,
		"trades": 0,
		"wins":   0,
		"losses": 0,
	}
	if summary.Totals != nil {
		metrics["trades"] = summary.Totals.Trades
		metrics["wins"] = summary.Totals.Wins
		metrics["losses"] = summary.Totals.Losses
	}

	r.appendEvent(ctx, &domain.Event{
		Type:    domain.EventTypeHeartbeat,
		Level:   domain.LevelInfo,
		Metrics: metrics,
	})
}
