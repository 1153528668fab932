// Package breaker implements a multi-threshold drawdown circuit breaker.
// Thresholds latch monotonically: once fired, a threshold stays fired until
// an explicit Reset, regardless of equity recovery. One sharp drop that
// crosses several levels fires all of them, in ascending order — escalation,
// not highest-only.
package breaker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Threshold is one drawdown level bound to ordered actions.
type Threshold struct {
	Level       float64    `json:"level"` // positive percent, e.g. 10 means -10% drawdown
	Description string     `json:"description"`
	Triggered   bool       `json:"triggered"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`

	actions []Action
}

// Snapshot is a point-in-time view of the manager state.
type Snapshot struct {
	Enabled         bool        `json:"enabled"`
	OnlyProduction  bool        `json:"only_production"`
	Triggered       bool        `json:"triggered"`
	TriggeredLevel  float64     `json:"triggered_level,omitempty"`
	CurrentDrawdown float64     `json:"current_drawdown"`
	EquityPoints    int         `json:"equity_points"`
	Thresholds      []Threshold `json:"thresholds"`
}

// Manager owns the threshold list and the session equity curve.
type Manager struct {
	mu             sync.Mutex
	enabled        bool
	onlyProduction bool
	thresholds     []*Threshold
	equity         []float64
	triggered      bool
	triggeredLevel float64
	executor       executor
	logger         *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithHooks wires the external collaborators behind notify/pause/shutdown/
// rebalance actions.
func WithHooks(h Hooks) Option {
	return func(m *Manager) { m.executor.hooks = h }
}

// Disabled builds the manager disarmed; Check always returns false.
func Disabled() Option {
	return func(m *Manager) { m.enabled = false }
}

// ProductionOnly controls the dry-run safety gate: when set (the default),
// Check is a no-op for dry runs because no real capital is at stake.
func ProductionOnly(v bool) Option {
	return func(m *Manager) { m.onlyProduction = v }
}

// NewManager creates an armed manager with no thresholds.
func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		enabled:        true,
		onlyProduction: true,
		logger:         logger,
		executor:       executor{logger: logger},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddThreshold inserts a threshold and keeps the list sorted ascending by
// level. Level must be positive.
func (m *Manager) AddThreshold(level float64, actions []Action, description string) error {
	if level <= 0 {
		return fmt.Errorf("threshold level must be positive, got %v", level)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.thresholds = append(m.thresholds, &Threshold{
		Level:       level,
		Description: description,
		actions:     actions,
	})
	sort.Slice(m.thresholds, func(i, j int) bool {
		return m.thresholds[i].Level < m.thresholds[j].Level
	})
	return nil
}

// UpdateEquity appends one observation to the equity curve.
func (m *Manager) UpdateEquity(value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = append(m.equity, value)
}

// CurrentDrawdown returns the percent decline of the latest equity point from
// the running peak: (last - peak) / peak * 100, so a drop reads negative.
// Returns 0 with fewer than two points or a non-positive peak.
func (m *Manager) CurrentDrawdown() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drawdownLocked()
}

func (m *Manager) drawdownLocked() float64 {
	if len(m.equity) < 2 {
		return 0
	}
	peak := m.equity[0]
	for _, v := range m.equity[1:] {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		return 0
	}
	last := m.equity[len(m.equity)-1]
	return (last - peak) / peak * 100
}

// MaxDrawdown returns the deepest peak-to-trough decline observed anywhere in
// the curve, as a positive percent. Used for the final summary.
func (m *Manager) MaxDrawdown() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.equity) < 2 {
		return 0
	}
	peak := m.equity[0]
	worst := 0.0
	for _, v := range m.equity[1:] {
		if v > peak {
			peak = v
			continue
		}
		if peak > 0 {
			if dd := (peak - v) / peak * 100; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// Check evaluates every threshold against the current drawdown. A threshold
// fires when drawdown < -level and it has not fired before; all newly
// crossed thresholds fire in ascending order and the manager records the
// highest crossed level. Returns true iff at least one threshold fired.
//
// When disabled, or when the dry-run gate applies, Check returns false
// without evaluating or mutating anything.
func (m *Manager) Check(isDryRun bool) bool {
	m.mu.Lock()

	if !m.enabled || (m.onlyProduction && isDryRun) {
		m.mu.Unlock()
		return false
	}

	drawdown := m.drawdownLocked()
	type firing struct {
		threshold *Threshold
		actions   []Action
	}
	var fired []firing
	for _, t := range m.thresholds {
		if t.Triggered || drawdown >= -t.Level {
			continue
		}
		now := time.Now().UTC()
		t.Triggered = true
		t.TriggeredAt = &now
		m.triggered = true
		if t.Level > m.triggeredLevel {
			m.triggeredLevel = t.Level
		}
		fired = append(fired, firing{threshold: t, actions: t.actions})
	}
	m.mu.Unlock()

	// Actions run outside the lock: they call external collaborators and
	// must not be able to deadlock the manager.
	for _, f := range fired {
		trip := Trip{Level: f.threshold.Level, Drawdown: drawdown, Description: f.threshold.Description}
		m.logger.Warn("circuit breaker threshold fired",
			zap.Float64("level", f.threshold.Level),
			zap.Float64("drawdown", drawdown),
			zap.String("description", f.threshold.Description),
		)
		for _, a := range f.actions {
			m.executor.execute(a, trip)
		}
	}
	return len(fired) > 0
}

// CheckEquity appends an equity observation and then evaluates. The gate
// applies first: a disabled or dry-run-suppressed check touches nothing,
// not even the curve. Callers that want the curve recorded regardless (the
// runner does, for the final max-drawdown figure) call UpdateEquity
// themselves and then Check.
func (m *Manager) CheckEquity(equity float64, isDryRun bool) bool {
	m.mu.Lock()
	gated := !m.enabled || (m.onlyProduction && isDryRun)
	if !gated {
		m.equity = append(m.equity, equity)
	}
	m.mu.Unlock()
	if gated {
		return false
	}
	return m.Check(isDryRun)
}

// Reset clears every latch and the manager trip state. The equity curve is
// untouched: rearming does not forget history.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.thresholds {
		t.Triggered = false
		t.TriggeredAt = nil
	}
	m.triggered = false
	m.triggeredLevel = 0
	m.logger.Info("circuit breaker reset, all thresholds rearmed")
}

// ResetEquityCurve clears the curve without touching any latch.
func (m *Manager) ResetEquityCurve() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = nil
}

// Triggered reports whether any threshold has fired, and the highest level
// crossed so far.
func (m *Manager) Triggered() (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggered, m.triggeredLevel
}

// Status returns a full snapshot for diagnostics.
func (m *Manager) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Enabled:         m.enabled,
		OnlyProduction:  m.onlyProduction,
		Triggered:       m.triggered,
		TriggeredLevel:  m.triggeredLevel,
		CurrentDrawdown: m.drawdownLocked(),
		EquityPoints:    len(m.equity),
	}
	for _, t := range m.thresholds {
		snap.Thresholds = append(snap.Thresholds, *t)
	}
	return snap
}
