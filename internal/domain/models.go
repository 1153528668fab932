package domain

import "time"

// Event is one append-only record in a session's event stream. Events are
// immutable once written; their order in the stream is append order.
type Event struct {
	Timestamp       time.Time              `json:"timestamp"`
	SessionID       string                 `json:"session_id"`
	Type            EventType              `json:"type"`
	Phase           string                 `json:"phase,omitempty"`
	Level           Level                  `json:"level"`
	Message         string                 `json:"message,omitempty"`
	Metrics         map[string]interface{} `json:"metrics,omitempty"`
	Order           map[string]interface{} `json:"order,omitempty"`
	Details         map[string]interface{} `json:"details,omitempty"`
	Status          string                 `json:"status,omitempty"`
	Error           string                 `json:"error,omitempty"`
	DurationSeconds float64                `json:"duration_seconds,omitempty"`
}

// Totals aggregates trade counters for a session.
type Totals struct {
	Trades int `json:"trades"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
}

// Summary is the single mutable document per session. Every write overwrites
// the whole document and stamps LastUpdated.
type Summary struct {
	SessionID               string     `json:"session_id"`
	SessionStart            time.Time  `json:"session_start"`
	SessionEnd              *time.Time `json:"session_end,omitempty"`
	Status                  RunStatus  `json:"status"`
	AbortReason             string     `json:"abort_reason,omitempty"`
	PhasesCompleted         int        `json:"phases_completed"`
	PhasesTotal             int        `json:"phases_total"`
	InitialCapital          float64    `json:"initial_capital"`
	CurrentEquity           float64    `json:"current_equity"`
	Totals                  *Totals    `json:"totals,omitempty"`
	ROI                     float64    `json:"roi"`
	MaxDrawdownPercent      float64    `json:"max_drawdown_percent,omitempty"`
	RuntimeSecs             float64    `json:"runtime_secs,omitempty"`
	LastUpdated             time.Time  `json:"last_updated"`
	CircuitBreakerTriggered bool       `json:"circuit_breaker_triggered,omitempty"`
	CircuitBreakerReason    string     `json:"circuit_breaker_reason,omitempty"`
}

// PhaseResult captures the outcome of one scheduled phase.
type PhaseResult struct {
	Phase           string                 `json:"phase"`
	Status          PhaseStatus            `json:"status"`
	StartTime       time.Time              `json:"start_time"`
	EndTime         time.Time              `json:"end_time"`
	DurationSeconds float64                `json:"duration_seconds"`
	Error           string                 `json:"error,omitempty"`
	Result          map[string]interface{} `json:"phase_result,omitempty"`
}

// CheckResult is the narrow return shape of a pre-flight check.
type CheckResult struct {
	Name    string                 `json:"name"`
	Status  CheckStatus            `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Phase names, executed in fixed order.
const (
	PhaseData     = "data_validation"
	PhaseStrategy = "strategy_validation"
	PhaseAPI      = "api_connectivity"
)
