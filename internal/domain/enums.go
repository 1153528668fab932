// Package domain defines the core domain models for the workflow runner.
package domain

// RunStatus represents the status of a session.
type RunStatus string

const (
	RunStatusCreated        RunStatus = "created"
	RunStatusRunning        RunStatus = "running"
	RunStatusSuccess        RunStatus = "success"
	RunStatusFailed         RunStatus = "failed"
	RunStatusError          RunStatus = "error"
	RunStatusAborted        RunStatus = "aborted"
	RunStatusCircuitBreaker RunStatus = "circuit_breaker"
)

// PhaseStatus represents the outcome of a single phase.
type PhaseStatus string

const (
	PhaseStatusSuccess PhaseStatus = "success"
	PhaseStatusTimeout PhaseStatus = "timeout"
	PhaseStatusError   PhaseStatus = "error"
)

// CheckStatus represents the outcome of a pre-flight check.
type CheckStatus string

const (
	CheckStatusSuccess  CheckStatus = "success"
	CheckStatusWarning  CheckStatus = "warning"
	CheckStatusCritical CheckStatus = "critical"
)

// EventType represents the type of an event. The set is open: readers must
// tolerate types they do not know.
type EventType string

const (
	EventTypeRunnerStart        EventType = "runner_start"
	EventTypePhaseStart         EventType = "phase_start"
	EventTypePhaseEnd           EventType = "phase_end"
	EventTypeCheckpoint         EventType = "checkpoint"
	EventTypeHeartbeat          EventType = "heartbeat"
	EventTypeCircuitBreaker     EventType = "circuit_breaker"
	EventTypeAutocorrectAttempt EventType = "autocorrect_attempt"
	EventTypeSummaryUpdated     EventType = "summary_updated"
	EventTypeWorkflowAborted    EventType = "workflow_aborted"
	EventTypeRunnerEnd          EventType = "runner_end"
	EventTypeError              EventType = "error"
)

// Level represents the severity of an event.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)
