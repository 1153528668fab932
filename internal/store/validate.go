package store

import (
	"fmt"

	"github.com/quantford/tradepilot/internal/domain"
)

// ValidationMode controls how schema violations are handled on write.
type ValidationMode int

const (
	// ValidationLenient logs violations and persists the record anyway.
	// This is the default: losing an audit record is worse than keeping a
	// malformed one.
	ValidationLenient ValidationMode = iota
	// ValidationStrict rejects the write. Intended for offline audit
	// tooling, not the live pipeline.
	ValidationStrict
)

var validLevels = map[domain.Level]bool{
	domain.LevelInfo:     true,
	domain.LevelWarning:  true,
	domain.LevelError:    true,
	domain.LevelCritical: true,
}

// ValidateEvent checks the shape of an event. The type set is open on
// purpose; only structural fields are enforced.
func ValidateEvent(e *domain.Event) error {
	if e.SessionID == "" {
		return fmt.Errorf("event missing session_id")
	}
	if e.Type == "" {
		return fmt.Errorf("event missing type")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("event missing timestamp")
	}
	if e.Level != "" && !validLevels[e.Level] {
		return fmt.Errorf("event has unknown level %q", e.Level)
	}
	return nil
}

// ValidateSummary checks the shape of a summary document.
func ValidateSummary(s *domain.Summary) error {
	if s.SessionID == "" {
		return fmt.Errorf("summary missing session_id")
	}
	if s.Status == "" {
		return fmt.Errorf("summary missing status")
	}
	if s.PhasesTotal < 0 || s.PhasesCompleted < 0 {
		return fmt.Errorf("summary has negative phase counters")
	}
	if s.PhasesCompleted > s.PhasesTotal {
		return fmt.Errorf("summary phases_completed %d exceeds phases_total %d", s.PhasesCompleted, s.PhasesTotal)
	}
	if s.LastUpdated.IsZero() {
		return fmt.Errorf("summary missing last_updated")
	}
	return nil
}
