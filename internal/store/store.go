// Package store persists session event streams and summaries. Two backends
// implement the same interface: a JSON-lines file store (the wire format
// external tooling reads) and a SQLite store. Every write is flushed before
// the call returns, so a concurrent reader always sees the latest committed
// state.
package store

import (
	"context"

	"github.com/quantford/tradepilot/internal/domain"
)

// Store is the durable sink for events and summaries.
//
// AppendEvent stamps a timestamp if the event carries none and persists the
// event even when validation fails (lenient mode logs and proceeds; strict
// mode returns the validation error without writing). Events are immutable
// once written.
//
// ReadEvents returns the ordered stream for a session, the last tail entries
// when tail > 0. Malformed persisted records are skipped, never surfaced.
//
// WriteSummary overwrites the whole summary document and stamps LastUpdated.
// ReadSummary returns (nil, nil) when the summary is absent or corrupt.
type Store interface {
	AppendEvent(ctx context.Context, event *domain.Event) error
	ReadEvents(ctx context.Context, sessionID string, tail int) ([]domain.Event, error)
	WriteSummary(ctx context.Context, summary *domain.Summary) error
	ReadSummary(ctx context.Context, sessionID string) (*domain.Summary, error)
	ListSessions(ctx context.Context) ([]string, error)
	Close() error
}

// CalculateROI returns the percent change from initial to current capital,
// or 0 when initial is not positive.
func CalculateROI(initial, current float64) float64 {
	if initial <= 0 {
		return 0
	}
	return (current - initial) / initial * 100
}
