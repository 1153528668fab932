package store

import (
	"context"
	"testing"
	"time"

	"github.com/quantford/tradepilot/internal/domain"
	"go.uber.org/zap"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", ValidationLenient, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteAppendAndReadEvents(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	base := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	for i, typ := range []domain.EventType{domain.EventTypeRunnerStart, domain.EventTypeHeartbeat, domain.EventTypeRunnerEnd} {
		err := s.AppendEvent(ctx, &domain.Event{
			SessionID: "s1",
			Type:      typ,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	events, err := s.ReadEvents(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Type != domain.EventTypeRunnerStart || events[2].Type != domain.EventTypeRunnerEnd {
		t.Fatalf("order not preserved: %v ... %v", events[0].Type, events[2].Type)
	}

	tail, err := s.ReadEvents(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("ReadEvents tail: %v", err)
	}
	if len(tail) != 2 || tail[0].Type != domain.EventTypeHeartbeat {
		t.Fatalf("tail wrong: %+v", tail)
	}
}

func TestSQLiteSummaryUpsert(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	sum := &domain.Summary{
		SessionID:      "s1",
		SessionStart:   time.Now().UTC(),
		Status:         domain.RunStatusRunning,
		PhasesTotal:    3,
		InitialCapital: 10000,
		CurrentEquity:  10000,
	}
	if err := s.WriteSummary(ctx, sum); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	sum.Status = domain.RunStatusSuccess
	sum.CurrentEquity = 10150
	if err := s.WriteSummary(ctx, sum); err != nil {
		t.Fatalf("WriteSummary (second): %v", err)
	}

	out, err := s.ReadSummary(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if out == nil || out.Status != domain.RunStatusSuccess || out.CurrentEquity != 10150 {
		t.Fatalf("got %+v", out)
	}
}

func TestSQLiteReadSummaryAbsent(t *testing.T) {
	s := newSQLiteStore(t)
	out, err := s.ReadSummary(context.Background(), "missing")
	if err != nil || out != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", out, err)
	}
}

func TestSQLiteListSessions(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	for _, id := range []string{"a", "b"} {
		if err := s.AppendEvent(ctx, &domain.Event{SessionID: id, Type: domain.EventTypeRunnerStart}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %v", sessions)
	}
}
