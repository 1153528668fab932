package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quantford/tradepilot/internal/domain"
	"go.uber.org/zap"
)

func newFileStore(t *testing.T, mode ValidationMode) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewFileStore(dir, mode, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s, dir
}

func TestAppendAndReadEvents(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t, ValidationLenient)

	for i, typ := range []domain.EventType{domain.EventTypeRunnerStart, domain.EventTypePhaseStart, domain.EventTypePhaseEnd} {
		err := s.AppendEvent(ctx, &domain.Event{
			SessionID: "s1",
			Type:      typ,
			Level:     domain.LevelInfo,
			Details:   map[string]interface{}{"seq": i},
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
	if events[0].Type != domain.EventTypeRunnerStart || events[2].Type != domain.EventTypePhaseEnd {
		t.Fatalf("order not preserved: %v ... %v", events[0].Type, events[2].Type)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Fatalf("timestamps decreased at %d", i)
		}
	}
}

func TestAppendEventStampsMissingTimestamp(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t, ValidationLenient)

	before := time.Now().UTC()
	if err := s.AppendEvent(ctx, &domain.Event{SessionID: "s1", Type: domain.EventTypeHeartbeat}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	events, err := s.ReadEvents(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Timestamp.IsZero() {
		t.Fatalf("timestamp not stamped")
	}
	if events[0].Timestamp.Before(before.Truncate(time.Second)) {
		t.Fatalf("stamped timestamp %v predates call time %v", events[0].Timestamp, before)
	}
}

func TestReadEventsTail(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t, ValidationLenient)

	for i := 0; i < 5; i++ {
		if err := s.AppendEvent(ctx, &domain.Event{
			SessionID: "s1",
			Type:      domain.EventTypeHeartbeat,
			Details:   map[string]interface{}{"seq": i},
		}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	events, err := s.ReadEvents(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if seq := events[0].Details["seq"]; seq != float64(3) {
		t.Fatalf("tail starts at seq %v, want 3", seq)
	}
}

func TestReadEventsSkipsMalformedLines(t *testing.T) {
	ctx := context.Background()
	s, dir := newFileStore(t, ValidationLenient)

	if err := s.AppendEvent(ctx, &domain.Event{SessionID: "s1", Type: domain.EventTypeRunnerStart}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	path := filepath.Join(dir, "s1", "events.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("{this is not json\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	if err := s.AppendEvent(ctx, &domain.Event{SessionID: "s1", Type: domain.EventTypeRunnerEnd}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	events, err := s.ReadEvents(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (corrupt line skipped)", len(events))
	}
}

func TestReadEventsUnknownSession(t *testing.T) {
	s, _ := newFileStore(t, ValidationLenient)
	events, err := s.ReadEvents(context.Background(), "nope", 0)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if events != nil {
		t.Fatalf("got %v, want nil", events)
	}
}

func TestLenientModePersistsInvalidEvent(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t, ValidationLenient)

	// Missing session_id fails validation but must still be persisted...
	// except there is no stream to put it in without a session; use a bad
	// level instead.
	err := s.AppendEvent(ctx, &domain.Event{SessionID: "s1", Type: domain.EventTypeError, Level: domain.Level("silly")})
	if err != nil {
		t.Fatalf("lenient append returned error: %v", err)
	}
	events, err := s.ReadEvents(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("invalid event was not persisted")
	}
}

func TestStrictModeRejectsInvalidEvent(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t, ValidationStrict)

	err := s.AppendEvent(ctx, &domain.Event{SessionID: "s1", Type: domain.EventTypeError, Level: domain.Level("silly")})
	if err == nil {
		t.Fatalf("strict append accepted an invalid event")
	}
	events, readErr := s.ReadEvents(ctx, "s1", 0)
	if readErr != nil {
		t.Fatalf("ReadEvents: %v", readErr)
	}
	if len(events) != 0 {
		t.Fatalf("strict mode persisted a rejected event")
	}
}

func TestSummaryRoundTripStampsLastUpdated(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t, ValidationLenient)

	in := &domain.Summary{
		SessionID:      "s1",
		SessionStart:   time.Now().UTC(),
		Status:         domain.RunStatusRunning,
		PhasesTotal:    3,
		InitialCapital: 10000,
		CurrentEquity:  10000,
	}
	if err := s.WriteSummary(ctx, in); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	if in.LastUpdated.IsZero() {
		t.Fatalf("last_updated not stamped")
	}

	out, err := s.ReadSummary(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if out == nil {
		t.Fatalf("summary not found")
	}
	if out.Status != domain.RunStatusRunning || out.InitialCapital != 10000 {
		t.Fatalf("round trip mangled summary: %+v", out)
	}

	// The write overwrites the whole document.
	in.Status = domain.RunStatusSuccess
	in.PhasesCompleted = 3
	if err := s.WriteSummary(ctx, in); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	out, _ = s.ReadSummary(ctx, "s1")
	if out.Status != domain.RunStatusSuccess || out.PhasesCompleted != 3 {
		t.Fatalf("overwrite not visible: %+v", out)
	}
}

func TestReadSummaryAbsentOrCorruptReturnsNil(t *testing.T) {
	ctx := context.Background()
	s, dir := newFileStore(t, ValidationLenient)

	out, err := s.ReadSummary(ctx, "missing")
	if err != nil || out != nil {
		t.Fatalf("absent summary: got (%v, %v), want (nil, nil)", out, err)
	}

	if err := os.MkdirAll(filepath.Join(dir, "s1"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "s1", "summary.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err = s.ReadSummary(ctx, "s1")
	if err != nil || out != nil {
		t.Fatalf("corrupt summary: got (%v, %v), want (nil, nil)", out, err)
	}
}

func TestListSessions(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t, ValidationLenient)

	for _, id := range []string{"s2", "s1"} {
		if err := s.AppendEvent(ctx, &domain.Event{SessionID: id, Type: domain.EventTypeRunnerStart}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0] != "s1" || sessions[1] != "s2" {
		t.Fatalf("got %v", sessions)
	}
}

func TestCalculateROI(t *testing.T) {
	cases := []struct {
		initial, current, want float64
	}{
		{10000, 10150, 1.5},
		{10000, 9000, -10},
		{10000, 10000, 0},
		{0, 5000, 0},
		{-100, 5000, 0},
	}
	for _, c := range cases {
		if got := CalculateROI(c.initial, c.current); got != c.want {
			t.Fatalf("CalculateROI(%v, %v) = %v, want %v", c.initial, c.current, got, c.want)
		}
	}
}
