package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quantford/tradepilot/internal/domain"
)

func TestRetryRecoversAfterTransientFailures(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t, testConfig(), nil, Collaborators{})

	var slept []time.Duration
	r.sleep = func(d time.Duration) { slept = append(slept, d) }

	calls := 0
	val, err := r.RetryWithBackoff(ctx, "broker_ping", func() (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset")
		}
		return "pong", nil
	})
	if err != nil {
		t.Fatalf("RetryWithBackoff: %v", err)
	}
	if val != "pong" {
		t.Fatalf("got %v, want pong", val)
	}
	if calls != 3 {
		t.Fatalf("got %d calls, want 3", calls)
	}

	// Exponential backoff between the failed attempts: base, then 2x base.
	if len(slept) != 2 || slept[0] != time.Millisecond || slept[1] != 2*time.Millisecond {
		t.Fatalf("unexpected sleeps: %v", slept)
	}

	events, err := r.store.ReadEvents(ctx, r.SessionID(), 0)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if n := countEvents(events, domain.EventTypeAutocorrectAttempt); n != 2 {
		t.Fatalf("got %d autocorrect_attempt events, want 2", n)
	}
	for _, e := range events {
		if e.Type == domain.EventTypeAutocorrectAttempt && e.Status != "retrying" {
			t.Fatalf("got status %q on a recovered retry, want retrying", e.Status)
		}
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t, testConfig(), nil, Collaborators{})
	r.sleep = func(time.Duration) {}

	calls := 0
	_, err := r.RetryWithBackoff(ctx, "order_sync", func() (interface{}, error) {
		calls++
		return nil, errors.New("still down")
	})
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if err.Error() != "order_sync failed after 3 attempts: still down" {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("got %d calls, want 3", calls)
	}

	events, readErr := r.store.ReadEvents(ctx, r.SessionID(), 0)
	if readErr != nil {
		t.Fatalf("ReadEvents: %v", readErr)
	}
	attempts := make([]domain.Event, 0, 3)
	for _, e := range events {
		if e.Type == domain.EventTypeAutocorrectAttempt {
			attempts = append(attempts, e)
		}
	}
	if len(attempts) != 3 {
		t.Fatalf("got %d autocorrect_attempt events, want 3", len(attempts))
	}
	if attempts[0].Status != "retrying" || attempts[1].Status != "retrying" {
		t.Fatalf("early attempts not marked retrying: %q %q", attempts[0].Status, attempts[1].Status)
	}
	last := attempts[2]
	if last.Status != "failed" || last.Level != domain.LevelError {
		t.Fatalf("final attempt not marked failed/error: status=%q level=%q", last.Status, last.Level)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	r := newTestRunner(t, testConfig(), nil, Collaborators{})
	r.cfg.Retry.BaseDelay = 100 * time.Millisecond
	r.cfg.Retry.MaxDelay = 350 * time.Millisecond

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 350 * time.Millisecond}, // 400 capped
		{4, 350 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := r.backoffDelay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %v, want %v", tc.attempt, got, tc.want)
		}
	}
}
