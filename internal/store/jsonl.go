package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/quantford/tradepilot/internal/domain"
	"go.uber.org/zap"
)

// FileStore persists one directory per session: an append-only
// events.jsonl (one JSON object per line) and a summary.json document.
type FileStore struct {
	dir    string
	mode   ValidationMode
	logger *zap.Logger

	mu sync.Mutex
}

// NewFileStore creates the store root directory if needed.
func NewFileStore(dir string, mode ValidationMode, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}
	return &FileStore{dir: dir, mode: mode, logger: logger}, nil
}

func (s *FileStore) sessionDir(sessionID string) string {
	return filepath.Join(s.dir, sessionID)
}

// AppendEvent appends one JSON line and fsyncs before returning.
func (s *FileStore) AppendEvent(ctx context.Context, event *domain.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Level == "" {
		event.Level = domain.LevelInfo
	}

	if err := ValidateEvent(event); err != nil {
		if s.mode == ValidationStrict {
			return fmt.Errorf("event validation failed: %w", err)
		}
		s.logger.Warn("event failed validation, persisting anyway",
			zap.String("session_id", event.SessionID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.sessionDir(event.SessionID), 0o755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	path := filepath.Join(s.sessionDir(event.SessionID), "events.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to flush event log: %w", err)
	}
	return nil
}

// ReadEvents returns the ordered event stream, the last tail entries when
// tail > 0. Lines that do not parse are skipped.
func (s *FileStore) ReadEvents(ctx context.Context, sessionID string, tail int) ([]domain.Event, error) {
	path := filepath.Join(s.sessionDir(sessionID), "events.jsonl")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	var events []domain.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e domain.Event
		if err := json.Unmarshal(line, &e); err != nil {
			s.logger.Warn("skipping malformed event line",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}

	if tail > 0 && len(events) > tail {
		events = events[len(events)-tail:]
	}
	return events, nil
}

// WriteSummary overwrites the whole document atomically (write temp, fsync,
// rename) and stamps last_updated.
func (s *FileStore) WriteSummary(ctx context.Context, summary *domain.Summary) error {
	summary.LastUpdated = time.Now().UTC()

	if err := ValidateSummary(summary); err != nil {
		if s.mode == ValidationStrict {
			return fmt.Errorf("summary validation failed: %w", err)
		}
		s.logger.Warn("summary failed validation, persisting anyway",
			zap.String("session_id", summary.SessionID),
			zap.Error(err),
		)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.sessionDir(summary.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	tmp := filepath.Join(dir, "summary.json.tmp")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open summary temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush summary: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close summary temp file: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, "summary.json")); err != nil {
		return fmt.Errorf("failed to replace summary: %w", err)
	}
	return nil
}

// ReadSummary returns nil when the document is absent or corrupt.
func (s *FileStore) ReadSummary(ctx context.Context, sessionID string) (*domain.Summary, error) {
	data, err := os.ReadFile(filepath.Join(s.sessionDir(sessionID), "summary.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	var summary domain.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		s.logger.Warn("summary document is corrupt",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, nil
	}
	return &summary, nil
}

// ListSessions returns known session IDs in lexical order.
func (s *FileStore) ListSessions(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var sessions []string
	for _, e := range entries {
		if e.IsDir() {
			sessions = append(sessions, e.Name())
		}
	}
	sort.Strings(sessions)
	return sessions, nil
}

func (s *FileStore) Close() error { return nil }
