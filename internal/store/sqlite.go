package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/quantford/tradepilot/internal/domain"
	"go.uber.org/zap"
)

// SQLiteStore implements Store on SQLite. Each event row carries the full
// JSON document as payload so the two backends stay byte-compatible; the
// extracted columns exist for indexing only.
type SQLiteStore struct {
	db     *sql.DB
	mode   ValidationMode
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(dsn string, mode ValidationMode, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Immediate flush: every commit hits disk before the call returns.
	if _, err := db.Exec("PRAGMA synchronous = FULL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	s := &SQLiteStore{db: db, mode: mode, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			level TEXT NOT NULL,
			payload TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, ts)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			session_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) ensureSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (session_id, created_at) VALUES (?, ?)`,
		sessionID, time.Now().UTC())
	return err
}

// AppendEvent inserts one event row.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *domain.Event) error {
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

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.ensureSession(ctx, event.SessionID); err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, session_id, ts, type, level, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		"evt_"+uuid.New().String()[:8], event.SessionID, event.Timestamp.UnixMilli(),
		event.Type, event.Level, string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// ReadEvents returns the ordered stream for a session. Rows whose payload no
// longer parses are skipped.
func (s *SQLiteStore) ReadEvents(ctx context.Context, sessionID string, tail int) ([]domain.Event, error) {
	query := `SELECT payload FROM events WHERE session_id = ? ORDER BY ts ASC, rowid ASC`
	if tail > 0 {
		query = fmt.Sprintf(
			`SELECT payload FROM (SELECT payload, ts, rowid FROM events WHERE session_id = ?
			 ORDER BY ts DESC, rowid DESC LIMIT %d) ORDER BY ts ASC, rowid ASC`, tail)
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e domain.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			s.logger.Warn("skipping malformed event row",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			continue
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// WriteSummary upserts the whole document and stamps last_updated.
func (s *SQLiteStore) WriteSummary(ctx context.Context, summary *domain.Summary) error {
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

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := s.ensureSession(ctx, summary.SessionID); err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO summaries (session_id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		summary.SessionID, string(payload), summary.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	return nil
}

// ReadSummary returns nil when the document is absent or corrupt.
func (s *SQLiteStore) ReadSummary(ctx context.Context, sessionID string) (*domain.Summary, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM summaries WHERE session_id = ?`, sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	var summary domain.Summary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		s.logger.Warn("summary row is corrupt",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, nil
	}
	return &summary, nil
}

// ListSessions returns known session IDs ordered by creation time.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM sessions ORDER BY created_at ASC, session_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		sessions = append(sessions, id)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
