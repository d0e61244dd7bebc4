// Package sqlite implements ports.Store on an embedded SQLite database,
// for durable single-node deployments without external services.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aretw0/quartet/pkg/domain"
)

// Store implements ports.Store using SQLite in WAL mode.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database under dataDir and runs migrations.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("sqlite: create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "quartet.db"))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("sqlite: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("sqlite: migration: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			summary    TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			metadata   TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			ts         REAL NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);

		CREATE TABLE IF NOT EXISTS suggestions (
			message_id  TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			suggestions TEXT NOT NULL,
			created_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_suggestions_session ON suggestions(session_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS metrics (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id    TEXT NOT NULL,
			user_id       TEXT NOT NULL,
			message_id    TEXT NOT NULL,
			ttft_ms       INTEGER,
			total_ms      INTEGER NOT NULL,
			tool_calls    INTEGER NOT NULL,
			agent_timings TEXT NOT NULL DEFAULT '{}',
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_metrics_session ON metrics(session_id);

		CREATE TABLE IF NOT EXISTS tool_calls (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			message_id TEXT NOT NULL,
			tool       TEXT NOT NULL,
			args       TEXT NOT NULL DEFAULT '{}',
			status     TEXT NOT NULL,
			latency_ms INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: corrupt timestamp %q: %w", value, err)
	}
	return t, nil
}

func scanSession(scan func(dest ...any) error) (domain.Session, error) {
	var sess domain.Session
	var createdAt, updatedAt string
	if err := scan(&sess.SessionID, &sess.UserID, &sess.Summary, &createdAt, &updatedAt); err != nil {
		return domain.Session{}, err
	}
	var err error
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Session{}, err
	}
	if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

// GetOrCreateSession returns the session, creating it on first use.
func (s *Store) GetOrCreateSession(ctx context.Context, sessionID, userID string) (domain.Session, error) {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, summary, created_at, updated_at)
		 VALUES (?, ?, '', ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		sessionID, userID, now, now)
	if err != nil {
		return domain.Session{}, fmt.Errorf("sqlite: create session: %w", err)
	}
	return s.GetSession(ctx, sessionID)
}

// GetSession retrieves an existing session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, summary, created_at, updated_at
		 FROM sessions WHERE session_id = ?`, sessionID)
	sess, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("sqlite: get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, user_id, summary, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and everything recorded under it.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: delete session: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"sessions", "messages", "suggestions", "metrics", "tool_calls"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", sessionID); err != nil {
			return fmt.Errorf("sqlite: delete from %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// SaveMessage appends a message and returns its assigned ID.
func (s *Store) SaveMessage(ctx context.Context, msg domain.Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return "", fmt.Errorf("sqlite: marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, user_id, role, content, metadata, created_at, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.UserID, msg.Role, msg.Content, string(metadata),
		formatTime(msg.CreatedAt), msg.Timestamp)
	if err != nil {
		return "", fmt.Errorf("sqlite: save message: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE session_id = ?`,
		formatTime(time.Now()), msg.SessionID)
	if err != nil {
		return "", fmt.Errorf("sqlite: touch session: %w", err)
	}
	return msg.ID, nil
}

// Messages returns messages in ascending insertion order. A positive
// limit keeps only the most recent entries.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = -1 // No limit.
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_id, role, content, metadata, created_at, ts FROM (
			SELECT seq, id, session_id, user_id, role, content, metadata, created_at, ts
			FROM messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq ASC`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var msg domain.Message
		var metadata, createdAt string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.UserID, &msg.Role, &msg.Content,
			&metadata, &createdAt, &msg.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metadata), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: corrupt message metadata: %w", err)
		}
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// CountMessages returns the number of persisted messages for a session.
func (s *Store) CountMessages(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count messages: %w", err)
	}
	return n, nil
}

// Summary returns the session summary, or "" when none exists.
func (s *Store) Summary(ctx context.Context, sessionID string) (string, error) {
	var summary string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM sessions WHERE session_id = ?`, sessionID).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: get summary: %w", err)
	}
	return summary, nil
}

// SetSummary upserts the session summary.
func (s *Store) SetSummary(ctx context.Context, sessionID, userID, summary string) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, summary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at`,
		sessionID, userID, summary, now, now)
	if err != nil {
		return fmt.Errorf("sqlite: set summary: %w", err)
	}
	return nil
}

// SaveSuggestions stores the suggestions attached to a message.
func (s *Store) SaveSuggestions(ctx context.Context, rec domain.SuggestionRecord) error {
	suggestions, err := json.Marshal(rec.Suggestions)
	if err != nil {
		return fmt.Errorf("sqlite: marshal suggestions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO suggestions (message_id, session_id, user_id, suggestions, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(message_id) DO UPDATE SET suggestions = excluded.suggestions`,
		rec.MessageID, rec.SessionID, rec.UserID, string(suggestions), formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: save suggestions: %w", err)
	}
	return nil
}

func scanSuggestionRecord(scan func(dest ...any) error) (domain.SuggestionRecord, error) {
	var rec domain.SuggestionRecord
	var suggestions, createdAt string
	if err := scan(&rec.MessageID, &rec.SessionID, &rec.UserID, &suggestions, &createdAt); err != nil {
		return domain.SuggestionRecord{}, err
	}
	if err := json.Unmarshal([]byte(suggestions), &rec.Suggestions); err != nil {
		return domain.SuggestionRecord{}, fmt.Errorf("sqlite: corrupt suggestions: %w", err)
	}
	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.SuggestionRecord{}, err
	}
	return rec, nil
}

// SuggestionsByMessage looks up suggestions by message ID.
func (s *Store) SuggestionsByMessage(ctx context.Context, messageID string) (domain.SuggestionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT message_id, session_id, user_id, suggestions, created_at
		 FROM suggestions WHERE message_id = ?`, messageID)
	rec, err := scanSuggestionRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SuggestionRecord{}, domain.ErrSuggestionsNotFound
	}
	if err != nil {
		return domain.SuggestionRecord{}, fmt.Errorf("sqlite: get suggestions: %w", err)
	}
	return rec, nil
}

// SuggestionsBySession returns suggestion records newest first.
func (s *Store) SuggestionsBySession(ctx context.Context, sessionID string, limit int) ([]domain.SuggestionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, user_id, suggestions, created_at
		 FROM suggestions WHERE session_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list suggestions: %w", err)
	}
	defer rows.Close()

	var out []domain.SuggestionRecord
	for rows.Next() {
		rec, err := scanSuggestionRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveMetrics stores per-request pipeline metrics.
func (s *Store) SaveMetrics(ctx context.Context, rec domain.MetricsRecord) error {
	timings, err := json.Marshal(rec.AgentTimings)
	if err != nil {
		return fmt.Errorf("sqlite: marshal agent timings: %w", err)
	}

	var ttft any
	if rec.TTFTMs != nil {
		ttft = *rec.TTFTMs
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO metrics (session_id, user_id, message_id, ttft_ms, total_ms, tool_calls, agent_timings, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.UserID, rec.MessageID, ttft, rec.TotalMs, rec.ToolCallCount,
		string(timings), formatTime(rec.Timestamp))
	if err != nil {
		return fmt.Errorf("sqlite: save metrics: %w", err)
	}
	return nil
}

// SessionMetrics aggregates metrics for one session. Averages are nil
// when no samples exist; AVG skips requests without a first token.
func (s *Store) SessionMetrics(ctx context.Context, sessionID string) (domain.SessionMetrics, error) {
	agg := domain.SessionMetrics{SessionID: sessionID}

	var avgTTFT, avgTotal sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(ttft_ms), AVG(total_ms), COALESCE(SUM(tool_calls), 0)
		 FROM metrics WHERE session_id = ?`, sessionID).
		Scan(&agg.TotalRequests, &avgTTFT, &avgTotal, &agg.TotalToolCalls)
	if err != nil {
		return domain.SessionMetrics{}, fmt.Errorf("sqlite: aggregate metrics: %w", err)
	}

	if avgTTFT.Valid {
		agg.AvgTTFTMs = &avgTTFT.Float64
	}
	if avgTotal.Valid {
		agg.AvgTotalTimeMs = &avgTotal.Float64
	}
	return agg, nil
}

// SaveToolCall stores one tool invocation record.
func (s *Store) SaveToolCall(ctx context.Context, rec domain.ToolCallRecord) error {
	args, err := json.Marshal(rec.Args)
	if err != nil {
		return fmt.Errorf("sqlite: marshal tool call args: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (session_id, user_id, message_id, tool, args, status, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.UserID, rec.MessageID, rec.Tool, string(args), rec.Status,
		rec.LatencyMs, formatTime(rec.Timestamp))
	if err != nil {
		return fmt.Errorf("sqlite: save tool call: %w", err)
	}
	return nil
}

// Totals reports store-wide counts and the global average response time.
func (s *Store) Totals(ctx context.Context) (domain.Totals, error) {
	var totals domain.Totals
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM tool_calls),
			(SELECT AVG(total_ms) FROM metrics)`).
		Scan(&totals.Sessions, &totals.Messages, &totals.ToolCalls, &avg)
	if err != nil {
		return domain.Totals{}, fmt.Errorf("sqlite: totals: %w", err)
	}
	if avg.Valid {
		totals.AvgResponseTimeMs = &avg.Float64
	}
	return totals, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
