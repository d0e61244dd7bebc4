// Package memory implements ports.Store in process memory. It backs
// tests and single-node runs where durability is not required.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/quartet/pkg/domain"
)

// Store keeps all session data in memory.
// Safe for concurrent use.
type Store struct {
	sessions    map[string]domain.Session
	messages    map[string][]domain.Message
	suggestions map[string][]domain.SuggestionRecord
	byMessage   map[string]domain.SuggestionRecord
	metrics     map[string][]domain.MetricsRecord
	toolCalls   map[string][]domain.ToolCallRecord
	closed      bool
	mu          sync.RWMutex
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions:    make(map[string]domain.Session),
		messages:    make(map[string][]domain.Message),
		suggestions: make(map[string][]domain.SuggestionRecord),
		byMessage:   make(map[string]domain.SuggestionRecord),
		metrics:     make(map[string][]domain.MetricsRecord),
		toolCalls:   make(map[string][]domain.ToolCallRecord),
	}
}

// GetOrCreateSession returns the session, creating it on first use.
func (s *Store) GetOrCreateSession(ctx context.Context, sessionID, userID string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok {
		return sess, nil
	}
	now := time.Now().UTC()
	sess := domain.Session{
		SessionID: sessionID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sessionID] = sess
	return sess, nil
}

// GetSession retrieves an existing session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return sess, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// DeleteSession removes a session and everything recorded under it.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.suggestions[sessionID] {
		delete(s.byMessage, rec.MessageID)
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	delete(s.suggestions, sessionID)
	delete(s.metrics, sessionID)
	delete(s.toolCalls, sessionID)
	return nil
}

// SaveMessage appends a message and returns its assigned ID.
func (s *Store) SaveMessage(ctx context.Context, msg domain.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	if sess, ok := s.sessions[msg.SessionID]; ok {
		sess.UpdatedAt = time.Now().UTC()
		s.sessions[msg.SessionID] = sess
	}
	return msg.ID, nil
}

// Messages returns messages in ascending timestamp order. A positive
// limit keeps only the most recent entries.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// CountMessages returns the number of persisted messages for a session.
func (s *Store) CountMessages(ctx context.Context, sessionID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.messages[sessionID])), nil
}

// Summary returns the session summary, or "" when none exists.
func (s *Store) Summary(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID].Summary, nil
}

// SetSummary upserts the session summary.
func (s *Store) SetSummary(ctx context.Context, sessionID, userID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = domain.Session{SessionID: sessionID, UserID: userID, CreatedAt: now}
	}
	sess.Summary = summary
	sess.UpdatedAt = now
	s.sessions[sessionID] = sess
	return nil
}

// SaveSuggestions stores the suggestions attached to a message.
func (s *Store) SaveSuggestions(ctx context.Context, rec domain.SuggestionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.suggestions[rec.SessionID] = append(s.suggestions[rec.SessionID], rec)
	s.byMessage[rec.MessageID] = rec
	return nil
}

// SuggestionsByMessage looks up suggestions by message ID.
func (s *Store) SuggestionsByMessage(ctx context.Context, messageID string) (domain.SuggestionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byMessage[messageID]
	if !ok {
		return domain.SuggestionRecord{}, domain.ErrSuggestionsNotFound
	}
	return rec, nil
}

// SuggestionsBySession returns suggestion records newest first.
func (s *Store) SuggestionsBySession(ctx context.Context, sessionID string, limit int) ([]domain.SuggestionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.suggestions[sessionID]
	out := make([]domain.SuggestionRecord, len(recs))
	copy(out, recs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveMetrics stores per-request pipeline metrics.
func (s *Store) SaveMetrics(ctx context.Context, rec domain.MetricsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[rec.SessionID] = append(s.metrics[rec.SessionID], rec)
	return nil
}

// SessionMetrics aggregates metrics for one session. Averages are nil
// when no samples exist; the time-to-first-token average skips requests
// that produced no tokens.
func (s *Store) SessionMetrics(ctx context.Context, sessionID string) (domain.SessionMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := domain.SessionMetrics{SessionID: sessionID}
	recs := s.metrics[sessionID]
	if len(recs) == 0 {
		return agg, nil
	}

	var ttftSum, totalSum float64
	var ttftN int
	for _, r := range recs {
		if r.TTFTMs != nil {
			ttftSum += float64(*r.TTFTMs)
			ttftN++
		}
		totalSum += float64(r.TotalMs)
		agg.TotalToolCalls += int64(r.ToolCallCount)
	}
	agg.TotalRequests = int64(len(recs))
	if ttftN > 0 {
		avg := ttftSum / float64(ttftN)
		agg.AvgTTFTMs = &avg
	}
	avgTotal := totalSum / float64(len(recs))
	agg.AvgTotalTimeMs = &avgTotal
	return agg, nil
}

// SaveToolCall stores one tool invocation record.
func (s *Store) SaveToolCall(ctx context.Context, rec domain.ToolCallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolCalls[rec.SessionID] = append(s.toolCalls[rec.SessionID], rec)
	return nil
}

// Totals reports store-wide counts and the global average response time.
func (s *Store) Totals(ctx context.Context) (domain.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := domain.Totals{Sessions: int64(len(s.sessions))}
	for _, msgs := range s.messages {
		totals.Messages += int64(len(msgs))
	}
	for _, calls := range s.toolCalls {
		totals.ToolCalls += int64(len(calls))
	}

	var sum float64
	var n int
	for _, recs := range s.metrics {
		for _, r := range recs {
			sum += float64(r.TotalMs)
			n++
		}
	}
	if n > 0 {
		avg := sum / float64(n)
		totals.AvgResponseTimeMs = &avg
	}
	return totals, nil
}

// Ping reports whether the store is usable.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("store closed")
	}
	return nil
}

// Close marks the store closed. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
