// Package redis implements ports.Store and ports.DistributedLocker on
// Redis, for multi-replica deployments.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/quartet/pkg/domain"
)

// Store implements ports.Store using Redis. Sessions are JSON values
// indexed by a ZSET scored on update time; messages, suggestions, metrics
// and tool calls are per-session lists. The vitals counters are lifetime
// figures: TTL expiry of the underlying data does not decrement them.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for session data. Zero keeps data forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "quartet:",
		ttl:    0, // No expiration by default
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) sessionKey(sessionID string) string {
	return s.prefix + "session:" + sessionID
}

func (s *Store) indexKey() string {
	return s.prefix + "sessions"
}

func (s *Store) messagesKey(sessionID string) string {
	return s.prefix + "messages:" + sessionID
}

func (s *Store) suggestionsByMessageKey(messageID string) string {
	return s.prefix + "suggestions:message:" + messageID
}

func (s *Store) suggestionsKey(sessionID string) string {
	return s.prefix + "suggestions:session:" + sessionID
}

func (s *Store) metricsKey(sessionID string) string {
	return s.prefix + "metrics:" + sessionID
}

func (s *Store) toolCallsKey(sessionID string) string {
	return s.prefix + "toolcalls:" + sessionID
}

func (s *Store) counterKey(name string) string {
	return s.prefix + "total:" + name
}

// saveSession writes the session JSON and refreshes its index entry.
func (s *Store) saveSession(ctx context.Context, sess domain.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.sessionKey(sess.SessionID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(sess.UpdatedAt.UnixMilli()),
		Member: sess.SessionID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

// GetOrCreateSession returns the session, creating it on first use.
func (s *Store) GetOrCreateSession(ctx context.Context, sessionID, userID string) (domain.Session, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if err != domain.ErrSessionNotFound {
		return domain.Session{}, err
	}

	now := time.Now().UTC()
	sess = domain.Session{
		SessionID: sessionID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.saveSession(ctx, sess); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

// GetSession retrieves an existing session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	val, err := s.client.Get(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		if err == backend.Nil {
			return domain.Session{}, domain.ErrSessionNotFound
		}
		return domain.Session{}, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return domain.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return sess, nil
}

// ListSessions returns all live sessions, most recently updated first.
// Index entries whose session key has expired are pruned on the way.
func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	out := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if err == domain.ErrSessionNotFound {
			// Lazy cleanup of expired entries.
			s.client.ZRem(ctx, s.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// DeleteSession removes a session and everything recorded under it.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	// Collect the per-message suggestion keys before dropping the list.
	recs, err := s.suggestionRecords(ctx, sessionID)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	for _, rec := range recs {
		pipe.Del(ctx, s.suggestionsByMessageKey(rec.MessageID))
	}
	pipe.Del(ctx,
		s.sessionKey(sessionID),
		s.messagesKey(sessionID),
		s.suggestionsKey(sessionID),
		s.metricsKey(sessionID),
		s.toolCallsKey(sessionID),
	)
	pipe.ZRem(ctx, s.indexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

// SaveMessage appends a message and returns its assigned ID.
func (s *Store) SaveMessage(ctx context.Context, msg domain.Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.messagesKey(msg.SessionID), data)
	pipe.Incr(ctx, s.counterKey("messages"))
	if s.ttl > 0 {
		pipe.Expire(ctx, s.messagesKey(msg.SessionID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to save message to redis: %w", err)
	}

	if sess, err := s.GetSession(ctx, msg.SessionID); err == nil {
		sess.UpdatedAt = time.Now().UTC()
		if err := s.saveSession(ctx, sess); err != nil {
			return "", err
		}
	}
	return msg.ID, nil
}

// Messages returns messages in ascending insertion order. A positive
// limit keeps only the most recent entries.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	vals, err := s.client.LRange(ctx, s.messagesKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	out := make([]domain.Message, 0, len(vals))
	for _, val := range vals {
		var msg domain.Message
		if err := json.Unmarshal([]byte(val), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// CountMessages returns the number of persisted messages for a session.
func (s *Store) CountMessages(ctx context.Context, sessionID string) (int64, error) {
	n, err := s.client.LLen(ctx, s.messagesKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// Summary returns the session summary, or "" when none exists.
func (s *Store) Summary(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err == domain.ErrSessionNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sess.Summary, nil
}

// SetSummary upserts the session summary.
func (s *Store) SetSummary(ctx context.Context, sessionID, userID, summary string) error {
	now := time.Now().UTC()
	sess, err := s.GetSession(ctx, sessionID)
	if err == domain.ErrSessionNotFound {
		sess = domain.Session{SessionID: sessionID, UserID: userID, CreatedAt: now}
	} else if err != nil {
		return err
	}
	sess.Summary = summary
	sess.UpdatedAt = now
	return s.saveSession(ctx, sess)
}

// SaveSuggestions stores the suggestions attached to a message.
func (s *Store) SaveSuggestions(ctx context.Context, rec domain.SuggestionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal suggestions: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.suggestionsByMessageKey(rec.MessageID), data, s.ttl)
	pipe.RPush(ctx, s.suggestionsKey(rec.SessionID), data)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.suggestionsKey(rec.SessionID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save suggestions to redis: %w", err)
	}
	return nil
}

// SuggestionsByMessage looks up suggestions by message ID.
func (s *Store) SuggestionsByMessage(ctx context.Context, messageID string) (domain.SuggestionRecord, error) {
	val, err := s.client.Get(ctx, s.suggestionsByMessageKey(messageID)).Result()
	if err != nil {
		if err == backend.Nil {
			return domain.SuggestionRecord{}, domain.ErrSuggestionsNotFound
		}
		return domain.SuggestionRecord{}, fmt.Errorf("failed to get suggestions from redis: %w", err)
	}

	var rec domain.SuggestionRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return domain.SuggestionRecord{}, fmt.Errorf("failed to unmarshal suggestions: %w", err)
	}
	return rec, nil
}

func (s *Store) suggestionRecords(ctx context.Context, sessionID string) ([]domain.SuggestionRecord, error) {
	vals, err := s.client.LRange(ctx, s.suggestionsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load suggestions: %w", err)
	}
	out := make([]domain.SuggestionRecord, 0, len(vals))
	for _, val := range vals {
		var rec domain.SuggestionRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal suggestions: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// SuggestionsBySession returns suggestion records newest first.
func (s *Store) SuggestionsBySession(ctx context.Context, sessionID string, limit int) ([]domain.SuggestionRecord, error) {
	recs, err := s.suggestionRecords(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Stored in save order; reverse for newest first.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// SaveMetrics stores per-request pipeline metrics.
func (s *Store) SaveMetrics(ctx context.Context, rec domain.MetricsRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.metricsKey(rec.SessionID), data)
	pipe.Incr(ctx, s.counterKey("responses"))
	pipe.IncrBy(ctx, s.counterKey("response_ms"), rec.TotalMs)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.metricsKey(rec.SessionID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save metrics to redis: %w", err)
	}
	return nil
}

// SessionMetrics aggregates metrics for one session. Averages are nil
// when no samples exist; the time-to-first-token average skips requests
// that produced no tokens.
func (s *Store) SessionMetrics(ctx context.Context, sessionID string) (domain.SessionMetrics, error) {
	vals, err := s.client.LRange(ctx, s.metricsKey(sessionID), 0, -1).Result()
	if err != nil {
		return domain.SessionMetrics{}, fmt.Errorf("failed to load metrics: %w", err)
	}

	agg := domain.SessionMetrics{SessionID: sessionID}
	if len(vals) == 0 {
		return agg, nil
	}

	var ttftSum, totalSum float64
	var ttftN int
	for _, val := range vals {
		var rec domain.MetricsRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return domain.SessionMetrics{}, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		if rec.TTFTMs != nil {
			ttftSum += float64(*rec.TTFTMs)
			ttftN++
		}
		totalSum += float64(rec.TotalMs)
		agg.TotalToolCalls += int64(rec.ToolCallCount)
	}
	agg.TotalRequests = int64(len(vals))
	if ttftN > 0 {
		avg := ttftSum / float64(ttftN)
		agg.AvgTTFTMs = &avg
	}
	avgTotal := totalSum / float64(len(vals))
	agg.AvgTotalTimeMs = &avgTotal
	return agg, nil
}

// SaveToolCall stores one tool invocation record.
func (s *Store) SaveToolCall(ctx context.Context, rec domain.ToolCallRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal tool call: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.toolCallsKey(rec.SessionID), data)
	pipe.Incr(ctx, s.counterKey("toolcalls"))
	if s.ttl > 0 {
		pipe.Expire(ctx, s.toolCallsKey(rec.SessionID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save tool call to redis: %w", err)
	}
	return nil
}

func (s *Store) counter(ctx context.Context, name string) (int64, error) {
	val, err := s.client.Get(ctx, s.counterKey(name)).Result()
	if err == backend.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", name, err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt counter %s: %w", name, err)
	}
	return n, nil
}

// Totals reports store-wide counts and the global average response time.
func (s *Store) Totals(ctx context.Context) (domain.Totals, error) {
	sessions, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return domain.Totals{}, fmt.Errorf("failed to count sessions: %w", err)
	}
	messages, err := s.counter(ctx, "messages")
	if err != nil {
		return domain.Totals{}, err
	}
	toolCalls, err := s.counter(ctx, "toolcalls")
	if err != nil {
		return domain.Totals{}, err
	}

	totals := domain.Totals{
		Sessions:  sessions,
		Messages:  messages,
		ToolCalls: toolCalls,
	}

	responses, err := s.counter(ctx, "responses")
	if err != nil {
		return domain.Totals{}, err
	}
	if responses > 0 {
		responseMs, err := s.counter(ctx, "response_ms")
		if err != nil {
			return domain.Totals{}, err
		}
		avg := float64(responseMs) / float64(responses)
		totals.AvgResponseTimeMs = &avg
	}
	return totals, nil
}

// Ping verifies the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
