package domain

import "time"

// Message is one persisted conversation turn.
type Message struct {
	ID        string         `json:"id,omitempty"`
	SessionID string         `json:"sessionId"`
	UserID    string         `json:"userId"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`

	// Timestamp is the creation instant as Unix seconds. It duplicates
	// CreatedAt for consumers that sort or filter numerically.
	Timestamp float64 `json:"timestamp"`
}

// NewMessage builds an unsaved message stamped with the current time.
// The store assigns the ID on save.
func NewMessage(sessionID, userID, role, content string, metadata map[string]any) Message {
	now := time.Now().UTC()
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: now,
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
	}
}

// Turn reduces the message to the packer's view of it.
func (m Message) Turn() Turn {
	return Turn{Role: m.Role, Content: m.Content, Timestamp: m.CreatedAt}
}

// Session is the persisted per-conversation record. Summary is empty
// until the packer triggers the first re-summarization.
type Session struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SuggestionRecord stores the three follow-up suggestions attached to one
// assistant message.
type SuggestionRecord struct {
	SessionID   string    `json:"sessionId"`
	UserID      string    `json:"userId"`
	MessageID   string    `json:"messageId"`
	Suggestions []string  `json:"suggestions"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MetricsRecord stores the latency profile of one completed request.
// TTFTMs is nil when no tokens were emitted.
type MetricsRecord struct {
	SessionID     string           `json:"sessionId"`
	UserID        string           `json:"userId"`
	MessageID     string           `json:"messageId"`
	TTFTMs        *int64           `json:"ttftMs"`
	TotalMs       int64            `json:"totalMs"`
	ToolCallCount int              `json:"toolCallCount"`
	AgentTimings  map[string]int64 `json:"agentTimings"`
	Timestamp     time.Time        `json:"timestamp"`
}

// ToolCallRecord is one persisted Executor tool call, linked to the
// assistant message it contributed to.
type ToolCallRecord struct {
	SessionID string         `json:"sessionId"`
	UserID    string         `json:"userId"`
	MessageID string         `json:"messageId"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latencyMs"`
	Timestamp time.Time      `json:"timestamp"`
}

// SessionMetrics aggregates the metrics records of one session. The
// averages are nil when the session has no completed requests.
type SessionMetrics struct {
	SessionID      string   `json:"sessionId"`
	TotalRequests  int64    `json:"totalRequests"`
	AvgTTFTMs      *float64 `json:"avgTtftMs"`
	AvgTotalTimeMs *float64 `json:"avgTotalTimeMs"`
	TotalToolCalls int64    `json:"totalToolCalls"`
}

// Totals reports store-wide counters for the vitals endpoint.
type Totals struct {
	Sessions          int64    `json:"totalSessions"`
	Messages          int64    `json:"totalMessages"`
	ToolCalls         int64    `json:"totalToolCalls"`
	AvgResponseTimeMs *float64 `json:"avgResponseTimeMs"`
}
