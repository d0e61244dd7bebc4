package domain

import (
	"context"
	"time"
)

// EventType defines the category of the stream event.
type EventType string

const (
	EventAgent             EventType = "agent"
	EventToolCallStarted   EventType = "tool_call_started"
	EventToolCallCompleted EventType = "tool_call_completed"
	EventToken             EventType = "token"
	EventDone              EventType = "done"
	EventError             EventType = "error"
)

// Event is one relay emission: a named event plus its JSON-serializable
// payload. Data holds the payload struct matching Type.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// AgentPayload announces the stage the pipeline just entered.
type AgentPayload struct {
	Name Stage `json:"name"`
}

// ToolCallStartedPayload announces one Executor query before it runs.
type ToolCallStartedPayload struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ToolCallCompletedPayload reports the outcome of one Executor query.
type ToolCallCompletedPayload struct {
	Tool      string `json:"tool"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
}

// TokenPayload carries one whitespace-delimited unit of the final answer,
// trailing whitespace included. Concatenating every token payload in
// emission order reproduces the full answer byte for byte.
type TokenPayload struct {
	Text string `json:"text"`
}

// Timings is the latency profile reported in the done event. Instants are
// Unix milliseconds. FirstTokenAt and TTFTMs are nil when no tokens were
// emitted.
type Timings struct {
	RequestStart int64  `json:"requestStart"`
	FirstTokenAt *int64 `json:"firstTokenAt"`
	CompletedAt  int64  `json:"completedAt"`
	TTFTMs       *int64 `json:"ttftMs"`
	TotalMs      int64  `json:"totalMs"`
}

// ComputeTimings derives the latency profile from a completed request
// state.
func ComputeTimings(s RequestState) Timings {
	t := Timings{
		RequestStart: s.RequestStart.UnixMilli(),
		CompletedAt:  s.CompletedAt.UnixMilli(),
		TotalMs:      s.CompletedAt.Sub(s.RequestStart).Milliseconds(),
	}
	if !s.FirstTokenAt.IsZero() {
		firstAt := s.FirstTokenAt.UnixMilli()
		ttft := s.FirstTokenAt.Sub(s.RequestStart).Milliseconds()
		t.FirstTokenAt = &firstAt
		t.TTFTMs = &ttft
	}
	return t
}

// DonePayload is the terminal success event, emitted exactly once.
type DonePayload struct {
	FullText    string   `json:"fullText"`
	Suggestions []string `json:"suggestions"`
	Timings     Timings  `json:"timings"`
}

// ErrorPayload is the terminal failure event, mutually exclusive with
// done.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewAgentEvent builds an agent switch event.
func NewAgentEvent(stage Stage) Event {
	return Event{Type: EventAgent, Data: AgentPayload{Name: stage}}
}

// NewToolCallStartedEvent builds a tool call start event.
func NewToolCallStartedEvent(tool string, args map[string]any) Event {
	return Event{Type: EventToolCallStarted, Data: ToolCallStartedPayload{Tool: tool, Args: args}}
}

// NewToolCallCompletedEvent builds a tool call outcome event.
func NewToolCallCompletedEvent(tool string, ok bool, latencyMs int64) Event {
	return Event{Type: EventToolCallCompleted, Data: ToolCallCompletedPayload{Tool: tool, OK: ok, LatencyMs: latencyMs}}
}

// NewTokenEvent builds an incremental output event.
func NewTokenEvent(text string) Event {
	return Event{Type: EventToken, Data: TokenPayload{Text: text}}
}

// NewDoneEvent builds the terminal success event.
func NewDoneEvent(fullText string, suggestions []string, timings Timings) Event {
	return Event{Type: EventDone, Data: DonePayload{FullText: fullText, Suggestions: suggestions, Timings: timings}}
}

// NewErrorEvent builds the terminal failure event.
func NewErrorEvent(err error) Event {
	return Event{Type: EventError, Data: ErrorPayload{Error: err.Error()}}
}

// StageEvent describes entry to or exit from a pipeline stage.
type StageEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId"`
	Stage     Stage     `json:"stage"`
	Pass      int       `json:"pass"`                // 1 on the first run, 2 on a retry run
	ElapsedMs int64     `json:"elapsedMs,omitempty"` // set on leave
}

// ToolEvent describes one Executor query. OnToolCall carries the tool
// name and arguments; OnToolReturn additionally carries the outcome.
type ToolEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"sessionId"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`
	Status    string         `json:"status,omitempty"`
	LatencyMs int64          `json:"latencyMs,omitempty"`
}

// LifecycleHooks defines callbacks for pipeline observability.
// Nil callbacks are skipped.
type LifecycleHooks struct {
	OnStageEnter func(context.Context, *StageEvent)
	OnStageLeave func(context.Context, *StageEvent)
	OnToolCall   func(context.Context, *ToolEvent)
	OnToolReturn func(context.Context, *ToolEvent)
}
