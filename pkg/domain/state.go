package domain

import "time"

// Turn is one prior message of a conversation as seen by the context
// packer: just role, content and when it happened.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Finding records the outcome of one Executor subtask.
type Finding struct {
	Task   string `json:"task"`
	Result string `json:"result"`

	// Messages holds the documents returned when the subtask queried
	// conversation history.
	Messages []Message `json:"messages,omitempty"`

	// Retry is the retry attempt number on the synthetic finding appended
	// during a retry pass.
	Retry int `json:"retry,omitempty"`
}

// ToolCall logs one bounded history query issued by the Executor.
type ToolCall struct {
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	Status    string         `json:"status"`          // StatusOK or StatusError
	Count     int            `json:"count"`           // documents returned
	Error     string         `json:"error,omitempty"` // failure detail when Status == StatusError
	LatencyMs int64          `json:"latencyMs"`
	Timestamp time.Time      `json:"timestamp"`
}

// OK reports whether the call succeeded.
func (t ToolCall) OK() bool {
	return t.Status == StatusOK
}

// StageTiming records the wall-clock duration of one stage run. A retried
// stage contributes one entry per run, in execution order.
type StageTiming struct {
	Stage Stage `json:"stage"`
	Ms    int64 `json:"ms"`
}

// RequestState is the single record threaded through the pipeline. It is
// owned by exactly one in-flight request and never shared across requests,
// so no locking is involved. Stages receive it by value and return an
// updated copy; each stage writes only its own fields.
type RequestState struct {
	// Request identity. Immutable for the lifetime of the request.
	SessionID  string
	UserID     string
	UserPrompt string

	// Context packing output. Set once by the packer, read-only afterward.
	Context     string
	Summary     string
	RecentTurns []Turn

	// Planner output.
	Subtasks       []string
	DataAccessPlan string

	// Executor output. Appended to across a retry, never reset.
	Findings  []Finding
	ToolCalls []ToolCall

	// Validator output. RetryCount is 0 or 1 and is incremented exactly
	// once, on the first failed validation.
	ValidationPassed   bool
	ValidationFeedback string
	RetryCount         int

	// Composer output. Suggestions always holds exactly 3 entries once set.
	FinalAnswer string
	Suggestions []string

	// Observability.
	CurrentAgent Stage
	Timings      []StageTiming
	RequestStart time.Time
	FirstTokenAt time.Time // zero until the relay emits the first token
	CompletedAt  time.Time // stamped on Composer exit
}

// NewRequestState creates the state for one inbound request with all
// output fields zeroed and the request clock started.
func NewRequestState(sessionID, userID, prompt string) RequestState {
	return RequestState{
		SessionID:    sessionID,
		UserID:       userID,
		UserPrompt:   prompt,
		RequestStart: time.Now(),
	}
}

// RecordTiming appends one stage duration entry.
func (s *RequestState) RecordTiming(stage Stage, elapsed time.Duration) {
	s.Timings = append(s.Timings, StageTiming{Stage: stage, Ms: elapsed.Milliseconds()})
}

// AgentTimings flattens the timing entries into a stage name to
// milliseconds map for persistence. A retried stage reports the sum of
// its runs.
func (s RequestState) AgentTimings() map[string]int64 {
	out := make(map[string]int64, len(s.Timings))
	for _, t := range s.Timings {
		out[string(t.Stage)] += t.Ms
	}
	return out
}

// FailedToolCalls counts tool calls whose status is not ok.
func (s RequestState) FailedToolCalls() int {
	n := 0
	for _, tc := range s.ToolCalls {
		if !tc.OK() {
			n++
		}
	}
	return n
}
