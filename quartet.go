package quartet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/quartet/internal/llm"
	"github.com/aretw0/quartet/internal/logging"
	"github.com/aretw0/quartet/internal/memory"
	"github.com/aretw0/quartet/internal/metrics"
	"github.com/aretw0/quartet/internal/prompts"
	"github.com/aretw0/quartet/internal/runtime"
	memstore "github.com/aretw0/quartet/pkg/adapters/memory"
	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
	"github.com/aretw0/quartet/pkg/session"
)

// Engine is the high-level entry point for the Quartet library. It owns
// the store, the generator and the session manager, and runs the full
// ask lifecycle: lock the session, pack context, run the four-stage
// pipeline, stream events to the caller's sink, persist the results.
type Engine struct {
	store      ports.Store
	gen        ports.Generator
	querier    ports.Querier
	library    *prompts.Library
	packer     *memory.Packer
	sessions   *session.Manager
	locker     ports.DistributedLocker
	hooks      []domain.LifecycleHooks
	packerOpts []memory.PackerOption
	pace       time.Duration
	logger     *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore injects a persistence backend. The default is the
// in-memory store.
func WithStore(s ports.Store) Option {
	return func(e *Engine) {
		if s != nil {
			e.store = s
		}
	}
}

// WithGenerator injects a text generation backend. The default is the
// deterministic mock.
func WithGenerator(g ports.Generator) Option {
	return func(e *Engine) {
		if g != nil {
			e.gen = g
		}
	}
}

// WithLocker enables cross-replica session locking.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithLifecycleHooks subscribes observability hooks on every ask. May
// be used multiple times.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, h)
	}
}

// WithPrompts replaces the embedded prompt templates.
func WithPrompts(library *prompts.Library) Option {
	return func(e *Engine) {
		if library != nil {
			e.library = library
		}
	}
}

// WithPace sets the delay before each streamed token. Zero disables
// pacing.
func WithPace(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.pace = d
		}
	}
}

// WithRecentTurns sets how many recent messages are replayed into each
// prompt.
func WithRecentTurns(n int) Option {
	return func(e *Engine) {
		e.packerOpts = append(e.packerOpts, memory.WithRecentTurns(n))
	}
}

// WithTokenBudget sets the estimated-token ceiling for packed context.
func WithTokenBudget(n int) Option {
	return func(e *Engine) {
		e.packerOpts = append(e.packerOpts, memory.WithTokenBudget(n))
	}
}

// WithSummaryTarget sets the token target for generated summaries.
func WithSummaryTarget(n int) Option {
	return func(e *Engine) {
		e.packerOpts = append(e.packerOpts, memory.WithSummaryTarget(n))
	}
}

// WithLogger sets a structured logger for the engine and everything it
// builds.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New initializes a Quartet Engine. With no options it runs entirely in
// memory with the mock generator, which is enough for tests and demos.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		pace:   runtime.DefaultPace,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = memstore.NewStore()
	}
	if e.gen == nil {
		e.gen = llm.NewMock()
	}
	if e.library == nil {
		e.library = prompts.Default()
	}

	e.querier = runtime.NewQueryTool(e.store, e.logger)

	packerOpts := append([]memory.PackerOption{
		memory.WithSummarizer(memory.NewGenerated(e.gen, e.library, e.logger)),
		memory.WithLogger(e.logger),
	}, e.packerOpts...)
	e.packer = memory.NewPacker(e.store, packerOpts...)

	sessionOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(e.locker))
	}
	e.sessions = session.NewManager(sessionOpts...)

	return e, nil
}

// Store exposes the persistence backend for read surfaces (history,
// suggestions, metrics, vitals, health).
func (e *Engine) Store() ports.Store {
	return e.store
}

// Ask answers one user prompt. Events stream to sink while the request
// runs: agent and tool activity first, then the answer token by token,
// then exactly one done or error event. Asks on the same session are
// serialized; the results are persisted before done is emitted.
//
// A context cancellation stops the stream silently and skips
// persistence. The sink going away does not fail the ask: the pipeline
// finishes and persists, only the events stop.
func (e *Engine) Ask(ctx context.Context, sessionID, userID, prompt string, sink ports.EventSink) error {
	if sessionID == "" || prompt == "" {
		return fmt.Errorf("%w: sessionId and prompt are required", domain.ErrInvalidRequest)
	}
	return e.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return e.ask(ctx, sessionID, userID, prompt, sink)
	})
}

func (e *Engine) ask(ctx context.Context, sessionID, userID, prompt string, sink ports.EventSink) (err error) {
	metrics.ActiveStreams.Inc()
	defer func() {
		metrics.ActiveStreams.Dec()
		metrics.RequestsTotal.WithLabelValues(requestOutcome(ctx, err)).Inc()
	}()

	relay := runtime.NewRelay(sink,
		runtime.WithPace(e.pace),
		runtime.WithRelayLogger(e.logger),
	)

	st := domain.NewRequestState(sessionID, userID, prompt)

	if _, err := e.store.GetOrCreateSession(ctx, sessionID, userID); err != nil {
		err = fmt.Errorf("get or create session: %w", err)
		relay.Fail(ctx, err)
		return err
	}

	packed, err := e.packer.Pack(ctx, sessionID, userID, prompt)
	if err != nil {
		err = fmt.Errorf("pack context: %w", err)
		relay.Fail(ctx, err)
		return err
	}
	st.Context = packed.Context
	st.Summary = packed.Summary
	st.RecentTurns = packed.RecentTurns

	userMsg := domain.NewMessage(sessionID, userID, domain.RoleUser, prompt, nil)
	if _, err := e.store.SaveMessage(ctx, userMsg); err != nil {
		err = fmt.Errorf("save user message: %w", err)
		relay.Fail(ctx, err)
		return err
	}

	pipeOpts := []runtime.PipelineOption{
		runtime.WithPrompts(e.library),
		runtime.WithLogger(e.logger),
		runtime.WithHooks(relay.Hooks()),
		runtime.WithHooks(metrics.Hooks()),
	}
	for _, h := range e.hooks {
		pipeOpts = append(pipeOpts, runtime.WithHooks(h))
	}
	pipe := runtime.NewPipeline(e.gen, e.querier, pipeOpts...)

	out, err := relay.Stream(ctx, pipe, st)
	if err != nil {
		// Only a cancellation reaches here. Nothing is persisted and
		// nothing further is emitted.
		return err
	}

	if err := e.persist(ctx, out); err != nil {
		relay.Fail(ctx, err)
		return err
	}

	relay.Done(ctx, out)

	if !out.FirstTokenAt.IsZero() {
		metrics.TTFTSeconds.Observe(out.FirstTokenAt.Sub(out.RequestStart).Seconds())
	}
	e.logger.Info("ask complete",
		"sessionId", sessionID,
		"retries", out.RetryCount,
		"toolCalls", len(out.ToolCalls),
		"totalMs", out.CompletedAt.Sub(out.RequestStart).Milliseconds(),
	)
	return nil
}

// persist writes the completed request's artifacts: the assistant
// message first (its ID links everything else), then suggestions,
// metrics and tool call logs.
func (e *Engine) persist(ctx context.Context, st domain.RequestState) error {
	now := time.Now().UTC()
	timings := domain.ComputeTimings(st)
	agentTimings := st.AgentTimings()

	msg := domain.NewMessage(st.SessionID, st.UserID, domain.RoleAssistant, st.FinalAnswer, map[string]any{
		"suggestions":  st.Suggestions,
		"agentTimings": agentTimings,
		"ttftMs":       timings.TTFTMs,
		"totalMs":      timings.TotalMs,
	})
	messageID, err := e.store.SaveMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("save assistant message: %w", err)
	}

	if err := e.store.SaveSuggestions(ctx, domain.SuggestionRecord{
		SessionID:   st.SessionID,
		UserID:      st.UserID,
		MessageID:   messageID,
		Suggestions: st.Suggestions,
		CreatedAt:   now,
	}); err != nil {
		return fmt.Errorf("save suggestions: %w", err)
	}

	if err := e.store.SaveMetrics(ctx, domain.MetricsRecord{
		SessionID:     st.SessionID,
		UserID:        st.UserID,
		MessageID:     messageID,
		TTFTMs:        timings.TTFTMs,
		TotalMs:       timings.TotalMs,
		ToolCallCount: len(st.ToolCalls),
		AgentTimings:  agentTimings,
		Timestamp:     now,
	}); err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}

	for _, tc := range st.ToolCalls {
		if err := e.store.SaveToolCall(ctx, domain.ToolCallRecord{
			SessionID: st.SessionID,
			UserID:    st.UserID,
			MessageID: messageID,
			Tool:      tc.Tool,
			Args:      tc.Args,
			Status:    tc.Status,
			LatencyMs: tc.LatencyMs,
			Timestamp: tc.Timestamp,
		}); err != nil {
			return fmt.Errorf("save tool call: %w", err)
		}
	}
	return nil
}

func requestOutcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case ctx.Err() != nil:
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeError
	}
}
