package runtime

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/aretw0/quartet/internal/logging"
	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
)

// DefaultPace is the delay before each streamed token.
const DefaultPace = 50 * time.Millisecond

// Relay streams one request's pipeline progress to a single consumer,
// in order: agent and tool events while the pipeline runs, then the
// answer as token events, then one done or error event emitted by the
// caller through Done or Fail.
//
// A Relay serves exactly one request and is not safe for concurrent
// use. When the sink reports the consumer gone, the relay stops
// emitting; the caller still completes its own work.
type Relay struct {
	sink   ports.EventSink
	pace   time.Duration
	logger *slog.Logger
	dead   bool
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithPace sets the delay before each token event. Zero disables
// pacing.
func WithPace(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d >= 0 {
			r.pace = d
		}
	}
}

// WithRelayLogger sets the relay's logger.
func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRelay creates a relay over the consumer's sink.
func NewRelay(sink ports.EventSink, opts ...RelayOption) *Relay {
	r := &Relay{
		sink:   sink,
		pace:   DefaultPace,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hooks returns the lifecycle hooks that surface stage entries and live
// tool activity as consumer events. Subscribe them on the pipeline that
// Stream runs.
func (r *Relay) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(ctx context.Context, ev *domain.StageEvent) {
			r.emit(ctx, domain.NewAgentEvent(ev.Stage))
		},
		OnToolCall: func(ctx context.Context, ev *domain.ToolEvent) {
			r.emit(ctx, domain.NewToolCallStartedEvent(ev.Tool, ev.Args))
		},
		OnToolReturn: func(ctx context.Context, ev *domain.ToolEvent) {
			r.emit(ctx, domain.NewToolCallCompletedEvent(ev.Tool, ev.Status == domain.StatusOK, ev.LatencyMs))
		},
	}
}

// Stream runs the pipeline and then streams the final answer as token
// events, stamping FirstTokenAt before the first one. The returned
// state carries the stamp; the caller persists it and then calls Done.
// A context cancellation is returned as-is: nothing further is emitted.
func (r *Relay) Stream(ctx context.Context, pipe *Pipeline, st domain.RequestState) (domain.RequestState, error) {
	out, err := pipe.Run(ctx, st)
	if err != nil {
		return out, err
	}

	for i, token := range SplitTokens(out.FinalAnswer) {
		r.wait(ctx)
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if i == 0 {
			out.FirstTokenAt = time.Now().UTC()
		}
		if !r.emit(ctx, domain.NewTokenEvent(token)) {
			break
		}
	}
	return out, nil
}

// Done emits the final done event for a completed request.
func (r *Relay) Done(ctx context.Context, st domain.RequestState) {
	r.emit(ctx, domain.NewDoneEvent(st.FinalAnswer, st.Suggestions, domain.ComputeTimings(st)))
}

// Fail emits a single error event, unless the failure is the caller's
// own cancellation.
func (r *Relay) Fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	r.emit(ctx, domain.NewErrorEvent(err))
}

func (r *Relay) emit(ctx context.Context, ev domain.Event) bool {
	if r.dead {
		return false
	}
	if err := r.sink.Emit(ctx, ev); err != nil {
		r.dead = true
		r.logger.Debug("consumer gone, stopping event stream", "type", ev.Type, "error", err)
		return false
	}
	return true
}

func (r *Relay) wait(ctx context.Context) {
	if r.pace <= 0 {
		return
	}
	t := time.NewTimer(r.pace)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// SplitTokens cuts text into word-sized units for streaming. Each unit
// carries its trailing whitespace, so concatenating all units restores
// text exactly.
func SplitTokens(text string) []string {
	if text == "" {
		return nil
	}

	var tokens []string
	var b strings.Builder
	inSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inSpace = true
		} else if inSpace {
			tokens = append(tokens, b.String())
			b.Reset()
			inSpace = false
		}
		b.WriteRune(r)
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
