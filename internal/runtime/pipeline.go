// Package runtime drives the four-stage agent pipeline: Planner,
// Executor, Validator, Composer, with a single bounded retry edge from
// Validator back to Executor. Stage transitions and tool activity are
// surfaced through lifecycle hooks; the Relay turns them into consumer
// events.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/quartet/internal/logging"
	"github.com/aretw0/quartet/internal/prompts"
	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
)

// Pipeline sequences the four stages over one request state.
type Pipeline struct {
	gen     ports.Generator
	querier ports.Querier
	library *prompts.Library
	logger  *slog.Logger
	hooks   []domain.LifecycleHooks
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithHooks subscribes a set of lifecycle hooks. May be used multiple
// times; hooks fire in subscription order.
func WithHooks(h domain.LifecycleHooks) PipelineOption {
	return func(p *Pipeline) {
		p.hooks = append(p.hooks, h)
	}
}

// WithPrompts replaces the embedded prompt templates.
func WithPrompts(library *prompts.Library) PipelineOption {
	return func(p *Pipeline) {
		if library != nil {
			p.library = library
		}
	}
}

// WithLogger sets the pipeline's logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline creates a pipeline over a generator and a query tool.
func NewPipeline(gen ports.Generator, querier ports.Querier, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		gen:     gen,
		querier: querier,
		library: prompts.Default(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// stageFunc transforms the request state. It returns an error only when
// the context is cancelled; every recoverable failure is absorbed into
// the state by the stage itself.
type stageFunc func(ctx context.Context, st domain.RequestState) (domain.RequestState, error)

// Run executes Planning → Executing → Validating → {Executing (retry) |
// Composing} → Done. The retry edge is taken at most once: only when
// validation failed and no retry had been spent when the Validator
// entered.
func (p *Pipeline) Run(ctx context.Context, st domain.RequestState) (domain.RequestState, error) {
	// 1. Plan the request into subtasks.
	st, err := p.runStage(ctx, st, domain.StagePlanner, 1, p.planStage)
	if err != nil {
		return st, err
	}

	// 2. Execute and validate, with the single recovery loop.
	pass := 1
	for {
		st, err = p.runStage(ctx, st, domain.StageExecutor, pass, p.executeStage)
		if err != nil {
			return st, err
		}

		entryRetries := st.RetryCount
		st, err = p.runStage(ctx, st, domain.StageValidator, pass, p.validateStage)
		if err != nil {
			return st, err
		}
		if st.ValidationPassed || entryRetries >= 1 {
			break
		}
		pass++
	}

	// 3. Compose the final answer.
	return p.runStage(ctx, st, domain.StageComposer, 1, p.composeStage)
}

func (p *Pipeline) runStage(ctx context.Context, st domain.RequestState, stage domain.Stage, pass int, fn stageFunc) (domain.RequestState, error) {
	if err := ctx.Err(); err != nil {
		return st, err
	}

	st.CurrentAgent = stage
	p.fireStageEnter(ctx, &domain.StageEvent{
		Timestamp: time.Now().UTC(),
		SessionID: st.SessionID,
		Stage:     stage,
		Pass:      pass,
	})

	start := time.Now()
	out, err := fn(ctx, st)
	if err != nil {
		return out, err
	}
	elapsed := time.Since(start)
	out.RecordTiming(stage, elapsed)

	p.fireStageLeave(ctx, &domain.StageEvent{
		Timestamp: time.Now().UTC(),
		SessionID: st.SessionID,
		Stage:     stage,
		Pass:      pass,
		ElapsedMs: elapsed.Milliseconds(),
	})
	p.logger.Debug("stage complete",
		"stage", stage, "pass", pass, "elapsedMs", elapsed.Milliseconds())
	return out, nil
}

func (p *Pipeline) fireStageEnter(ctx context.Context, ev *domain.StageEvent) {
	for _, h := range p.hooks {
		if h.OnStageEnter != nil {
			h.OnStageEnter(ctx, ev)
		}
	}
}

func (p *Pipeline) fireStageLeave(ctx context.Context, ev *domain.StageEvent) {
	for _, h := range p.hooks {
		if h.OnStageLeave != nil {
			h.OnStageLeave(ctx, ev)
		}
	}
}

func (p *Pipeline) fireToolCall(ctx context.Context, ev *domain.ToolEvent) {
	for _, h := range p.hooks {
		if h.OnToolCall != nil {
			h.OnToolCall(ctx, ev)
		}
	}
}

func (p *Pipeline) fireToolReturn(ctx context.Context, ev *domain.ToolEvent) {
	for _, h := range p.hooks {
		if h.OnToolReturn != nil {
			h.OnToolReturn(ctx, ev)
		}
	}
}
