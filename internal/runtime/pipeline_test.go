package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aretw0/quartet/internal/llm"
	memstore "github.com/aretw0/quartet/pkg/adapters/memory"
	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scripted returns canned responses in call order. Missing entries
// yield empty output.
type scripted struct {
	responses []string
	errs      []error
	prompts   []string
}

func (g *scripted) Generate(_ context.Context, prompt string, _ ports.GenerateOptions) (string, error) {
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)

	var out string
	if i < len(g.responses) {
		out = g.responses[i]
	}
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	return out, err
}

// failingQuerier simulates an unreachable backend.
type failingQuerier struct {
	calls int
}

func (q *failingQuerier) Find(context.Context, string, map[string]any, int) (ports.FindResult, error) {
	q.calls++
	return ports.FindResult{Status: domain.StatusError, LatencyMs: 1}, errors.New("connection refused")
}

// stageRecorder collects hook activity for assertions.
type stageRecorder struct {
	entered      []stageEntry
	toolStarts   int
	toolOutcomes []string
}

type stageEntry struct {
	stage domain.Stage
	pass  int
}

func (r *stageRecorder) hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(_ context.Context, ev *domain.StageEvent) {
			r.entered = append(r.entered, stageEntry{stage: ev.Stage, pass: ev.Pass})
		},
		OnToolCall: func(_ context.Context, _ *domain.ToolEvent) {
			r.toolStarts++
		},
		OnToolReturn: func(_ context.Context, ev *domain.ToolEvent) {
			r.toolOutcomes = append(r.toolOutcomes, ev.Status)
		},
	}
}

func (r *stageRecorder) stages() []domain.Stage {
	out := make([]domain.Stage, 0, len(r.entered))
	for _, e := range r.entered {
		out = append(out, e.stage)
	}
	return out
}

func newTestState(prompt string) domain.RequestState {
	st := domain.NewRequestState("s-test", "u-test", prompt)
	st.Context = "[Current Request]\nUSER: " + prompt
	return st
}

func TestPipelineHappyPath(t *testing.T) {
	gen := &scripted{responses: []string{
		"SUBTASKS:\n1. Explain the concept clearly\n2. Offer a concrete example\n\nDATA_PLAN:\nNo database access needed",
		"ANSWER: Goroutines are lightweight threads managed by the Go runtime.\n\nSUGGESTIONS:\n1. Want to see a worked example?\n2. Curious about channels as well?\n3. Should we cover sync primitives?",
	}}
	rec := &stageRecorder{}
	pipe := NewPipeline(gen, NewQueryTool(memstore.NewStore(), nil), WithHooks(rec.hooks()))

	st, err := pipe.Run(context.Background(), newTestState("Explain goroutines briefly please"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Explain the concept clearly", "Offer a concrete example"}, st.Subtasks)
	assert.Equal(t, "No database access needed", st.DataAccessPlan)
	require.Len(t, st.Findings, 2)
	assert.Equal(t, "Completed: Explain the concept clearly", st.Findings[0].Result)
	assert.Empty(t, st.ToolCalls)

	assert.True(t, st.ValidationPassed)
	assert.Equal(t, "Executor output validated successfully.", st.ValidationFeedback)
	assert.Zero(t, st.RetryCount)

	assert.Equal(t, "Goroutines are lightweight threads managed by the Go runtime.", st.FinalAnswer)
	assert.Equal(t, []string{
		"Want to see a worked example?",
		"Curious about channels as well?",
		"Should we cover sync primitives?",
	}, st.Suggestions)
	assert.False(t, st.CompletedAt.IsZero())

	// One generator call for planning, one for composing.
	assert.Len(t, gen.prompts, 2)

	assert.Equal(t, []domain.Stage{
		domain.StagePlanner, domain.StageExecutor, domain.StageValidator, domain.StageComposer,
	}, rec.stages())

	timedStages := make([]domain.Stage, 0, len(st.Timings))
	for _, tt := range st.Timings {
		timedStages = append(timedStages, tt.Stage)
	}
	assert.Equal(t, []domain.Stage{
		domain.StagePlanner, domain.StageExecutor, domain.StageValidator, domain.StageComposer,
	}, timedStages)
}

func TestPipelineQueriesHistory(t *testing.T) {
	store := memstore.NewStore()
	ctx := context.Background()
	_, err := store.SaveMessage(ctx, domain.NewMessage("s-test", "u-test", domain.RoleUser, "My name is Ada.", nil))
	require.NoError(t, err)
	_, err = store.SaveMessage(ctx, domain.NewMessage("s-test", "u-test", domain.RoleAssistant, "Nice to meet you, Ada!", nil))
	require.NoError(t, err)

	gen := &scripted{responses: []string{
		"SUBTASKS:\n1. Fetch the relevant conversation history\n\nDATA_PLAN: Query messages for this session",
		"ANSWER: You have two messages: your introduction and my greeting.\nSUGGESTIONS:\n1. Anything else about your history?\n2. Want me to summarize them?\n3. Shall we continue where we left off?",
	}}
	rec := &stageRecorder{}
	pipe := NewPipeline(gen, NewQueryTool(store, nil), WithHooks(rec.hooks()))

	st, err := pipe.Run(ctx, newTestState("Show my recent messages please"))
	require.NoError(t, err)

	require.Len(t, st.ToolCalls, 1)
	call := st.ToolCalls[0]
	assert.Equal(t, domain.ToolFind, call.Tool)
	assert.True(t, call.OK())
	assert.Equal(t, 2, call.Count)
	assert.Equal(t, domain.CollectionMessages, call.Args["collection"])

	require.Len(t, st.Findings, 1)
	assert.Equal(t, "Retrieved 2 messages from conversation history", st.Findings[0].Result)
	require.Len(t, st.Findings[0].Messages, 2)
	assert.Equal(t, "My name is Ada.", st.Findings[0].Messages[0].Content)

	assert.True(t, st.ValidationPassed)
	assert.Equal(t, 1, rec.toolStarts)
	assert.Equal(t, []string{domain.StatusOK}, rec.toolOutcomes)
	assert.Equal(t, "You have two messages: your introduction and my greeting.", st.FinalAnswer)
}

func TestPipelineRetriesOnceOnFailedTool(t *testing.T) {
	querier := &failingQuerier{}
	gen := &scripted{responses: []string{
		"SUBTASKS:\n1. Fetch the conversation data for review\n\nDATA_PLAN: Query messages",
		"ANSWER: I could not reach the archive.\nSUGGESTIONS:\n1. Try asking again in a moment?\n2. Want an answer without history?\n3. Should I report the failure?",
	}}
	rec := &stageRecorder{}
	pipe := NewPipeline(gen, querier, WithHooks(rec.hooks()))

	st, err := pipe.Run(context.Background(), newTestState("Fetch the conversation data for me"))
	require.NoError(t, err)

	// Executor and Validator ran twice, Planner and Composer once.
	assert.Equal(t, []domain.Stage{
		domain.StagePlanner,
		domain.StageExecutor, domain.StageValidator,
		domain.StageExecutor, domain.StageValidator,
		domain.StageComposer,
	}, rec.stages())
	assert.Equal(t, 2, rec.entered[3].pass)
	assert.Equal(t, 2, querier.calls)

	assert.Equal(t, 1, st.RetryCount)
	assert.False(t, st.ValidationPassed)
	assert.Equal(t, "Tool calls failed: 2 failures detected.", st.ValidationFeedback)

	// Findings accumulate: two failures plus the synthetic retry marker.
	require.Len(t, st.Findings, 3)
	assert.Contains(t, st.Findings[0].Result, "Error fetching data: connection refused")
	assert.Equal(t, "retry_adjustment", st.Findings[2].Task)
	assert.Equal(t, "Re-executed tasks with improved strategy", st.Findings[2].Result)
	assert.Equal(t, 1, st.Findings[2].Retry)

	require.Len(t, st.ToolCalls, 2)
	assert.False(t, st.ToolCalls[0].OK())
	assert.Equal(t, "connection refused", st.ToolCalls[0].Error)

	// The request still completes.
	assert.Equal(t, "I could not reach the archive.", st.FinalAnswer)
	assert.Len(t, st.Suggestions, 3)

	// Planner is never re-run by the retry.
	assert.Len(t, gen.prompts, 2)
}

func TestPipelineRetriesOnceOnIrrelevantFindings(t *testing.T) {
	gen := &scripted{responses: []string{
		"SUBTASKS:\n1. Write a short poem instead\n\nDATA_PLAN: No database access needed",
		"ANSWER: Here is something loosely related.\nSUGGESTIONS:\n1. Want me to try once more?\n2. Should I stick to the topic?\n3. Anything else on your mind?",
	}}
	rec := &stageRecorder{}
	pipe := NewPipeline(gen, NewQueryTool(memstore.NewStore(), nil), WithHooks(rec.hooks()))

	st, err := pipe.Run(context.Background(), newTestState("zebra quantum flux"))
	require.NoError(t, err)

	assert.Equal(t, 1, st.RetryCount)
	assert.False(t, st.ValidationPassed)
	assert.Equal(t, "Executor findings may not be relevant to user request.", st.ValidationFeedback)

	// Both passes completed the subtask; the retry marker closes the list.
	require.Len(t, st.Findings, 3)
	assert.Equal(t, "Completed: Write a short poem instead", st.Findings[0].Result)
	assert.Equal(t, "Completed: Write a short poem instead", st.Findings[1].Result)
	assert.Equal(t, "retry_adjustment", st.Findings[2].Task)

	assert.Equal(t, []domain.Stage{
		domain.StagePlanner,
		domain.StageExecutor, domain.StageValidator,
		domain.StageExecutor, domain.StageValidator,
		domain.StageComposer,
	}, rec.stages())
}

func TestPipelineWithStubGenerator(t *testing.T) {
	store := memstore.NewStore()
	ctx := context.Background()
	_, err := store.SaveMessage(ctx, domain.NewMessage("s-test", "u-test", domain.RoleUser, "My name is Ada.", nil))
	require.NoError(t, err)
	_, err = store.SaveMessage(ctx, domain.NewMessage("s-test", "u-test", domain.RoleAssistant, "Nice to meet you, Ada!", nil))
	require.NoError(t, err)

	pipe := NewPipeline(llm.NewMock(), NewQueryTool(store, nil))

	st, err := pipe.Run(ctx, newTestState("What's my name?"))
	require.NoError(t, err)

	// The stub's planning response carries no SUBTASKS section, so the
	// history-oriented fallback plan takes over ("my" is a history hint).
	require.Len(t, st.Subtasks, 3)
	assert.Equal(t, "Retrieve conversation history to understand context", st.Subtasks[0])
	assert.Equal(t, "Query messages collection for session history", st.DataAccessPlan)

	// Subtasks 1 and 3 trigger history queries, subtask 2 does not.
	require.Len(t, st.ToolCalls, 2)
	for _, call := range st.ToolCalls {
		assert.True(t, call.OK())
		assert.Equal(t, 2, call.Count)
	}
	require.Len(t, st.Findings, 3)

	assert.True(t, st.ValidationPassed)
	assert.Zero(t, st.RetryCount)

	// The stub answers the composing prompt with its quality-check text,
	// which is adopted verbatim as the answer, and the three fillers pad
	// the suggestion list.
	assert.Equal(t, "Validation complete. All checks passed successfully. The output meets quality standards.", st.FinalAnswer)
	assert.Equal(t, []string{
		"Can you tell me more about this?",
		"What else would you like to know?",
		"Should we explore this topic further?",
	}, st.Suggestions)
}

func TestPipelineCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &scripted{}
	pipe := NewPipeline(gen, NewQueryTool(memstore.NewStore(), nil))

	_, err := pipe.Run(ctx, newTestState("hello"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, gen.prompts)
}

func TestPipelineRetryBudgetNeverExceedsOne(t *testing.T) {
	// Every validation fails; the loop must still settle after two
	// executor passes.
	querier := &failingQuerier{}
	gen := &scripted{responses: []string{
		"SUBTASKS:\n1. Fetch the conversation data for review\n\nDATA_PLAN: Query messages",
		"plain text answer without any labels at all",
	}}
	pipe := NewPipeline(gen, querier)

	st, err := pipe.Run(context.Background(), newTestState("anything at all"))
	require.NoError(t, err)

	assert.Equal(t, 1, st.RetryCount)
	assert.Equal(t, 2, querier.calls)
	assert.Equal(t, "plain text answer without any labels at all", st.FinalAnswer)
}
