package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memstore "github.com/aretw0/quartet/pkg/adapters/memory"
	"github.com/aretw0/quartet/pkg/domain"
)

func newValidatorPipe() *Pipeline {
	return NewPipeline(&scripted{}, NewQueryTool(memstore.NewStore(), nil))
}

func TestValidateStagePasses(t *testing.T) {
	p := newValidatorPipe()
	st := newTestState("explain the design")
	st.Findings = []domain.Finding{{Task: "t", Result: "Completed: explain the design"}}

	out, err := p.validateStage(context.Background(), st)
	require.NoError(t, err)

	assert.True(t, out.ValidationPassed)
	assert.Equal(t, "Executor output validated successfully.", out.ValidationFeedback)
	assert.Zero(t, out.RetryCount)
}

func TestValidateStageEmptyFindings(t *testing.T) {
	p := newValidatorPipe()
	st := newTestState("explain the design")

	out, err := p.validateStage(context.Background(), st)
	require.NoError(t, err)

	assert.False(t, out.ValidationPassed)
	// The relevance check also fails against empty findings and runs
	// last, so its feedback is the one that sticks.
	assert.Equal(t, "Executor findings may not be relevant to user request.", out.ValidationFeedback)
	assert.Equal(t, 1, out.RetryCount)
}

func TestValidateStageFailedTools(t *testing.T) {
	p := newValidatorPipe()
	st := newTestState("fetch the report")
	st.Findings = []domain.Finding{
		{Task: "a", Result: "Error fetching data: timeout"},
		{Task: "b", Result: "Completed: fetch the report"},
	}
	st.ToolCalls = []domain.ToolCall{
		{Tool: domain.ToolFind, Status: domain.StatusError},
		{Tool: domain.ToolFind, Status: domain.StatusOK},
		{Tool: domain.ToolFind, Status: domain.StatusError},
	}

	out, err := p.validateStage(context.Background(), st)
	require.NoError(t, err)

	assert.False(t, out.ValidationPassed)
	assert.Equal(t, "Tool calls failed: 2 failures detected.", out.ValidationFeedback)
	assert.Equal(t, 1, out.RetryCount)
}

func TestValidateStageRetryBudgetSpentOnce(t *testing.T) {
	p := newValidatorPipe()
	st := newTestState("anything")
	st.RetryCount = 1 // budget already spent on the first pass

	out, err := p.validateStage(context.Background(), st)
	require.NoError(t, err)

	assert.False(t, out.ValidationPassed)
	assert.Equal(t, 1, out.RetryCount)
}

func TestRelevanceOverlap(t *testing.T) {
	findings := []domain.Finding{
		{Result: "Retrieved 2 messages from conversation history"},
	}

	t.Run("substring match counts", func(t *testing.T) {
		// "sage" is inside "messages".
		assert.Equal(t, 1, relevanceOverlap("sage advice wanted", findings))
	})

	t.Run("only the first five words participate", func(t *testing.T) {
		// "history" is the sixth word and must be ignored.
		assert.Equal(t, 0, relevanceOverlap("zq xv jw kq pf history", findings))
	})

	t.Run("case folded on both sides", func(t *testing.T) {
		assert.Equal(t, 1, relevanceOverlap("CONVERSATION topics", findings))
	})

	t.Run("empty prompt never overlaps", func(t *testing.T) {
		assert.Equal(t, 0, relevanceOverlap("", findings))
	})
}
