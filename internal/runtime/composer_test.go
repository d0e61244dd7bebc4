package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/quartet/pkg/domain"
)

func newComposerState(prompt string) domain.RequestState {
	st := newTestState(prompt)
	st.ValidationPassed = true
	st.ValidationFeedback = "Executor output validated successfully."
	return st
}

func TestComposeStageParsesResponse(t *testing.T) {
	gen := &scripted{responses: []string{
		"ANSWER: Channels connect goroutines.\nThey carry typed values.\n\nSUGGESTIONS:\n1. Want a buffered example?\n2. Curious about select loops?\n3. Should we cover close semantics?",
	}}
	p := NewPipeline(gen, NewQueryTool(nil, nil))

	st := newComposerState("Explain channels")
	st.Findings = []domain.Finding{
		{Task: "a", Result: "Completed: Explain the basics"},
		{Task: "b", Result: "Completed: Pick an example"},
	}

	out, err := p.composeStage(context.Background(), st)
	require.NoError(t, err)

	// Answer lines merge into one sentence stream.
	assert.Equal(t, "Channels connect goroutines. They carry typed values.", out.FinalAnswer)
	assert.Equal(t, []string{
		"Want a buffered example?",
		"Curious about select loops?",
		"Should we cover close semantics?",
	}, out.Suggestions)
	assert.False(t, out.CompletedAt.IsZero())

	// The composing prompt carries the findings as bullets plus the
	// validator verdict.
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "- Completed: Explain the basics")
	assert.Contains(t, gen.prompts[0], "- Completed: Pick an example")
	assert.Contains(t, gen.prompts[0], "Executor output validated successfully.")
}

func TestComposeStageNoFindingsPlaceholder(t *testing.T) {
	gen := &scripted{responses: []string{"ANSWER: Fine.\n\nSUGGESTIONS:\n1. Anything else on your mind today?"}}
	p := NewPipeline(gen, NewQueryTool(nil, nil))

	_, err := p.composeStage(context.Background(), newComposerState("hi"))
	require.NoError(t, err)
	assert.Contains(t, gen.prompts[0], "No specific findings")
}

func TestComposeStagePadsSuggestionsByPosition(t *testing.T) {
	gen := &scripted{responses: []string{
		"ANSWER: Short and sweet.\n\nSUGGESTIONS:\n1. Want the longer version instead?",
	}}
	p := NewPipeline(gen, NewQueryTool(nil, nil))

	out, err := p.composeStage(context.Background(), newComposerState("hi"))
	require.NoError(t, err)

	// One model suggestion fills slot zero, so padding starts at the
	// second filler, not the first.
	assert.Equal(t, []string{
		"Want the longer version instead?",
		"What else would you like to know?",
		"Should we explore this topic further?",
	}, out.Suggestions)
}

func TestComposeStageCapsSuggestionsAtThree(t *testing.T) {
	gen := &scripted{responses: []string{
		"ANSWER: Plenty of options.\n\nSUGGESTIONS:\n1. First follow-up question?\n2. Second follow-up question?\n3. Third follow-up question?\n4. Fourth follow-up question?",
	}}
	p := NewPipeline(gen, NewQueryTool(nil, nil))

	out, err := p.composeStage(context.Background(), newComposerState("hi"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"First follow-up question?",
		"Second follow-up question?",
		"Third follow-up question?",
	}, out.Suggestions)
}

func TestComposeStageAdoptsUnlabeledResponse(t *testing.T) {
	gen := &scripted{responses: []string{
		"  The runtime multiplexes goroutines onto OS threads.  ",
	}}
	p := NewPipeline(gen, NewQueryTool(nil, nil))

	out, err := p.composeStage(context.Background(), newComposerState("how does scheduling work"))
	require.NoError(t, err)

	// Long free-form text is trusted as the answer, trimmed.
	assert.Equal(t, "The runtime multiplexes goroutines onto OS threads.", out.FinalAnswer)
	assert.Equal(t, defaultSuggestions[:], out.Suggestions)
}

func TestComposeStageShortResponseFallback(t *testing.T) {
	p := NewPipeline(&scripted{responses: []string{"ok"}}, NewQueryTool(nil, nil))

	t.Run("with findings", func(t *testing.T) {
		st := newComposerState("what happened")
		st.Findings = []domain.Finding{{Result: "Retrieved 4 messages from conversation history"}}
		out, err := p.composeStage(context.Background(), st)
		require.NoError(t, err)
		assert.Equal(t,
			"I understand you're asking about: what happened. Based on my analysis: Retrieved 4 messages from conversation history",
			out.FinalAnswer)
	})

	t.Run("without findings", func(t *testing.T) {
		p := NewPipeline(&scripted{responses: []string{"ok"}}, NewQueryTool(nil, nil))
		out, err := p.composeStage(context.Background(), newComposerState("what happened"))
		require.NoError(t, err)
		assert.Equal(t,
			"I understand you're asking about: what happened. Let me help you with that.",
			out.FinalAnswer)
	})
}

func TestComposeStageBareAnswerHeaderFallsBack(t *testing.T) {
	// "ANSWER:" with nothing after it parses to an empty answer, and the
	// prefix blocks adopting the raw response even though it is long
	// enough once suggestions are attached.
	gen := &scripted{responses: []string{
		"ANSWER:\n\nSUGGESTIONS:\n1. Want to try rephrasing that?",
	}}
	p := NewPipeline(gen, NewQueryTool(nil, nil))

	out, err := p.composeStage(context.Background(), newComposerState("hmm"))
	require.NoError(t, err)
	assert.Equal(t, "I understand you're asking about: hmm. Let me help you with that.", out.FinalAnswer)
	assert.Equal(t, "Want to try rephrasing that?", out.Suggestions[0])
}

func TestComposeStageGenerationFailure(t *testing.T) {
	gen := &scripted{errs: []error{errors.New("model offline")}}
	p := NewPipeline(gen, NewQueryTool(nil, nil))

	st := newComposerState("where are my files")
	st.Findings = []domain.Finding{{Result: "Retrieved 2 messages from conversation history"}}

	out, err := p.composeStage(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t,
		"I received your message: 'where are my files'. Analysis shows: Retrieved 2 messages from conversation history. How can I help you further?",
		out.FinalAnswer)
	assert.Equal(t, []string{
		"Tell me more about what you need",
		"Can you clarify your question?",
		"What would you like to know next?",
	}, out.Suggestions)
	assert.False(t, out.CompletedAt.IsZero())
}

func TestComposeStageCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPipeline(&scripted{errs: []error{context.Canceled}}, NewQueryTool(nil, nil))
	_, err := p.composeStage(ctx, newComposerState("hi"))
	require.ErrorIs(t, err, context.Canceled)
}
