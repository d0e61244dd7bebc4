package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aretw0/quartet/internal/prompts"
	"github.com/aretw0/quartet/pkg/domain"
)

// defaultSuggestions pad the follow-up list when the model produced
// fewer than three. Selection is by position: the first missing slot
// gets the first filler, and so on.
var defaultSuggestions = [3]string{
	"Can you tell me more about this?",
	"What else would you like to know?",
	"Should we explore this topic further?",
}

// composeStage produces the final answer and exactly three follow-up
// suggestions. Generation failures fall back to deterministic text
// referencing the prompt and the first finding; the request always
// completes.
func (p *Pipeline) composeStage(ctx context.Context, st domain.RequestState) (domain.RequestState, error) {
	tmpl, err := p.library.Get(prompts.TemplateComposer)
	if err != nil {
		return st, err
	}

	findingsText := "No specific findings"
	if len(st.Findings) > 0 {
		lines := make([]string, 0, len(st.Findings))
		for _, f := range st.Findings {
			lines = append(lines, "- "+f.Result)
		}
		findingsText = strings.Join(lines, "\n")
	}

	resp, genErr := p.gen.Generate(ctx, tmpl.Render(st.Context, findingsText, st.ValidationFeedback), tmpl.Options())
	if genErr != nil {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		p.logger.Warn("answer generation failed, using recovery answer", "error", genErr)

		answer := fmt.Sprintf("I received your message: '%s'. ", st.UserPrompt)
		if len(st.Findings) > 0 {
			answer += fmt.Sprintf("Analysis shows: %s. ", st.Findings[0].Result)
		}
		answer += "How can I help you further?"

		st.FinalAnswer = answer
		st.Suggestions = []string{
			"Tell me more about what you need",
			"Can you clarify your question?",
			"What would you like to know next?",
		}
		st.CompletedAt = time.Now().UTC()
		return st, nil
	}

	answer, suggestions := parseComposition(resp)
	if answer == "" {
		if utf8.RuneCountInString(resp) > 20 && !strings.HasPrefix(resp, "ANSWER:") {
			answer = strings.TrimSpace(resp)
		} else {
			answer = fmt.Sprintf("I understand you're asking about: %s. ", st.UserPrompt)
			if len(st.Findings) > 0 {
				answer += "Based on my analysis: " + st.Findings[0].Result
			} else {
				answer += "Let me help you with that."
			}
		}
	}

	for len(suggestions) < 3 {
		suggestions = append(suggestions, defaultSuggestions[len(suggestions)])
	}

	st.FinalAnswer = answer
	st.Suggestions = suggestions[:3]
	st.CompletedAt = time.Now().UTC()
	return st, nil
}
