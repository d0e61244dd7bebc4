package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/quartet/pkg/domain"
)

// relevanceKeywords is how many leading prompt words the relevance
// check compares against the findings.
const relevanceKeywords = 5

// validateStage is a pure check over findings and tool calls. It fails
// on empty findings, on any failed tool call, or on zero overlap
// between the prompt's leading words and the finding text. The retry
// budget is spent on the first failure only; later failures keep the
// feedback but never increment the count again.
func (p *Pipeline) validateStage(ctx context.Context, st domain.RequestState) (domain.RequestState, error) {
	passed := true
	feedback := "Executor output validated successfully."

	if len(st.Findings) == 0 {
		passed = false
		feedback = "No findings returned by Executor."
	}

	if len(st.ToolCalls) > 0 {
		if failed := st.FailedToolCalls(); failed > 0 {
			passed = false
			feedback = fmt.Sprintf("Tool calls failed: %d failures detected.", failed)
		}
	}

	if relevanceOverlap(st.UserPrompt, st.Findings) == 0 {
		passed = false
		feedback = "Executor findings may not be relevant to user request."
	}

	st.ValidationPassed = passed
	st.ValidationFeedback = feedback
	if !passed && st.RetryCount == 0 {
		st.RetryCount = 1
	}

	p.logger.Debug("validation decided",
		"passed", passed, "feedback", feedback, "retryCount", st.RetryCount)
	return st, nil
}

// relevanceOverlap counts how many of the prompt's first words appear
// in the concatenated finding results. Both sides are case-folded; the
// match is substring, not word-boundary.
func relevanceOverlap(userPrompt string, findings []domain.Finding) int {
	words := strings.Fields(strings.ToLower(userPrompt))
	if len(words) > relevanceKeywords {
		words = words[:relevanceKeywords]
	}

	results := make([]string, 0, len(findings))
	for _, f := range findings {
		results = append(results, f.Result)
	}
	text := strings.ToLower(strings.Join(results, " "))

	seen := make(map[string]struct{}, len(words))
	overlap := 0
	for _, w := range words {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if strings.Contains(text, w) {
			overlap++
		}
	}
	return overlap
}
