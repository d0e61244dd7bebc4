package runtime

import (
	"context"
	"strings"

	"github.com/aretw0/quartet/internal/prompts"
	"github.com/aretw0/quartet/pkg/domain"
)

// maxSubtasks bounds the plan regardless of how many items the model
// emits.
const maxSubtasks = 3

// historyHints mark prompts that likely refer back to earlier
// conversation. Substring match against the lowercased prompt.
var historyHints = []string{
	"my", "our", "previous", "earlier", "last", "before",
	"conversation", "discussed", "mentioned", "said",
}

// planStage expands the user prompt into 1-3 subtasks plus a data
// access plan. Generation failures never abort the request: a
// deterministic fallback plan is used instead.
func (p *Pipeline) planStage(ctx context.Context, st domain.RequestState) (domain.RequestState, error) {
	tmpl, err := p.library.Get(prompts.TemplatePlanner)
	if err != nil {
		return st, err
	}

	resp, genErr := p.gen.Generate(ctx, tmpl.Render(st.Context), tmpl.Options())
	if genErr != nil {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		p.logger.Warn("plan generation failed, using recovery plan", "error", genErr)
		st.Subtasks = []string{
			"Process user request: " + firstRunes(st.UserPrompt, 60),
			"Gather necessary information",
			"Prepare appropriate response",
		}
		st.DataAccessPlan = "Assess if database query needed during execution"
		return st, nil
	}

	subtasks, dataPlan := parsePlan(resp)
	if len(subtasks) == 0 {
		subtasks, dataPlan = fallbackPlan(st.UserPrompt)
	}
	if len(subtasks) > maxSubtasks {
		subtasks = subtasks[:maxSubtasks]
	}
	if dataPlan == "" {
		dataPlan = "Determine data needs based on request context"
	}

	st.Subtasks = subtasks
	st.DataAccessPlan = dataPlan
	return st, nil
}

// fallbackPlan builds a plan without the model. Prompts that reference
// earlier conversation get a history-oriented plan.
func fallbackPlan(userPrompt string) ([]string, string) {
	lower := strings.ToLower(userPrompt)
	for _, hint := range historyHints {
		if strings.Contains(lower, hint) {
			return []string{
				"Retrieve conversation history to understand context",
				"Analyze user's request: " + firstRunes(userPrompt, 50),
				"Formulate contextual response based on history",
			}, "Query messages collection for session history"
		}
	}
	return []string{
		"Understand the request: " + firstRunes(userPrompt, 50),
		"Gather relevant information",
		"Prepare comprehensive response",
	}, "No database access needed for this request"
}
