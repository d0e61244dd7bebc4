package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aretw0/quartet/internal/logging"
	"github.com/aretw0/quartet/internal/prompts"
	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
)

// Heuristic condenses a conversation without calling a model. It reports
// message counts and the first and most recent user topics.
type Heuristic struct{}

// Summarize implements ports.Summarizer.
func (Heuristic) Summarize(_ context.Context, messages []domain.Message, targetTokens int) (string, error) {
	var users, assistants []domain.Message
	for _, m := range messages {
		switch m.Role {
		case domain.RoleUser:
			users = append(users, m)
		case domain.RoleAssistant:
			assistants = append(assistants, m)
		}
	}

	parts := []string{
		fmt.Sprintf("Conversation history: %d total messages", len(messages)),
		fmt.Sprintf("User asked about: %d topics", len(users)),
		fmt.Sprintf("Assistant provided: %d responses", len(assistants)),
	}
	if len(users) > 0 {
		parts = append(parts, fmt.Sprintf("Initial topic: %s...", truncateRunes(users[0].Content, 100)))
	}
	if len(users) > 1 {
		parts = append(parts, fmt.Sprintf("Recent topic: %s...", truncateRunes(users[len(users)-1].Content, 100)))
	}

	summary := strings.Join(parts, " | ")
	if limit := targetTokens * 4; limit > 0 && len([]rune(summary)) > limit {
		summary = truncateRunes(summary, limit) + "..."
	}
	return summary, nil
}

// truncateRunes returns at most n leading runes of s.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Generated summarizes through a text generator and falls back to the
// heuristic when generation fails or produces nothing.
type Generated struct {
	gen      ports.Generator
	library  *prompts.Library
	fallback Heuristic
	logger   *slog.Logger
}

// NewGenerated builds a model-backed summarizer. A nil library uses the
// embedded templates.
func NewGenerated(gen ports.Generator, library *prompts.Library, logger *slog.Logger) *Generated {
	if library == nil {
		library = prompts.Default()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generated{gen: gen, library: library, logger: logger}
}

// Summarize implements ports.Summarizer.
func (g *Generated) Summarize(ctx context.Context, messages []domain.Message, targetTokens int) (string, error) {
	tmpl, err := g.library.Get(prompts.TemplateSummarizer)
	if err != nil {
		return "", err
	}

	var transcript strings.Builder
	for i, m := range messages {
		if i > 0 {
			transcript.WriteString("\n")
		}
		transcript.WriteString(strings.ToUpper(m.Role))
		transcript.WriteString(": ")
		transcript.WriteString(m.Content)
	}

	prompt := tmpl.Render(strconv.Itoa(targetTokens), transcript.String())
	out, err := g.gen.Generate(ctx, prompt, tmpl.Options())
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		g.logger.Warn("summary generation failed, using heuristic", "error", err)
		return g.fallback.Summarize(ctx, messages, targetTokens)
	}
	if strings.TrimSpace(out) == "" {
		return g.fallback.Summarize(ctx, messages, targetTokens)
	}
	return strings.TrimSpace(out), nil
}
