// Package memory assembles the bounded conversation context that every
// pipeline run receives, and maintains the rolling session summary that
// keeps long conversations inside the token budget.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/aretw0/quartet/internal/logging"
	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
)

const (
	// DefaultRecentTurns is how many persisted messages are replayed
	// verbatim into the context.
	DefaultRecentTurns = 10
	// DefaultTokenBudget bounds the estimated size of the packed context.
	DefaultTokenBudget = 3000
	// DefaultSummaryTarget is the token target handed to the summarizer.
	DefaultSummaryTarget = 500
)

const preamble = "You are a helpful AI assistant. Answer based on conversation history and current request."

// PackResult is the assembled context plus the pieces it was built from.
type PackResult struct {
	Context        string
	Summary        string
	RecentTurns    []domain.Turn
	TokenEstimate  int
	SummaryUpdated bool
}

// Packer builds prompt context from persisted history. When the packed
// context overflows the token budget and the session holds more history
// than the recent window, it condenses the full history into a summary,
// persists it, and rebuilds the context once.
type Packer struct {
	store         ports.Store
	summarizer    ports.Summarizer
	recentTurns   int
	tokenBudget   int
	summaryTarget int
	logger        *slog.Logger
}

// PackerOption configures a Packer.
type PackerOption func(*Packer)

// WithRecentTurns sets how many recent messages are replayed verbatim.
func WithRecentTurns(n int) PackerOption {
	return func(p *Packer) {
		if n > 0 {
			p.recentTurns = n
		}
	}
}

// WithTokenBudget sets the estimated-token ceiling for the packed context.
func WithTokenBudget(n int) PackerOption {
	return func(p *Packer) {
		if n > 0 {
			p.tokenBudget = n
		}
	}
}

// WithSummaryTarget sets the token target for generated summaries.
func WithSummaryTarget(n int) PackerOption {
	return func(p *Packer) {
		if n > 0 {
			p.summaryTarget = n
		}
	}
}

// WithSummarizer replaces the heuristic summarizer.
func WithSummarizer(s ports.Summarizer) PackerOption {
	return func(p *Packer) {
		if s != nil {
			p.summarizer = s
		}
	}
}

// WithLogger sets the packer's logger.
func WithLogger(logger *slog.Logger) PackerOption {
	return func(p *Packer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPacker builds a Packer over the given store.
func NewPacker(store ports.Store, opts ...PackerOption) *Packer {
	p := &Packer{
		store:         store,
		summarizer:    Heuristic{},
		recentTurns:   DefaultRecentTurns,
		tokenBudget:   DefaultTokenBudget,
		summaryTarget: DefaultSummaryTarget,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pack assembles the context for one request. The current prompt is not
// yet persisted when Pack runs, so it never appears among the recent
// turns.
func (p *Packer) Pack(ctx context.Context, sessionID, userID, prompt string) (PackResult, error) {
	summary, err := p.store.Summary(ctx, sessionID)
	if err != nil {
		return PackResult{}, fmt.Errorf("load summary: %w", err)
	}
	recent, err := p.store.Messages(ctx, sessionID, p.recentTurns)
	if err != nil {
		return PackResult{}, fmt.Errorf("load recent messages: %w", err)
	}

	turns := make([]domain.Turn, 0, len(recent))
	for _, m := range recent {
		turns = append(turns, m.Turn())
	}

	res := PackResult{
		Summary:     summary,
		RecentTurns: turns,
	}
	res.Context = assemble(summary, turns, prompt)
	res.TokenEstimate = EstimateTokens(res.Context)

	if res.TokenEstimate <= p.tokenBudget {
		return res, nil
	}

	total, err := p.store.CountMessages(ctx, sessionID)
	if err != nil {
		return PackResult{}, fmt.Errorf("count messages: %w", err)
	}
	if total <= int64(p.recentTurns) {
		// Nothing older than the recent window to condense.
		return res, nil
	}

	history, err := p.store.Messages(ctx, sessionID, 0)
	if err != nil {
		return PackResult{}, fmt.Errorf("load history: %w", err)
	}
	fresh, err := p.summarizer.Summarize(ctx, history, p.summaryTarget)
	if err != nil {
		if ctx.Err() != nil {
			return PackResult{}, err
		}
		p.logger.Warn("summarization failed, keeping oversized context",
			"sessionId", sessionID, "tokens", res.TokenEstimate)
		return res, nil
	}
	if fresh == "" {
		return res, nil
	}
	if err := p.store.SetSummary(ctx, sessionID, userID, fresh); err != nil {
		return PackResult{}, fmt.Errorf("save summary: %w", err)
	}

	res.Summary = fresh
	res.SummaryUpdated = true
	res.Context = assemble(fresh, turns, prompt)
	res.TokenEstimate = EstimateTokens(res.Context)
	p.logger.Debug("session summarized",
		"sessionId", sessionID, "messages", total, "tokens", res.TokenEstimate)
	return res, nil
}

// assemble renders the packed context sections.
func assemble(summary string, turns []domain.Turn, prompt string) string {
	parts := []string{preamble}
	if summary != "" {
		parts = append(parts, "\n[Session Summary]\n"+summary)
	}
	if len(turns) > 0 {
		parts = append(parts, "\n[Recent Conversation]")
		for _, t := range turns {
			parts = append(parts, fmt.Sprintf("\n%s: %s", strings.ToUpper(t.Role), t.Content))
		}
	}
	parts = append(parts, "\n[Current Request]\nUSER: "+prompt)
	return strings.Join(parts, "\n")
}

// EstimateTokens approximates the token count of text as one token per
// four runes, rounded up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
