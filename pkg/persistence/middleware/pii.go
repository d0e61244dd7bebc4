package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
)

type piiMiddleware struct {
	ports.Store
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks pattern matches out
// of message content, summaries and suggestions before they are
// persisted. The masking is destructive: reads return the stored,
// masked text.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.Store) ports.Store {
		return &piiMiddleware{Store: next, patterns: patterns}
	}
}

func (m *piiMiddleware) SaveMessage(ctx context.Context, msg domain.Message) (string, error) {
	msg.Content = mask(msg.Content, m.patterns)
	return m.Store.SaveMessage(ctx, msg)
}

func (m *piiMiddleware) SetSummary(ctx context.Context, sessionID, userID, summary string) error {
	return m.Store.SetSummary(ctx, sessionID, userID, mask(summary, m.patterns))
}

func (m *piiMiddleware) SaveSuggestions(ctx context.Context, rec domain.SuggestionRecord) error {
	masked := make([]string, len(rec.Suggestions))
	for i, s := range rec.Suggestions {
		masked[i] = mask(s, m.patterns)
	}
	rec.Suggestions = masked
	return m.Store.SaveSuggestions(ctx, rec)
}

func mask(value string, patterns []*regexp.Regexp) string {
	for _, p := range patterns {
		value = p.ReplaceAllString(value, "***")
	}
	return value
}
