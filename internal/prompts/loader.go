package prompts

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aretw0/loam"
)

// templateMeta is the frontmatter of a prompt document. Absent fields
// keep the embedded template's options.
type templateMeta struct {
	MaxTokens   *int     `json:"max_tokens,omitempty" mapstructure:"max_tokens"`
	Temperature *float64 `json:"temperature,omitempty" mapstructure:"temperature"`
}

// loadDir reads template overrides from a Loam repository. Templates
// without a document keep their embedded form.
func loadDir(path string) (map[string]Template, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve prompt dir: %w", err)
	}

	repo, err := loam.Init(absPath, loam.WithStrict(true), loam.WithReadOnly(true))
	if err != nil {
		return nil, fmt.Errorf("init prompt repository: %w", err)
	}
	typed := loam.NewTypedRepository[templateMeta](repo)

	ctx := context.Background()
	out := make(map[string]Template)
	for name, def := range defaults {
		doc, err := typed.Get(ctx, name)
		if err != nil {
			continue
		}
		if err := validate(name, doc.Content); err != nil {
			return nil, err
		}
		t := def
		t.Text = doc.Content
		if doc.Data.MaxTokens != nil {
			t.MaxTokens = *doc.Data.MaxTokens
		}
		if doc.Data.Temperature != nil {
			t.Temperature = *doc.Data.Temperature
		}
		out[name] = t
	}
	return out, nil
}
