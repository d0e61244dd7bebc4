package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLibrary(t *testing.T) {
	lib := Default()

	planner, err := lib.Get(TemplatePlanner)
	require.NoError(t, err)
	assert.Equal(t, 300, planner.MaxTokens)
	assert.Equal(t, 0.5, planner.Temperature)
	assert.Contains(t, planner.Text, "SUBTASKS:")
	assert.Contains(t, planner.Text, "DATA_PLAN:")

	composer, err := lib.Get(TemplateComposer)
	require.NoError(t, err)
	assert.Equal(t, 500, composer.MaxTokens)
	assert.Equal(t, 0.7, composer.Temperature)
	assert.Contains(t, composer.Text, "ANSWER:")
	assert.Contains(t, composer.Text, "SUGGESTIONS:")

	summarizer, err := lib.Get(TemplateSummarizer)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(summarizer.Text, "Summarize"))

	_, err = lib.Get("poet")
	assert.Error(t, err)
}

func TestTemplateRender(t *testing.T) {
	lib := Default()

	planner, err := lib.Get(TemplatePlanner)
	require.NoError(t, err)
	rendered := planner.Render("[Current Request]\nUSER: hello")
	assert.Contains(t, rendered, "USER: hello")
	assert.NotContains(t, rendered, "%s")

	composer, err := lib.Get(TemplateComposer)
	require.NoError(t, err)
	rendered = composer.Render("ctx", "- found things", "all good")
	assert.Contains(t, rendered, "ANALYSIS RESULTS:\n- found things")
	assert.Contains(t, rendered, "QUALITY CHECK: all good")
}

func TestTemplateOptions(t *testing.T) {
	lib := Default()
	planner, err := lib.Get(TemplatePlanner)
	require.NoError(t, err)

	opts := planner.Options()
	assert.Equal(t, 300, opts.MaxTokens)
	assert.Equal(t, 0.5, opts.Temperature)
}

func TestLibraryWithDirOverride(t *testing.T) {
	dir := t.TempDir()
	doc := `---
max_tokens: 123
temperature: 0.25
---
Plan this request using the context below.

%s

Reply with SUBTASKS: and DATA_PLAN: sections.
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "planner.md"), []byte(doc), 0o644))

	lib, err := NewLibrary(WithDir(dir))
	require.NoError(t, err)

	planner, err := lib.Get(TemplatePlanner)
	require.NoError(t, err)
	assert.Equal(t, 123, planner.MaxTokens)
	assert.Equal(t, 0.25, planner.Temperature)
	assert.Contains(t, planner.Text, "Plan this request")

	// Templates without a document keep the embedded defaults.
	composer, err := lib.Get(TemplateComposer)
	require.NoError(t, err)
	assert.Equal(t, 500, composer.MaxTokens)
	assert.Contains(t, composer.Text, "You are a helpful AI assistant.")
}

func TestLibraryRejectsBrokenOverride(t *testing.T) {
	dir := t.TempDir()
	doc := `---
max_tokens: 50
---
No interpolation slots here at all.
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "planner.md"), []byte(doc), 0o644))

	_, err := NewLibrary(WithDir(dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "%s slots")
}
