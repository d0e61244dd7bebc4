package prompts

import (
	"fmt"
	"strings"

	"github.com/aretw0/quartet/pkg/ports"
)

// Template names resolvable through the library.
const (
	TemplatePlanner    = "planner"
	TemplateComposer   = "composer"
	TemplateSummarizer = "summarizer"
)

// Template is one prompt template plus the generation options used with
// it. Text is rendered with positional %s arguments.
type Template struct {
	Name        string
	Text        string
	MaxTokens   int
	Temperature float64
}

// Render interpolates the template's positional arguments.
func (t Template) Render(args ...any) string {
	return fmt.Sprintf(t.Text, args...)
}

// Options returns the generation options configured for this template.
func (t Template) Options() ports.GenerateOptions {
	return ports.GenerateOptions{MaxTokens: t.MaxTokens, Temperature: t.Temperature}
}

// argCount is the number of %s slots each template must carry.
var argCount = map[string]int{
	TemplatePlanner:    1, // packed context
	TemplateComposer:   3, // packed context, findings, validation feedback
	TemplateSummarizer: 2, // target tokens, transcript
}

const plannerText = `You are a planning agent. Analyze the user's request considering conversation history.

%s

Your task: Break down the current user request into 1-3 specific, actionable subtasks.
Also identify if any database queries are needed.

Format your response exactly like this:

SUBTASKS:
1. [First specific subtask]
2. [Second specific subtask]
3. [Third specific subtask if needed]

DATA_PLAN:
[Describe what data needs to be fetched, or write "No database access needed"]

Be specific and actionable. Each subtask should be clear.
`

const composerText = `You are a helpful AI assistant. Generate a natural, conversational response.

CONVERSATION CONTEXT:
%s

ANALYSIS RESULTS:
%s

QUALITY CHECK: %s

Task: Provide a helpful, natural response to the user's request. If the conversation history contains relevant information (like the user's name, preferences, or previous topics), reference it appropriately.

Generate your response in this format:

ANSWER:
[Your natural, conversational response here - be specific and reference context when relevant]

SUGGESTIONS:
1. [Relevant follow-up question or action]
2. [Another relevant suggestion]
3. [Third suggestion]

Remember:
- Be conversational and natural
- Reference previous conversation context when relevant
- Keep the response focused and helpful
`

const summarizerText = `Summarize the following conversation into a compact briefing of at most %s tokens. Preserve names, decisions, preferences and open questions.

CONVERSATION:
%s

Summary:`

// defaults are the built-in templates, used when no override directory is
// configured or a document is missing from it.
var defaults = map[string]Template{
	TemplatePlanner:    {Name: TemplatePlanner, Text: plannerText, MaxTokens: 300, Temperature: 0.5},
	TemplateComposer:   {Name: TemplateComposer, Text: composerText, MaxTokens: 500, Temperature: 0.7},
	TemplateSummarizer: {Name: TemplateSummarizer, Text: summarizerText, MaxTokens: 600, Temperature: 0.3},
}

// Library resolves named prompt templates. Overrides loaded from an
// on-disk repository shadow the embedded defaults per template.
type Library struct {
	overrides map[string]Template
}

// Option configures the Library.
type Option func(*libraryConfig)

type libraryConfig struct {
	dir string
}

// WithDir loads template overrides from a Loam repository at path.
// Documents are markdown files named after the templates (planner.md,
// composer.md, summarizer.md) whose frontmatter may set max_tokens and
// temperature.
func WithDir(path string) Option {
	return func(c *libraryConfig) {
		c.dir = path
	}
}

// NewLibrary builds a template library.
func NewLibrary(opts ...Option) (*Library, error) {
	var cfg libraryConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	lib := &Library{overrides: map[string]Template{}}
	if cfg.dir != "" {
		overrides, err := loadDir(cfg.dir)
		if err != nil {
			return nil, fmt.Errorf("load prompt dir: %w", err)
		}
		lib.overrides = overrides
	}
	return lib, nil
}

// Default returns a library with only the embedded templates.
func Default() *Library {
	return &Library{overrides: map[string]Template{}}
}

// Defaults returns a copy of the embedded templates keyed by name.
func Defaults() map[string]Template {
	out := make(map[string]Template, len(defaults))
	for name, t := range defaults {
		out[name] = t
	}
	return out
}

// Get resolves a template by name.
func (l *Library) Get(name string) (Template, error) {
	if t, ok := l.overrides[name]; ok {
		return t, nil
	}
	if t, ok := defaults[name]; ok {
		return t, nil
	}
	return Template{}, fmt.Errorf("unknown prompt template %q", name)
}

// validate checks an override keeps the argument slots its renderers
// expect.
func validate(name, text string) error {
	want, ok := argCount[name]
	if !ok {
		return fmt.Errorf("unknown prompt template %q", name)
	}
	if got := strings.Count(text, "%s"); got != want {
		return fmt.Errorf("template %q must contain %d %%s slots, found %d", name, want, got)
	}
	return nil
}
