package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	gen, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &Mock{}, gen)

	gen, err = New(Config{Provider: "openai", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, gen)

	gen, err = New(Config{Provider: "ollama", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, gen)

	_, err = New(Config{Provider: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown llm provider")
}
