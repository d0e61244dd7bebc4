package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedContractValidates(t *testing.T) {
	doc, err := Validate(context.Background())
	require.NoError(t, err)

	require.NotNil(t, doc.Info)
	assert.Equal(t, "Quartet API", doc.Info.Title)
}

func TestContractCoversAllRoutes(t *testing.T) {
	doc, err := Load()
	require.NoError(t, err)

	path := doc.Paths.Find("/v1/chat/stream")
	require.NotNil(t, path)
	require.NotNil(t, path.Post)
	assert.Equal(t, "streamChat", path.Post.OperationID)

	for _, p := range []string{
		"/v1/sessions/{sessionId}",
		"/v1/sessions/{sessionId}/messages",
		"/v1/suggestions/{messageId}",
		"/v1/suggestions/session/{sessionId}",
		"/v1/metrics/{sessionId}",
		"/v1/vitals",
		"/health",
		"/metrics",
	} {
		assert.NotNil(t, doc.Paths.Find(p), "missing path %s", p)
	}
}
