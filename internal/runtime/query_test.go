package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memstore "github.com/aretw0/quartet/pkg/adapters/memory"
	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
)

// brokenStore fails message reads; every other method is inherited and
// unused.
type brokenStore struct {
	ports.Store
}

func (brokenStore) Messages(context.Context, string, int) ([]domain.Message, error) {
	return nil, errors.New("socket closed")
}

func seedQueryStore(t *testing.T, n int) ports.Store {
	t.Helper()
	store := memstore.NewStore()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		msg := domain.NewMessage("s-query", "u-query", role, fmt.Sprintf("msg-%02d", i), nil)
		_, err := store.SaveMessage(ctx, msg)
		require.NoError(t, err)
	}
	return store
}

func TestQueryToolFind(t *testing.T) {
	tool := NewQueryTool(seedQueryStore(t, 3), nil)

	res, err := tool.Find(context.Background(), "messages", map[string]any{"sessionId": "s-query"}, 50)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, 3, res.Count)
	require.Len(t, res.Data, 3)
	assert.Equal(t, "msg-00", res.Data[0].Content)
	assert.GreaterOrEqual(t, res.LatencyMs, int64(0))
}

func TestQueryToolFindLimit(t *testing.T) {
	tool := NewQueryTool(seedQueryStore(t, 5), nil)

	res, err := tool.Find(context.Background(), "messages", map[string]any{"sessionId": "s-query"}, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Count)
	require.Len(t, res.Data, 2)
	// Still ascending, just trimmed to the newest two.
	assert.Equal(t, "msg-03", res.Data[0].Content)
	assert.Equal(t, "msg-04", res.Data[1].Content)
}

func TestQueryToolRejectsUnknownCollection(t *testing.T) {
	tool := NewQueryTool(memstore.NewStore(), nil)

	res, err := tool.Find(context.Background(), "users", map[string]any{"sessionId": "s-query"}, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown collection "users"`)
	assert.Equal(t, domain.StatusError, res.Status)
	assert.Zero(t, res.Count)
}

func TestQueryToolRequiresSessionID(t *testing.T) {
	tool := NewQueryTool(memstore.NewStore(), nil)

	for name, filter := range map[string]map[string]any{
		"missing key": {},
		"wrong type":  {"sessionId": 42},
		"empty value": {"sessionId": ""},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := tool.Find(context.Background(), "messages", filter, 50)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "sessionId")
			assert.Equal(t, domain.StatusError, res.Status)
		})
	}
}

func TestQueryToolStoreFailure(t *testing.T) {
	tool := NewQueryTool(brokenStore{}, nil)

	res, err := tool.Find(context.Background(), "messages", map[string]any{"sessionId": "s-query"}, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socket closed")
	assert.Equal(t, domain.StatusError, res.Status)
}
