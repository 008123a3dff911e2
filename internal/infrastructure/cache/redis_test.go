package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidleathers/crossborder-health-compliance/internal/infrastructure/config"
)

func newTestCache(t *testing.T) Cache {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := NewRedisCache(&config.RedisConfig{
		URL:         mr.Addr(),
		DialTimeout: time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRedisCache_JSONRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Value int    `json:"value"`
		Band  string `json:"band"`
	}

	err := c.SetJSON(ctx, "cbhc:eval:v1:abc", payload{Value: 42, Band: "MEDIUM"}, time.Minute)
	require.NoError(t, err)

	var got payload
	err = c.GetJSON(ctx, "cbhc:eval:v1:abc", &got)
	require.NoError(t, err)
	assert.Equal(t, 42, got.Value)
	assert.Equal(t, "MEDIUM", got.Band)
}

func TestRedisCache_Miss(t *testing.T) {
	c := newTestCache(t)

	var dest map[string]any
	err := c.GetJSON(context.Background(), "absent", &dest)
	assert.ErrorAs(t, err, &ErrCacheKeyNotFound{})
}

func TestRedisCache_Delete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, "k", map[string]int{"n": 1}, 0))
	require.NoError(t, c.Delete(ctx, "k"))

	var dest map[string]int
	err := c.GetJSON(ctx, "k", &dest)
	assert.ErrorAs(t, err, &ErrCacheKeyNotFound{})
}

func TestEvaluationKey(t *testing.T) {
	key := EvaluationKey("fp123", "v9")
	assert.Equal(t, "cbhc:eval:v9:fp123", key)
}
