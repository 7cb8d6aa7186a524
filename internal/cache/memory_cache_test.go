package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedReport struct {
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	in := cachedReport{UserID: "user-1", Score: 0.85}
	require.NoError(t, c.Set(ctx, "report:user-1:unit-1", in, 0))

	var out cachedReport
	require.NoError(t, c.Get(ctx, "report:user-1:unit-1", &out))
	assert.Equal(t, in, out)
}

func TestMemoryCache_MissOnAbsentKey(t *testing.T) {
	c := NewMemoryCache()

	var out cachedReport
	err := c.Get(context.Background(), "report:nobody:unit-1", &out)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_MissAfterTTL(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "report:user-1:unit-1", cachedReport{UserID: "user-1"}, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var out cachedReport
	err := c.Get(ctx, "report:user-1:unit-1", &out)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "report:user-1:unit-1", cachedReport{UserID: "user-1"}, 0))
	require.NoError(t, c.Delete(ctx, "report:user-1:unit-1"))

	var out cachedReport
	assert.ErrorIs(t, c.Get(ctx, "report:user-1:unit-1", &out), ErrCacheMiss)
}

func TestMemoryCache_DeletePattern(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "report:user-1:unit-1", cachedReport{UserID: "user-1"}, 0))
	require.NoError(t, c.Set(ctx, "report:user-1:unit-2", cachedReport{UserID: "user-1"}, 0))
	require.NoError(t, c.Set(ctx, "report:user-2:unit-1", cachedReport{UserID: "user-2"}, 0))

	require.NoError(t, c.DeletePattern(ctx, "report:user-1:*"))

	var out cachedReport
	assert.ErrorIs(t, c.Get(ctx, "report:user-1:unit-1", &out), ErrCacheMiss)
	assert.ErrorIs(t, c.Get(ctx, "report:user-1:unit-2", &out), ErrCacheMiss)
	assert.NoError(t, c.Get(ctx, "report:user-2:unit-1", &out))
}
