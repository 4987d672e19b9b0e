package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("VECTORWAVE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("VECTORWAVE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := DialRedis(ctx, addr)
	require.NoError(t, err)
	defer client.Close()

	s := NewRedisStore(client, time.Minute)
	key := VectorKey("test-model", t.Name()+time.Now().String())

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, key, []float32{1, 2, 3}))
	got, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, got)
}
