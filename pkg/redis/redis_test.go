package redis

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/equindex/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return client
}

func TestNewClient_Disabled(t *testing.T) {
	client := disabledClient(t)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(disabledClient(t), "test")

	allowed, remaining, err := limiter.Allow(context.Background(), GenerateRateLimit)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, GenerateRateLimit.Limit, remaining)
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")
	ctx := context.Background()

	var result []string
	found, err := cache.Get(ctx, IndexNamesKey("sector_industry"), &result)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cache.Set(ctx, "k", []string{"a"}, TTLShort))
	assert.NoError(t, cache.Delete(ctx, "k"))
}

func TestGetOrLoad_DisabledAlwaysLoads(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")
	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"SECTOR-INDUSTRY-Energy-Oil"}, nil
	}

	for i := 0; i < 2; i++ {
		got, err := GetOrLoad(context.Background(), cache, "names", TTLShort, load)
		require.NoError(t, err)
		assert.Equal(t, []string{"SECTOR-INDUSTRY-Energy-Oil"}, got)
	}
	assert.Equal(t, 2, calls)
}

func TestCache_Integration(t *testing.T) {
	if os.Getenv("REDIS_HOST") == "" || testing.Short() {
		t.Skip("REDIS_HOST not set, skipping integration test")
	}

	client, err := New(&config.Config{Redis: config.RedisConfig{
		Host:    os.Getenv("REDIS_HOST"),
		Port:    "6379",
		Enabled: true,
	}})
	require.NoError(t, err)
	defer client.Close()

	cache := NewCache(client, "equindex-test")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "names", []string{"x"}, TTLShort))
	var got []string
	found, err := cache.Get(ctx, "names", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"x"}, got)
	require.NoError(t, cache.Delete(ctx, "names"))
}
