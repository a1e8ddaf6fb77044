package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/factorloop/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestCache_Disabled(t *testing.T) {
	client, _ := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	cache := NewCache(client, "factorloop")
	ctx := context.Background()

	var result []float64
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cache.Set(ctx, "key", []float64{1, 2}, time.Minute))
	assert.NoError(t, cache.Delete(ctx, "key"))
}

func TestCacheKeys(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"window", WindowKey("600519.SH", "1d", 80, "2024-05-10"), "window:600519.SH:1d:80:2024-05-10"},
		{"fundamentals", FundamentalsKey("000001.SZ"), "fundamentals:000001.SZ"},
		{"calendar", CalendarKey("SSE", "2024-01-01", "2024-12-31"), "calendar:SSE:2024-01-01:2024-12-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.got)
		})
	}

	cache := NewCache(&Client{}, "factorloop")
	assert.Equal(t, "factorloop:cache:k", cache.fullKey("k"))
}
