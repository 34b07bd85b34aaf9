package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_New(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := Config{URL: "redis://" + mr.Addr(), ReadTimeout: 1, WriteTimeout: 1, DialTimeout: 1}

	client, err := cfg.New(context.Background())
	require.NoError(t, err)
	defer client.Close()

	assert.True(t, cfg.Enabled())
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestConfig_NewInvalidURL(t *testing.T) {
	cfg := Config{URL: "not-a-url"}

	_, err := cfg.New(context.Background())
	assert.Error(t, err)
}

func TestConfig_Disabled(t *testing.T) {
	assert.False(t, (&Config{}).Enabled())
}
