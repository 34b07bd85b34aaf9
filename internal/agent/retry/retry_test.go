package retry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/repairfix-assistant/server/internal/agent/agenttest"
	"github.com/repairfix-assistant/server/internal/agent/model"
	"github.com/repairfix-assistant/server/internal/agent/retry"
)

var errRateLimited = errors.New("429 Too Many Requests")

func policy(w *agenttest.NoWait) retry.Policy {
	p := retry.Default
	p.Wait = w.Wait
	return p
}

func TestDo_ExhaustsAfterThreeAttempts(t *testing.T) {
	w := &agenttest.NoWait{}
	calls := 0

	_, err := retry.Do(context.Background(), policy(w), "test", func(context.Context) (string, error) {
		calls++
		return "", errRateLimited
	})

	require.Error(t, err)
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, errRateLimited)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, w.Delays)
}

func TestDo_SucceedsOnThirdAttempt(t *testing.T) {
	w := &agenttest.NoWait{}
	calls := 0

	v, err := retry.Do(context.Background(), policy(w), "test", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errRateLimited
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, w.Delays)
}

func TestDo_LogsEveryAttemptWithContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel).With().Str("run_id", "r1").Logger()
	ctx := logger.WithContext(context.Background())
	calls := 0

	_, err := retry.Do(ctx, policy(&agenttest.NoWait{}), "identify", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errRateLimited
		}
		return "ok", nil
	})
	require.NoError(t, err)

	var attempts []int
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry struct {
			RunID   string `json:"run_id"`
			Call    string `json:"call"`
			Attempt int    `json:"attempt"`
		}
		require.NoError(t, json.Unmarshal(line, &entry))
		assert.Equal(t, "r1", entry.RunID)
		assert.Equal(t, "identify", entry.Call)
		attempts = append(attempts, entry.Attempt)
	}
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestDo_SucceedsAfterOneRateLimit(t *testing.T) {
	w := &agenttest.NoWait{}
	calls := 0

	v, err := retry.Do(context.Background(), policy(w), "test", func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &genai.APIError{Code: 429, Message: "slow down"}
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, []time.Duration{2 * time.Second}, w.Delays)
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	w := &agenttest.NoWait{}
	calls := 0
	boom := errors.New("invalid argument")

	_, err := retry.Do(context.Background(), policy(w), "test", func(context.Context) (int, error) {
		calls++
		return 0, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, w.Delays)
}

func TestDo_CancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	_, err := retry.Do(ctx, retry.Default, "test", func(context.Context) (int, error) {
		calls++
		return 0, errRateLimited
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"api error value", genai.APIError{Code: 429}, true},
		{"api error pointer", &genai.APIError{Code: 429}, true},
		{"other api code", &genai.APIError{Code: 400, Message: "bad request"}, false},
		{"wrapped marker", fmt.Errorf("generate: %w", errors.New("RESOURCE_EXHAUSTED")), true},
		{"quota text", errors.New("quota exceeded for project"), true},
		{"plain", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retry.IsRateLimited(tt.err))
		})
	}
}

func TestFromConfig(t *testing.T) {
	p := retry.FromConfig(model.RetryConfig{MaxAttempts: 4, InitialDelay: time.Second})
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, p.Delays())

	assert.Equal(t, retry.Default.Delays(), retry.FromConfig(model.RetryConfig{}).Delays())
}
