package errx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindGeneric},
		{name: "plain", err: errors.New("boom"), want: KindGeneric},
		{name: "deadline", err: fmt.Errorf("run: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "store", err: WrapStore(errors.New("conn refused")), want: KindPersistence},
		{name: "redis", err: WrapRedis(errors.New("io")), want: KindPersistence},
		{name: "upstream", err: WrapUpstream("ifixit", errors.New("502")), want: KindConnectivity},
		{name: "url error", err: &url.Error{Op: "Get", URL: "http://x", Err: errors.New("dial")}, want: KindConnectivity},
		{name: "deadline beats tag", err: WrapStore(context.DeadlineExceeded), want: KindTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapStore_NoRowsIsNotFound(t *testing.T) {
	err := WrapStore(sql.ErrNoRows)

	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWrapRedis_Nil(t *testing.T) {
	var appErr *AppError
	err := WrapRedis(redis.Nil)

	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.True(t, IsNotFound(err))
	assert.Nil(t, WrapRedis(nil))

	err = WrapRedis(errors.New("connection refused"))
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.Status)
	assert.Equal(t, CacheUnavailableMessage, appErr.Message)
}

func TestUserMessage_DistinctPerKind(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range []Kind{KindGeneric, KindTimeout, KindConnectivity, KindPersistence} {
		msg := UserMessage(k)
		assert.NotEmpty(t, msg)
		assert.False(t, seen[msg], "duplicate message for %s", k)
		seen[msg] = true
	}
}
