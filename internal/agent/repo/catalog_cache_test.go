package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairfix-assistant/server/internal/agent/agenttest"
	"github.com/repairfix-assistant/server/internal/agent/model"
)

func newCache(t *testing.T, next *agenttest.Catalog) (*RedisCatalogCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCatalogCache(next, rdb, time.Hour), mr
}

func TestSearchDevices_CachesByNormalizedQuery(t *testing.T) {
	next := &agenttest.Catalog{Devices: []model.Device{{Title: "iPhone 13", CanonicalTitle: "iPhone 13"}}}
	c, mr := newCache(t, next)
	ctx := context.Background()

	first, err := c.SearchDevices(ctx, "iPhone 13")
	require.NoError(t, err)
	second, err := c.SearchDevices(ctx, "  iphone   13 ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.SearchCalls)
	assert.True(t, mr.Exists("catalog:devices:iphone 13"))
	assert.Equal(t, time.Hour, mr.TTL("catalog:devices:iphone 13"))
}

func TestSearchDevices_ErrorsAreNotCached(t *testing.T) {
	next := &agenttest.Catalog{DevicesErr: errors.New("catalog down")}
	c, mr := newCache(t, next)
	ctx := context.Background()

	_, err := c.SearchDevices(ctx, "PS5")
	require.Error(t, err)
	assert.False(t, mr.Exists("catalog:devices:ps5"))

	next.DevicesErr = nil
	next.Devices = []model.Device{{Title: "PlayStation 5", CanonicalTitle: "PlayStation 5"}}
	devices, err := c.SearchDevices(ctx, "PS5")
	require.NoError(t, err)
	assert.Len(t, devices, 1)
	assert.Equal(t, 2, next.SearchCalls)
}

func TestDeviceGuidesAndDetails(t *testing.T) {
	next := &agenttest.Catalog{
		Guides:  []model.GuideSummary{{GuideID: 42, Title: "Screen Replacement"}},
		Details: map[int]*model.Guide{42: {GuideID: 42, Title: "Screen Replacement", Steps: []model.Step{{Title: "Open"}}}},
	}
	c, _ := newCache(t, next)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		guides, err := c.DeviceGuides(ctx, "iPhone 13")
		require.NoError(t, err)
		assert.Equal(t, 42, guides[0].GuideID)

		g, err := c.GuideDetails(ctx, 42)
		require.NoError(t, err)
		require.NotNil(t, g)
		assert.Equal(t, "Open", g.Steps[0].Title)
	}
	assert.Equal(t, 1, next.GuidesCalls)
	assert.Equal(t, 1, next.DetailsCalls)

	missing, err := c.GuideDetails(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, missing)
	_, _ = c.GuideDetails(ctx, 7)
	assert.Equal(t, 3, next.DetailsCalls, "nil guides are not cached")
}

func TestRedisDown_FallsThrough(t *testing.T) {
	next := &agenttest.Catalog{Devices: []model.Device{{Title: "Pixel 7", CanonicalTitle: "Pixel 7"}}}
	c, mr := newCache(t, next)
	mr.Close()

	devices, err := c.SearchDevices(context.Background(), "Pixel 7")
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestCorruptEntryIsDropped(t *testing.T) {
	next := &agenttest.Catalog{Devices: []model.Device{{Title: "Switch", CanonicalTitle: "Nintendo Switch"}}}
	c, mr := newCache(t, next)
	require.NoError(t, mr.Set("catalog:devices:switch", "{not json"))

	devices, err := c.SearchDevices(context.Background(), "Switch")
	require.NoError(t, err)
	assert.Equal(t, "Nintendo Switch", devices[0].CanonicalTitle)
	assert.Equal(t, 1, next.SearchCalls)
}

func TestInvalidate(t *testing.T) {
	next := &agenttest.Catalog{Guides: []model.GuideSummary{{GuideID: 1}}}
	c, mr := newCache(t, next)
	ctx := context.Background()
	require.NoError(t, mr.Set("other:key", "keep"))

	_, err := c.DeviceGuides(ctx, "Pixel 7")
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx))

	assert.False(t, mr.Exists("catalog:guides:pixel 7"))
	assert.True(t, mr.Exists("other:key"))
	require.NoError(t, c.Invalidate(ctx))
}
