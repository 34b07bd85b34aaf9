package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/repairfix-assistant/server/internal/agent/graph/nodes"
	"github.com/repairfix-assistant/server/internal/agent/model"
	errx "github.com/repairfix-assistant/server/internal/core/error"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

// RedisCatalogCache keeps catalog answers in redis for ttl. Catalog errors
// are never cached, and a failing redis only costs a cache miss.
type RedisCatalogCache struct {
	next nodes.Catalog
	rdb  redis.Cmdable
	ttl  time.Duration
}

func NewRedisCatalogCache(next nodes.Catalog, rdb redis.Cmdable, ttl time.Duration) *RedisCatalogCache {
	return &RedisCatalogCache{next: next, rdb: rdb, ttl: ttl}
}

func (r *RedisCatalogCache) devicesKey(query string) string {
	return "catalog:devices:" + strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func (r *RedisCatalogCache) guidesKey(deviceTitle string) string {
	return "catalog:guides:" + strings.ToLower(deviceTitle)
}

func (r *RedisCatalogCache) guideKey(guideID int) string {
	return "catalog:guide:" + strconv.Itoa(guideID)
}

func (r *RedisCatalogCache) SearchDevices(ctx context.Context, query string) ([]model.Device, error) {
	return cached(ctx, r, r.devicesKey(query), func(ctx context.Context) ([]model.Device, error) {
		return r.next.SearchDevices(ctx, query)
	})
}

func (r *RedisCatalogCache) DeviceGuides(ctx context.Context, deviceTitle string) ([]model.GuideSummary, error) {
	return cached(ctx, r, r.guidesKey(deviceTitle), func(ctx context.Context) ([]model.GuideSummary, error) {
		return r.next.DeviceGuides(ctx, deviceTitle)
	})
}

func (r *RedisCatalogCache) GuideDetails(ctx context.Context, guideID int) (*model.Guide, error) {
	return cached(ctx, r, r.guideKey(guideID), func(ctx context.Context) (*model.Guide, error) {
		return r.next.GuideDetails(ctx, guideID)
	})
}

// Invalidate drops every cached catalog answer.
func (r *RedisCatalogCache) Invalidate(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, "catalog:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errx.WrapRedis(err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		logx.Error().Err(err).Int("keys", len(keys)).Msg("failed to delete catalog keys")
		return errx.WrapRedis(err)
	}
	return nil
}

func cached[T any](ctx context.Context, r *RedisCatalogCache, key string, load func(context.Context) (T, error)) (T, error) {
	log := logx.Ctx(ctx)

	if v, ok := r.get(ctx, key, new(T)); ok {
		log.Debug().Str("key", key).Msg("catalog cache hit")
		return *v.(*T), nil
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	r.set(ctx, key, v)
	return v, nil
}

func (r *RedisCatalogCache) get(ctx context.Context, key string, dst any) (any, bool) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logx.Ctx(ctx).Warn().Err(errx.WrapRedis(err)).Str("key", key).Msg("failed to read catalog cache")
		}
		return nil, false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logx.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("dropping undecodable catalog cache entry")
		_ = r.rdb.Del(ctx, key).Err()
		return nil, false
	}
	return dst, true
}

func (r *RedisCatalogCache) set(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logx.Ctx(ctx).Error().Err(fmt.Errorf("marshal catalog entry: %w", err)).Str("key", key).Send()
		return
	}
	// a missing guide is not worth remembering
	if string(b) == "null" {
		return
	}
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Ctx(ctx).Warn().Err(errx.WrapRedis(err)).Str("key", key).Msg("failed to write catalog cache")
	}
}

var _ nodes.Catalog = (*RedisCatalogCache)(nil)
