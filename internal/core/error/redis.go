package errx

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
)

const (
	CacheMissMessage        = "cache entry not found"
	CacheUnavailableMessage = "cache unavailable"
)

// WrapRedis tags errors from the catalog cache. redis.Nil is a miss (404);
// anything else means the cache could not be reached.
func WrapRedis(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return &AppError{Err: err, Status: http.StatusNotFound, Message: CacheMissMessage, Kind: KindPersistence}
	default:
		return &AppError{Err: err, Status: http.StatusServiceUnavailable, Message: CacheUnavailableMessage, Kind: KindPersistence}
	}
}
