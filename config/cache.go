package config

import (
	"context"

	"github.com/jonwraymond/tokengate/cache"
)

// OpenCache builds the configured response cache. It returns a nil cache
// for the none backend. The returned close function is never nil.
func (c CacheConfig) OpenCache(ctx context.Context) (cache.Cache, func() error, error) {
	noop := func() error { return nil }
	switch c.Backend {
	case CacheRedis:
		rc, err := cache.NewRedisCache(ctx, c.Redis)
		if err != nil {
			return nil, noop, err
		}
		return rc, rc.Close, nil
	case CacheMemory:
		return cache.NewMemoryCache(), noop, nil
	default:
		return nil, noop, nil
	}
}
