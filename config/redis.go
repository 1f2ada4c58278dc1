package config

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// NewRedis connects to the address in cfg.RedisAddr. Returns (nil, nil) when
// no address is configured: the answer cache is optional and the server runs
// uncached without it.
func NewRedis(ctx context.Context, cfg *Config) (*redis.Client, error) {
	val := cfg.RedisAddr
	if val == "" {
		return nil, nil
	}

	var client *redis.Client
	if strings.HasPrefix(val, "redis://") || strings.HasPrefix(val, "rediss://") {
		opt, err := redis.ParseURL(val)
		if err != nil {
			return nil, err
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: val})
	}

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	return client, nil
}
