package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a JSON blob cache. A nil *Redis is a usable no-op, so callers
// never branch on whether caching is configured.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
}

type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps a redis client; a nil client yields a no-op cache.
func NewRedis(rdb *redis.Client) *Redis {
	if rdb == nil {
		return nil
	}
	return &Redis{rdb: rdb}
}

func (c *Redis) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil {
		return false, nil
	}
	s, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		// data corrupt: treat as miss by deleting
		_ = c.rdb.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

func (c *Redis) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// AnswerKey derives the cache key for a generated answer. The transcript is
// part of the identity: the same question against different context must not
// share an answer.
func AnswerKey(provider, format, question, transcript string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(format))
	h.Write([]byte{0})
	h.Write([]byte(question))
	h.Write([]byte{0})
	h.Write([]byte(transcript))
	return "answer:" + hex.EncodeToString(h.Sum(nil))
}
