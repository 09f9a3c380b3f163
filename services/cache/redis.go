package cachesvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/export"
)

const codeMapKey = "examreg:export:codemap"

// RedisCache shares the export code map between app instances.
type RedisCache struct {
	client *redis.Client
}

var _ export.CodeMapCache = (*RedisCache)(nil)

// NewRedisCache connects to conf.Address. It returns nil when no address is configured.
func NewRedisCache(ctx context.Context, conf core.RedisConfig) (*RedisCache, error) {
	if conf.Address == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Address,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return &RedisCache{client: client}, nil
}

func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) GetCodeMap(ctx context.Context) (export.CodeMap, bool, error) {
	m, err := c.client.HGetAll(ctx, codeMapKey).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, "reading code map")
	}
	if len(m) == 0 {
		return nil, false, nil
	}
	return export.CodeMap(m), true, nil
}

func (c *RedisCache) SetCodeMap(ctx context.Context, m export.CodeMap, ttl time.Duration) error {
	if len(m) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(m))
	for k, v := range m {
		fields[k] = v
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, codeMapKey)
		pipe.HSet(ctx, codeMapKey, fields)
		if ttl > 0 {
			pipe.Expire(ctx, codeMapKey, ttl)
		}
		return nil
	})
	return errors.Wrap(err, "writing code map")
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
