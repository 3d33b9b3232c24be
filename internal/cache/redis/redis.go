package redis

import (
	"context"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/ticketgate/internal/cache"
	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
)

type Redis struct {
	client *rdb.Client
	prefix string
}

func New(client *rdb.Client, prefix string) cache.Cache {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Get(ctx context.Context, k string) ([]byte, bool) {
	b, err := r.client.Get(ctx, r.key(k)).Bytes()
	if err == rdb.Nil {
		return nil, false
	}
	if err != nil {
		logger.From(ctx).Warn("redis get failed", logger.String("key", k), logger.Err(err))
		return nil, false
	}
	return b, true
}

func (r *Redis) Set(ctx context.Context, k string, v []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, r.key(k), v, ttl).Err(); err != nil {
		logger.From(ctx).Warn("redis set failed", logger.String("key", k), logger.Err(err))
	}
}

func (r *Redis) Delete(ctx context.Context, k string) {
	if err := r.client.Del(ctx, r.key(k)).Err(); err != nil {
		logger.From(ctx).Warn("redis del failed", logger.String("key", k), logger.Err(err))
	}
}
