package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ritetech/rcm-intake/internal/store"
)

const redisKeyPrefix = "rcm:rows:"

// Redis is the shared cache backend used when several intake instances
// should observe the same TTL window. Entries are JSON row arrays.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: redis.NewClient(opts), ttl: ttl}, nil
}

func (r *Redis) Get(ctx context.Context, table string) ([]store.Row, bool) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+table).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("table", table).Msg("redis cache read failed")
		}
		return nil, false
	}
	var rows []store.Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false
	}
	return rows, true
}

func (r *Redis) Set(ctx context.Context, table string, rows []store.Row) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, redisKeyPrefix+table, raw, r.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("table", table).Msg("redis cache write failed")
	}
}

func (r *Redis) Delete(ctx context.Context, table string) {
	if err := r.client.Del(ctx, redisKeyPrefix+table).Err(); err != nil {
		log.Warn().Err(err).Str("table", table).Msg("redis cache invalidate failed")
	}
}

// Close releases the underlying client.
func (r *Redis) Close() error { return r.client.Close() }
