package oracle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairlend/fairlend/pkg/core"
)

// RedisSource reads quotes that an external price poller maintains in Redis.
// Each asset is a hash at "price:{asset}" with fields "price" (PriceScale
// ticks) and "ts" (Unix nanosecond timestamp).
type RedisSource struct {
	rdb *redis.Client
}

func NewRedisSource(addr, password string, db int) *RedisSource {
	return &RedisSource{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (r *RedisSource) Close() error { return r.rdb.Close() }

func priceKey(asset string) string { return "price:" + asset }

// SetPrice stores a quote; exposed for pollers sharing the same client.
func (r *RedisSource) SetPrice(ctx context.Context, asset string, price int64, asOf time.Time) error {
	fields := map[string]interface{}{
		"price": strconv.FormatInt(price, 10),
		"ts":    strconv.FormatInt(asOf.UnixNano(), 10),
	}
	if err := r.rdb.HSet(ctx, priceKey(asset), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", asset, err)
	}
	return nil
}

func (r *RedisSource) GetPrice(ctx context.Context, asset string) (Quote, error) {
	vals, err := r.rdb.HGetAll(ctx, priceKey(asset)).Result()
	if err != nil {
		return Quote{}, fmt.Errorf("redis: get price %s: %w", asset, err)
	}
	if len(vals) == 0 {
		return Quote{}, fmt.Errorf("price for %s: %w", asset, core.ErrNotFound)
	}

	price, err := strconv.ParseInt(vals["price"], 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("redis: parse price %s: %w", asset, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("redis: parse ts %s: %w", asset, err)
	}
	return Quote{Price: price, AsOf: time.Unix(0, tsNano)}, nil
}

var _ Source = (*RedisSource)(nil)
var _ Source = (*Static)(nil)
