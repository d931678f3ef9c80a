package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "microcast:forecast:"
	indexKey  = "microcast:entities"

	opTimeout = 5 * time.Second
)

// RedisStore shares entity forecasts between processes. Forecasts are stored
// as JSON strings; a set indexes the known entity ids.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A ttl <= 0 keeps keys forever.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Ping verifies connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Put(f EntityForecast) error {
	if f.EntityID == "" {
		return fmt.Errorf("%w: empty entity id", ErrInvalidForecast)
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal forecast for %s: %w", f.EntityID, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, keyPrefix+f.EntityID, data, ttl)
	pipe.SAdd(ctx, indexKey, f.EntityID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store forecast for %s: %w", f.EntityID, err)
	}
	return nil
}

func (r *RedisStore) Get(entityID string) (EntityForecast, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, keyPrefix+entityID).Bytes()
	if errors.Is(err, redis.Nil) {
		return EntityForecast{}, false, nil
	}
	if err != nil {
		return EntityForecast{}, false, fmt.Errorf("get forecast for %s: %w", entityID, err)
	}

	var f EntityForecast
	if err := json.Unmarshal(data, &f); err != nil {
		return EntityForecast{}, false, fmt.Errorf("decode forecast for %s: %w", entityID, err)
	}
	return f, true, nil
}

// Entities returns the indexed entity ids in ascending order. Ids whose
// forecast has expired may still be listed until the index is rebuilt.
func (r *RedisStore) Entities() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}
