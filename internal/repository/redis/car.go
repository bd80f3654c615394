package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/motorline/catalog-service/internal/domain"
	apperrors "github.com/motorline/catalog-service/pkg/errors"
)

const keyPrefix = "car:"

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_cache_hits_total",
		Help: "Number of car snapshot cache hits.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_cache_misses_total",
		Help: "Number of car snapshot cache misses.",
	})
)

// CarCache stores full car snapshots in Redis. Entries are disposable; a
// miss is always safe and the store remains authoritative.
type CarCache struct {
	client *redis.Client
}

// NewCarCache creates a Redis-backed car cache.
func NewCarCache(client *redis.Client) *CarCache {
	return &CarCache{client: client}
}

func key(id string) string {
	return keyPrefix + id
}

// Get returns the cached snapshot for id, or a NOT_FOUND error on miss.
func (c *CarCache) Get(ctx context.Context, id string) (*domain.Car, error) {
	data, err := c.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			cacheMisses.Inc()
			return nil, apperrors.NotFound("car", id)
		}
		return nil, apperrors.Unavailable("car cache unavailable", fmt.Errorf("cache get %s: %w", id, err))
	}
	cacheHits.Inc()

	var car domain.Car
	if err := json.Unmarshal(data, &car); err != nil {
		return nil, fmt.Errorf("unmarshal cached car %s: %w", id, err)
	}

	return &car, nil
}

// Set stores a snapshot with the given TTL, overwriting any existing entry
// wholesale.
func (c *CarCache) Set(ctx context.Context, car *domain.Car, ttl time.Duration) error {
	data, err := json.Marshal(car)
	if err != nil {
		return fmt.Errorf("marshal car %s: %w", car.ID, err)
	}

	if err := c.client.Set(ctx, key(car.ID), data, ttl).Err(); err != nil {
		return apperrors.Unavailable("car cache unavailable", fmt.Errorf("cache set %s: %w", car.ID, err))
	}

	return nil
}

// Delete removes the snapshot for id. Deleting a missing key is a no-op.
func (c *CarCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, key(id)).Err(); err != nil {
		return apperrors.Unavailable("car cache unavailable", fmt.Errorf("cache delete %s: %w", id, err))
	}
	return nil
}
