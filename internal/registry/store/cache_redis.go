// Package store holds the registry's certificate caches.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"custodia/internal/registry/models"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

var (
	cacheGetDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "custodia_certificate_cache_get_duration_ms",
		Help:    "Latency of certificate cache reads in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	})
)

const (
	certificateKeyPrefix = "cert:"

	// DefaultTTL bounds how long a record stays cached. Records never change,
	// so the TTL only limits memory.
	DefaultTTL = 24 * time.Hour
)

// RedisCache caches certificate records in Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisCacheOption func(*RedisCache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) RedisCacheOption {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func NewRedisCache(client *redis.Client, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Get returns sentinel.ErrNotFound when hash is not cached.
func (c *RedisCache) Get(ctx context.Context, hash id.ContentHash) (*models.CertificateRecord, error) {
	start := time.Now()
	defer func() {
		cacheGetDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	raw, err := c.client.Get(ctx, certificateKeyPrefix+hash.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cached certificate: %w", err)
	}

	var rec models.CertificateRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode cached certificate: %w", err)
	}
	return &rec, nil
}

func (c *RedisCache) Set(ctx context.Context, record *models.CertificateRecord) error {
	if record == nil || record.ContentHash.IsNil() {
		return nil
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode certificate: %w", err)
	}
	return c.client.Set(ctx, certificateKeyPrefix+record.ContentHash.String(), raw, c.ttl).Err()
}
