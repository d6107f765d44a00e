//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/internal/registry/models"
	"custodia/internal/registry/store"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/testutil"
	"custodia/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *store.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.cache = store.NewRedisCache(s.redis.Client, store.WithTTL(time.Minute))
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestRoundTrip() {
	ctx := context.Background()
	rec := &models.CertificateRecord{ContentHash: "abc", AssetID: 7, Owner: testutil.Address("alice")}

	_, err := s.cache.Get(ctx, "abc")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.cache.Set(ctx, rec))
	got, err := s.cache.Get(ctx, "abc")
	s.Require().NoError(err)
	s.Equal(rec, got)

	ttl, err := s.redis.Client.TTL(ctx, "cert:abc").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Minute)
}

func (s *RedisCacheSuite) TestCorruptEntry() {
	ctx := context.Background()
	s.Require().NoError(s.redis.Client.Set(ctx, "cert:bad", "{not json", time.Minute).Err())

	_, err := s.cache.Get(ctx, "bad")
	s.Error(err)
	s.NotErrorIs(err, sentinel.ErrNotFound)
}
