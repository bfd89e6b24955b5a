//go:build integration

package redis_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"nftregistry/internal/nft/service"
	redisstore "nftregistry/internal/nft/store/redis"
	"nftregistry/internal/nft/store/storetest"
	"nftregistry/pkg/platform/sentinel"
	"nftregistry/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	storetest.Suite
	redis *containers.RedisContainer
	store *redisstore.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = redisstore.New(s.redis.Client, redisstore.WithLockWait(2*time.Second))
	s.NewStore = func() service.Store { return s.store }
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.Suite.SetupTest()
}

func (s *RedisStoreSuite) TestBusyKeyTimesOut() {
	ctx := context.Background()
	impatient := redisstore.New(s.redis.Client, redisstore.WithLockWait(50*time.Millisecond))

	holding := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.store.RunInTx(ctx, "nft:busy", func(context.Context) error {
			close(holding)
			<-done
			return nil
		})
	}()
	<-holding

	err := impatient.RunInTx(ctx, "nft:busy", func(context.Context) error { return nil })
	close(done)
	s.True(errors.Is(err, sentinel.ErrUnavailable), "got %v", err)
}

func (s *RedisStoreSuite) TestLockReleasedAfterCallback() {
	ctx := context.Background()
	s.Require().NoError(s.store.RunInTx(ctx, "nft:reuse", func(context.Context) error { return nil }))

	exists, err := s.redis.Client.Exists(ctx, "nft:lock:nft:reuse").Result()
	s.Require().NoError(err)
	s.Zero(exists)
}

func (s *RedisStoreSuite) TestExpiredLeaseIsLogged() {
	var logs bytes.Buffer
	short := redisstore.New(s.redis.Client,
		redisstore.WithLockTTL(50*time.Millisecond),
		redisstore.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)

	err := short.RunInTx(context.Background(), "nft:slow", func(context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	s.Require().NoError(err)
	s.Contains(logs.String(), "redis lock lease expired before release")
	s.Contains(logs.String(), "key=nft:slow")
}

func (s *RedisStoreSuite) TestFailedReleaseIsLogged() {
	ctx := context.Background()
	opts, err := goredis.ParseURL(s.redis.URL)
	s.Require().NoError(err)
	client := goredis.NewClient(opts)

	var logs bytes.Buffer
	store := redisstore.New(client,
		redisstore.WithLockTTL(time.Second),
		redisstore.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	_ = store.RunInTx(ctx, "nft:orphan", func(context.Context) error {
		return client.Close()
	})

	s.Contains(logs.String(), "failed to release redis lock")
	s.Contains(logs.String(), "key=nft:orphan")
}
