//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"seanav/pkg/platform/sentinel"
	"seanav/pkg/testutil/containers"
)

type RedisLockSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	runner *RedisLockRunner
	ctx    context.Context
}

func TestRedisLockSuite(t *testing.T) {
	suite.Run(t, new(RedisLockSuite))
}

func (s *RedisLockSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
	s.runner = NewRedisLockRunner(s.redis.Client, NewShardedTx(NewInMemory()), 2*time.Second)
}

func (s *RedisLockSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisLockSuite) TestHeldLockIsConflict() {
	err := s.runner.RunInTx(s.ctx, "person:p1", func(ctx context.Context, _ Store) error {
		inner := s.runner.RunInTx(ctx, "person:p1", func(context.Context, Store) error { return nil })
		s.ErrorIs(inner, sentinel.ErrConflict)
		return nil
	})
	s.NoError(err)
}

func (s *RedisLockSuite) TestLockIsReleased() {
	for range 3 {
		err := s.runner.RunInTx(s.ctx, "person:p2", func(context.Context, Store) error { return nil })
		s.NoError(err)
	}
	exists, err := s.redis.Client.Exists(s.ctx, lockKeyPrefix+"person:p2").Result()
	s.Require().NoError(err)
	s.Zero(exists)
}
