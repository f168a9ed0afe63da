package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"seanav/pkg/platform/sentinel"
)

const lockKeyPrefix = "seanav:lock:"

// releaseScript deletes the lock only when this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockRunner adds a cross-instance lock in front of another runner so
// several processes sharing one database still reconcile a person one unit
// at a time. A held lock surfaces as sentinel.ErrConflict, which callers retry.
type RedisLockRunner struct {
	client redis.UniversalClient
	next   TxRunner
	ttl    time.Duration
}

// NewRedisLockRunner wraps next. ttl bounds how long a crashed holder blocks the key.
func NewRedisLockRunner(client redis.UniversalClient, next TxRunner, ttl time.Duration) *RedisLockRunner {
	if ttl <= 0 {
		ttl = defaultTxTimeout
	}
	return &RedisLockRunner{client: client, next: next, ttl: ttl}
}

func (r *RedisLockRunner) RunInTx(ctx context.Context, key string, fn func(ctx context.Context, s Store) error) error {
	lockKey := lockKeyPrefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, lockKey, token, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("lock %s is held: %w", key, sentinel.ErrConflict)
	}
	defer func() {
		// Release with a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, r.client, []string{lockKey}, token).Err()
	}()

	return r.next.RunInTx(ctx, key, fn)
}
