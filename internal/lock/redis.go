package lock

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lock:"

// Compare-and-delete: the key is removed only when it still holds the
// caller's token, so a late release after expiry cannot steal the lock from
// its next holder.
var unlockScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
else
  return 0
end`)

var _ Manager = (*RedisManager)(nil)

// RedisManager implements Manager on a single Redis instance using
// SET NX PX for acquisition and a scripted compare-and-delete for release.
type RedisManager struct {
	client redis.UniversalClient
}

// NewRedisManager creates a RedisManager over the given client.
func NewRedisManager(client redis.UniversalClient) *RedisManager {
	return &RedisManager{client: client}
}

// TryAcquire sets the lock key with a random token if absent.
func (m *RedisManager) TryAcquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := m.client.SetNX(ctx, keyPrefix+name, token, ttl).Result()
	if err != nil {
		return "", false, errors.Wrapf(err, "acquire lock %q", name)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes the lock key if it still carries the given token.
func (m *RedisManager) Release(ctx context.Context, name string, token string) error {
	err := unlockScript.Run(ctx, m.client, []string{keyPrefix + name}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrapf(err, "release lock %q", name)
	}
	return nil
}
