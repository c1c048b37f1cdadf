package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pizza-order-bot/internal/domain"
	"pizza-order-bot/internal/domain/ports/repository"
)

var _ repository.Locker = (*RedisLocker)(nil)

// RedisLocker is a SETNX lock with a random token. It retries until ctx ends.
type RedisLocker struct {
	cli   *redis.Client
	retry time.Duration
	log   *zerolog.Logger
}

func NewLocker(c *redClient, logger *zerolog.Logger) *RedisLocker {
	return &RedisLocker{cli: c.cli, retry: 25 * time.Millisecond, log: logger}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err == nil && ok {
			return func() { l.unlock(key, token) }, nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrLockTimeout, err)
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrLockTimeout, key)
		case <-time.After(l.retry):
		}
	}
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// unlock uses its own context; the caller's may already be done.
func (l *RedisLocker) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Err(); err != nil && l.log != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("lock release failed, waiting for ttl")
	}
}
