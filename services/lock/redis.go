package locksvc

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/hostelmess/core"
)

// NewRedisClient returns nil when no redis address is configured.
func NewRedisClient(conf *core.Config) *redis.Client {
	if conf.Redis.Address == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
}

// RedisLocker hands out short lived redis locks.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger core.Logger
}

func NewRedisLocker(client *redis.Client, conf *core.Config, logger core.Logger) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(client),
		ttl:    conf.Redis.LockTTL,
		logger: logger,
	}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string) (func(), error) {
	lock, err := l.client.Obtain(ctx, "lock:"+key, l.ttl, nil)
	if err != nil {
		if err == redislock.ErrNotObtained {
			return nil, errors.Errorf("lock %q is held elsewhere", key)
		}
		return nil, errors.Wrap(err, "obtaining redis lock")
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil && err != redislock.ErrLockNotHeld {
			l.logger.Warn(fmt.Sprintf("releasing lock %q: %v", key, err), err)
		}
	}, nil
}
