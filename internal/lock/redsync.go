package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultExpiry = 30 * time.Second
	defaultTries  = 32
)

// RedsyncLocker is a KeyLocker shared by every instance pointing at the same
// Redis.
type RedsyncLocker struct {
	rs     *redsync.Redsync
	prefix string
	expiry time.Duration
	tries  int
	logger *zap.SugaredLogger
}

var _ KeyLocker = (*RedsyncLocker)(nil)

func NewRedisClient(addr, password string) *redis.Client {
	if addr == "" {
		addr = "localhost:6379"
	}
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

func NewRedsyncLocker(rdb *redis.Client, expiry time.Duration, logger *zap.SugaredLogger) *RedsyncLocker {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &RedsyncLocker{
		rs:     redsync.New(goredis.NewPool(rdb)),
		prefix: "paygate:lock:",
		expiry: expiry,
		tries:  defaultTries,
		logger: logger,
	}
}

func (l *RedsyncLocker) Lock(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(
		l.prefix+key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLockBusy, key, err)
	}

	return func() {
		// ctx may already be done; release with a fresh deadline.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if _, err := mutex.UnlockContext(unlockCtx); err != nil {
			l.logger.Warnw("failed to release lock", "key", key, "err", err)
		}
	}, nil
}
