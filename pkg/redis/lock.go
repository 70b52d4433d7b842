package redis

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

const DefaultLockPrefix = "fern:lock:"

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// LockStore is the storage a Locker needs. *Client implements it.
type LockStore interface {
	// SetNX stores token under key unless the key exists.
	SetNX(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// CompareAndDelete deletes key only while it still holds token.
	CompareAndDelete(ctx context.Context, key, token string) (bool, error)
}

func (c *Client) SetNX(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, token, ttl).Result()
}

func (c *Client) CompareAndDelete(ctx context.Context, key, token string) (bool, error) {
	result, err := releaseScript.Run(ctx, c.rdb, []string{key}, token).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// Lock is a held lock. The token guards against releasing a lock that expired and was taken by
// another holder.
type Lock struct {
	store  LockStore
	logger ectologger.Logger
	key    string
	token  string
}

// Locker hands out SET NX locks under a key prefix.
type Locker struct {
	store  LockStore
	prefix string
	logger ectologger.Logger
}

func NewLocker(store LockStore, prefix string, logger ectologger.Logger) *Locker {
	if prefix == "" {
		prefix = DefaultLockPrefix
	}
	return &Locker{
		store:  store,
		prefix: prefix,
		logger: logger,
	}
}

// Acquire makes a single attempt.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{
		store:  l.store,
		logger: l.logger,
		key:    l.prefix + key,
		token:  uuid.NewString(),
	}

	ok, err := l.store.SetNX(ctx, lock.key, lock.token, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.logger.WithContext(ctx).Debugf("Acquired lock: %s", lock.key)
	return lock, nil
}

// TryAcquire retries with capped exponential backoff until wait elapses or ctx is done.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl, wait time.Duration) (*Lock, error) {
	ctx, span := tracing.StartSpan(ctx, "redis.Locker.TryAcquire")
	defer span.End()

	deadline := time.Now().Add(wait)
	backoff := 10 * time.Millisecond

	for {
		lock, err := l.Acquire(ctx, key, ttl)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			tracing.RecordError(span, err)
			return nil, err
		}
		if time.Now().Add(backoff).After(deadline) {
			return nil, ErrLockNotAcquired
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > 500*time.Millisecond {
			backoff = 500 * time.Millisecond
		}
	}
}

func (lock *Lock) Release(ctx context.Context) error {
	deleted, err := lock.store.CompareAndDelete(ctx, lock.key, lock.token)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrLockNotHeld
	}

	lock.logger.WithContext(ctx).Debugf("Released lock: %s", lock.key)
	return nil
}
