package cache

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// ErrLockNotAcquired is returned when the lock is still held by someone else
// after all attempts.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Locker hands out short-lived advisory locks stored in the cache.
type Locker struct {
	cache    Cache
	ttl      time.Duration
	attempts uint64
	interval time.Duration
}

// NewLocker creates a locker whose locks expire after ttl.
func NewLocker(c Cache, ttl time.Duration) *Locker {
	return &Locker{
		cache:    c,
		ttl:      ttl,
		attempts: 5,
		interval: 50 * time.Millisecond,
	}
}

// WithRetry sets how many times Acquire tries and the initial wait between
// attempts.
func (l *Locker) WithRetry(attempts uint64, interval time.Duration) *Locker {
	if attempts < 1 {
		attempts = 1
	}
	l.attempts = attempts
	l.interval = interval
	return l
}

// Lock is a held lock. Release it once the guarded work is done.
type Lock struct {
	cache Cache
	key   string
	token string
}

// Acquire tries to take the lock on key, retrying with exponential backoff.
// It returns ErrLockNotAcquired when the key stays held, or the cache error
// when the cache is unreachable.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	token := uuid.NewString()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.interval
	policy.MaxInterval = 8 * l.interval
	b := backoff.WithContext(backoff.WithMaxRetries(policy, l.attempts-1), ctx)

	err := backoff.Retry(func() error {
		ok, err := l.cache.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrLockNotAcquired
		}
		return nil
	}, b)
	if err != nil {
		return nil, err
	}

	return &Lock{cache: l.cache, key: key, token: token}, nil
}

// Release frees the lock if it is still owned by the caller.
func (lk *Lock) Release(ctx context.Context) error {
	_, err := lk.cache.DelIfEquals(ctx, lk.key, lk.token)
	return err
}
