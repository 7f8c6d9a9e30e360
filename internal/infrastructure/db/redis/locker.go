package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultRetryStep = 25 * time.Millisecond
)

// ErrLockTimeout is returned when the lock could not be taken before the
// wait elapsed.
var ErrLockTimeout = errors.New("user lock: wait exceeded")

// releaseScript deletes the lock only when it still holds our token, so a
// holder whose lease expired never frees someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// UserLocker implements ports.UserLocker as a lease lock shared by every
// replica. Key format: lock:user:<user_id>
type UserLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	step   time.Duration
	log    zerolog.Logger
}

// NewUserLocker creates a UserLocker. ttl bounds how long a crashed holder
// can keep a user locked; wait bounds how long Lock retries.
func NewUserLocker(client *redis.Client, ttl, wait time.Duration, log zerolog.Logger) *UserLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &UserLocker{client: client, ttl: ttl, wait: wait, step: defaultRetryStep, log: log}
}

// Lock polls SET NX until it wins, ctx is done or the wait elapses.
func (l *UserLocker) Lock(ctx context.Context, userID string) (func(), error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	key := lockKey(userID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
			}
			return nil, fmt.Errorf("user lock: %w", err)
		}
		if ok {
			return l.unlocker(key, token), nil
		}

		t := time.NewTimer(l.step)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		case <-t.C:
		}
	}
}

func (l *UserLocker) unlocker(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled; release anyway.
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				// The lease still expires after ttl.
				l.log.Warn().Err(err).
					Str("key", key).
					Dur("ttl", l.ttl).
					Msg("failed to release user lock")
			}
		})
	}
}

func lockKey(userID string) string {
	return "lock:user:" + userID
}
