// Package lock serializes work on a dedupe key across processes.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	keyPrefix      = "screenfree:lock:"
	defaultTTL     = 30 * time.Second
	defaultPoll    = 100 * time.Millisecond
	releaseTimeout = 2 * time.Second
)

// unlockScript deletes the key only while it still holds our token, so an
// expired lock taken over by another process is left alone.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker hands out exclusive holds on string keys.
type Locker interface {
	// Acquire blocks until key is held or ctx ends. The returned func
	// releases the hold and is safe to call once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Redis is a Locker backed by SET NX with a TTL.
type Redis struct {
	client   redis.Cmdable
	ttl      time.Duration
	poll     time.Duration
	newToken func() string
}

// NewRedis creates a Redis locker. Holds expire after ttl even if never
// released; zero selects 30s.
func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{
		client:   client,
		ttl:      ttl,
		poll:     defaultPoll,
		newToken: uuid.NewString,
	}
}

// Acquire implements Locker.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	k := keyPrefix + key
	token := r.newToken()

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, eris.Wrapf(err, "lock: acquire %s", key)
		}
		if ok {
			return func() { r.release(k, token) }, nil
		}

		t := time.NewTimer(r.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, eris.Wrapf(ctx.Err(), "lock: acquire %s", key)
		case <-t.C:
		}
	}
}

func (r *Redis) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := unlockScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
		zap.L().Warn("lock: release failed", zap.String("key", key), zap.Error(err))
	}
}

// Noop is a Locker that never blocks. Single-process deployments rely on
// the store's conditional writes alone.
type Noop struct{}

// Acquire implements Locker.
func (Noop) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// Connect parses a redis:// URL and verifies connectivity.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrap(err, "lock: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "lock: ping redis")
	}
	return client, nil
}
