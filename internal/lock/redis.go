package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the key only if it still holds our token, so an expired
// lock re-acquired by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker implements Locker across processes with SET NX PX.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a locker on top of an existing client. Locks expire
// after ttl so a crashed holder cannot block dispatch forever.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, prefix: "dispatch:lock:", ttl: ttl, retry: 25 * time.Millisecond}
}

// Lock acquires every key, polling until ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	if l.client == nil {
		return nil, errors.New("redis client not configured")
	}
	token := uuid.NewString()
	keys = normalize(keys)
	held := make([]string, 0, len(keys))

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = releaseScript.Run(ctx, l.client, []string{l.prefix + held[i]}, token).Err()
		}
	}

	for _, k := range keys {
		if err := l.acquire(ctx, l.prefix+k, token); err != nil {
			release()
			return nil, fmt.Errorf("lock %s: %w", k, err)
		}
		held = append(held, k)
	}
	return release, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
