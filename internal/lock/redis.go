package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	defaultTTL   = 10 * time.Second
	retryBackoff = 25 * time.Millisecond
	keyPrefix    = "radix:settle:"
)

// releaseScript deletes the key only while it still carries our token, so
// an expired lock taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisStore interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key string, value string) error
}

type clientStore struct {
	client *redis.Client
}

func (c clientStore) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

func (c clientStore) CompareAndDelete(ctx context.Context, key string, value string) error {
	err := releaseScript.Run(ctx, c.client, []string{key}, value).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// RedisLocker implements Locker with SET NX PX. A lock outlives a crashed
// holder by at most ttl.
type RedisLocker struct {
	store  redisStore
	client *redis.Client
	ttl    time.Duration
	// OnReleaseError observes failed releases; the key still expires after ttl.
	OnReleaseError func(key string, err error)
}

func NewRedis(addr string, password string, db int, ttl time.Duration) *RedisLocker {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	l := newRedisLocker(clientStore{client: client}, ttl)
	l.client = client
	return l
}

func newRedisLocker(store redisStore, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLocker{store: store, ttl: ttl}
}

func (l *RedisLocker) Ping(ctx context.Context) error {
	if l.client == nil {
		return nil
	}
	return l.client.Ping(ctx).Err()
}

func (l *RedisLocker) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}

// Acquire polls until the key is free, ctx is done or ttl has elapsed.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	ticker := time.NewTicker(retryBackoff)
	defer ticker.Stop()

	for {
		ok, err := l.store.SetNX(waitCtx, redisKey, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("setnx %s: %w", redisKey, err)
		}
		if ok {
			break
		}
		select {
		case <-waitCtx.Done():
			return nil, errors.Join(ErrNotAcquired, waitCtx.Err())
		case <-ticker.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := l.store.CompareAndDelete(releaseCtx, redisKey, token); err != nil && l.OnReleaseError != nil {
			l.OnReleaseError(key, err)
		}
	}, nil
}
