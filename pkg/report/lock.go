package report

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when a report for the same customer is already
// being generated.
var ErrLocked = goerr.New("report already in progress")

// Locker serializes report runs per customer. Lock fails with ErrLocked
// instead of waiting.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}

// LocalLocker serializes runs within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, goerr.Wrap(ErrLocked, "customer is locked", goerr.V("key", key))
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}

// unlockScript deletes the lock only if it still holds our token, so an
// expired lock taken over by another run is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes runs across processes sharing a Redis.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		prefix: "evergreen:report-lock:",
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to acquire report lock", goerr.V("key", redisKey))
	}
	if !ok {
		return nil, goerr.Wrap(ErrLocked, "customer is locked", goerr.V("key", key))
	}

	return func(ctx context.Context) error {
		if err := unlockScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			return goerr.Wrap(err, "failed to release report lock", goerr.V("key", redisKey))
		}
		return nil
	}, nil
}
