package keylock

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisTTL   = 30 * time.Second
	defaultRedisRetry = 50 * time.Millisecond
	redisKeyPrefix    = "settlement:lock:"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a distributed Locker backed by SET NX PX.
// The TTL bounds how long a crashed holder can block a key.
type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
	retry  time.Duration
	logger *log.Logger
}

// RedisOption configures RedisLocker.
type RedisOption func(*RedisLocker)

// WithRedisTTL overrides the lock expiry.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRedisRetry overrides the poll interval while a key is held.
func WithRedisRetry(interval time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if interval > 0 {
			l.retry = interval
		}
	}
}

// WithRedisLogger sets the logger for release failures.
func WithRedisLogger(logger *log.Logger) RedisOption {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisLocker constructs a RedisLocker.
func NewRedisLocker(client redis.Cmdable, opts ...RedisOption) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("keylock: nil redis client")
	}
	l := &RedisLocker{
		client: client,
		ttl:    defaultRedisTTL,
		retry:  defaultRedisRetry,
		logger: log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Lock polls until the key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if ctx == nil {
		ctx = context.Background()
	}
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Printf("event=lock_release_failed key=%s error=%v", key, err)
		}
	}, nil
}
