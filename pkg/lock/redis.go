package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const DefaultTTL = 10 * time.Minute

// releaseScript deletes the key only if it still holds this owner's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker locks keys across processes with SET NX PX. The TTL bounds how long a crashed holder blocks others.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisLocker{
		client: client,
		prefix: "flowrun:lock:",
		ttl:    ttl,
		logger: logger.With("module", "redis_locker"),
	}
}

// NewRedisClient parses a redis:// URL and checks connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (Unlock, error) {
	token := uuid.NewString()
	redisKey := l.prefix + key

	acquired, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	if !acquired {
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
		if err != nil {
			l.logger.ErrorContext(ctx, "Failed to release lock", "key", key, "error", err)

			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}

		return nil
	}, nil
}
