package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"reaper-go/internal/reaper"
)

// releaseScript deletes the lease only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker hands out leases shared by every sweep replica pointed at the
// same Redis, using SET NX with an expiry.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger reaper.Logger
}

// NewRedisLocker creates a RedisLocker. Keys are stored as prefix+account id.
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration, logger reaper.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (r *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.New().String()
	redisKey := r.prefix + key

	ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring lease %s: %w", redisKey, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err(); err != nil {
			// The lease expires on its own after ttl.
			r.logger.Warn("releasing sweep lease failed", "key", redisKey, "error", err)
		}
	}
	return release, true, nil
}

// Ping checks the Redis connection.
func (r *RedisLocker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisLocker) Close() error {
	return r.client.Close()
}

var _ reaper.Locker = (*RedisLocker)(nil)
