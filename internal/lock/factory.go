package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"reaper-go/internal/config"
	"reaper-go/internal/reaper"
)

// NewLockerFromConfig creates a Locker based on the lock config type. The
// returned close function releases any connection the locker holds. A Redis
// locker is pinged so that an unreachable server fails at startup.
func NewLockerFromConfig(ctx context.Context, cfg config.LockConfig, clock reaper.Clock, logger reaper.Logger) (reaper.Locker, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Type {
	case "none", "":
		return reaper.NopLocker{}, noop, nil
	case "memory":
		return NewMemoryLocker(cfg.TTL(), clock), noop, nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, nil, fmt.Errorf("redis lock requires redis_addr to be set")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		l := NewRedisLocker(client, cfg.KeyPrefix, cfg.TTL(), logger)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := l.Ping(pingCtx); err != nil {
			l.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		return l, l.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock type: %s", cfg.Type)
	}
}
