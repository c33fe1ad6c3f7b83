package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 3 * time.Second

// OpenRedis connects and pings before returning the client. The idempotency
// layer fails closed when redis is unreachable, so a dead address stops boot
// instead of failing the first mutating request.
func OpenRedis(addr string, db int) (*redis.Client, error) {
	r := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	slog.Info("redis: connected", "addr", addr, "db", db)
	return r, nil
}
