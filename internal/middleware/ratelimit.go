package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// CounterStore is the windowed-counter seam behind the limiter. Incr bumps
// and returns the counter for key; Expire arms the window on a fresh key.
type CounterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, window time.Duration) error
}

type redisCounter struct {
	client *redis.Client
}

func (r redisCounter) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r redisCounter) Expire(ctx context.Context, key string, window time.Duration) error {
	return r.client.Expire(ctx, key, window).Err()
}

// RateLimiter is a fixed-window limiter. Backed by Redis in production so
// the limit holds across instances.
type RateLimiter struct {
	Store  CounterStore
	Prefix string
	Limit  int
	Window time.Duration
}

func NewRateLimiter(r *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{Store: redisCounter{client: r}, Prefix: prefix, Limit: limit, Window: window}
}

func (r *RateLimiter) MiddlewareByKey(keyFunc func(c *fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("%s:%s", r.Prefix, keyFunc(c))
		ctx := c.Context()
		count, err := r.Store.Incr(ctx, key)
		if err != nil {
			// limiter outage must not take the API down
			return c.Next()
		}
		if count == 1 {
			_ = r.Store.Expire(ctx, key, r.Window)
		}
		if count > int64(r.Limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}
