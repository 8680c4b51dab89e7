package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCounter struct {
	counts  map[string]int64
	expired map[string]time.Duration
	err     error
}

func newMemCounter() *memCounter {
	return &memCounter{counts: make(map[string]int64), expired: make(map[string]time.Duration)}
}

func (m *memCounter) Incr(ctx context.Context, key string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memCounter) Expire(ctx context.Context, key string, window time.Duration) error {
	m.expired[key] = window
	return nil
}

func limitedApp(store CounterStore, limit int) *fiber.App {
	app := fiber.New()
	rl := &RateLimiter{Store: store, Prefix: "rl", Limit: limit, Window: time.Minute}
	app.Use(rl.MiddlewareByKey(func(c *fiber.Ctx) string { return "alice" }))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app
}

func TestRateLimiterRejectsBeyondWindowLimit(t *testing.T) {
	store := newMemCounter()
	app := limitedApp(store, 3)

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	// the window was armed exactly once, on the first hit
	assert.Equal(t, time.Minute, store.expired["rl:alice"])
	assert.Equal(t, int64(4), store.counts["rl:alice"])
}

func TestRateLimiterKeyedPerCaller(t *testing.T) {
	store := newMemCounter()
	app := fiber.New()
	rl := &RateLimiter{Store: store, Prefix: "rl", Limit: 1, Window: time.Minute}
	app.Use(rl.MiddlewareByKey(func(c *fiber.Ctx) string { return c.Get("X-User") }))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	hit := func(user string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, hit("alice"))
	assert.Equal(t, fiber.StatusTooManyRequests, hit("alice"))
	// a different caller gets a fresh window
	assert.Equal(t, fiber.StatusOK, hit("bob"))
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	store := newMemCounter()
	store.err = errors.New("counter unavailable")
	app := limitedApp(store, 1)

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}
