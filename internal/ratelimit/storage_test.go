package ratelimit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return NewRedisStorage(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestStorageRoundTrip(t *testing.T) {
	s, mr := newStorage(t)

	v, err := s.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.Set("k", []byte("v"), time.Minute))
	v, err = s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
	assert.True(t, mr.Exists(defaultPrefix+"k"))

	mr.FastForward(2 * time.Minute)
	v, err = s.Get("k")
	require.NoError(t, err)
	assert.Nil(t, v, "expired")

	require.NoError(t, s.Set("k", []byte("v"), 0))
	require.NoError(t, s.Delete("k"))
	v, err = s.Get("k")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestStorageResetKeepsForeignKeys(t *testing.T) {
	s, mr := newStorage(t)
	require.NoError(t, mr.Set("other:key", "x"))
	require.NoError(t, s.Set("a", []byte("1"), 0))
	require.NoError(t, s.Set("b", []byte("2"), 0))

	require.NoError(t, s.Reset())
	assert.False(t, mr.Exists(defaultPrefix+"a"))
	assert.False(t, mr.Exists(defaultPrefix+"b"))
	assert.True(t, mr.Exists("other:key"))
}

func TestStorageBacksFiberLimiter(t *testing.T) {
	s, _ := newStorage(t)

	app := fiber.New()
	app.Use(limiter.New(limiter.Config{
		Max:        2,
		Expiration: time.Minute,
		Storage:    s,
	}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	codes := []int{}
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "not a url")
	assert.Error(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	s, err := Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
