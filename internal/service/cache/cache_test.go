package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.SetBytes(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.SetBytes(ctx, "forever", []byte("2"), 0))

	b, ok, err := c.GetBytes(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), b)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.GetBytes(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.GetBytes(ctx, "forever")
	assert.True(t, ok)
}

func TestTTLCacheSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := NewTTLCache()
	c.now = func() time.Time { return now }
	_ = c.SetBytes(ctx, "x", nil, time.Second)
	_ = c.SetBytes(ctx, "y", nil, time.Hour)
	now = now.Add(time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheFromClient(db, "t:")

	mock.ExpectSet("t:regime:NIFTY", []byte("{}"), 30*time.Second).SetVal("OK")
	require.NoError(t, c.SetBytes(ctx, "regime:NIFTY", []byte("{}"), 30*time.Second))

	mock.ExpectGet("t:regime:NIFTY").SetVal("{}")
	b, ok, err := c.GetBytes(ctx, "regime:NIFTY")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("{}"), b)

	mock.ExpectGet("t:missing").RedisNil()
	_, ok, err = c.GetBytes(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectGet("t:broken").SetErr(errors.New("conn reset"))
	_, _, err = c.GetBytes(ctx, "broken")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
