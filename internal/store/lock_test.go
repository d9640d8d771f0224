// internal/store/lock_test.go
package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrimarket-onboarding/internal/common/logger"
	"agrimarket-onboarding/internal/models"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestSubmissionLock_AcquireAndRelease(t *testing.T) {
	client := newTestRedis(t)
	lock := NewSubmissionLock(client, 5*time.Second)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "applicant-1", "farmer")
	require.NoError(t, err)
	require.NotNil(t, release)

	// Same pair is blocked while held.
	dup, err := lock.Acquire(ctx, "applicant-1", "farmer")
	require.NoError(t, err)
	assert.Nil(t, dup)

	// A different type for the same applicant is independent.
	other, err := lock.Acquire(ctx, "applicant-1", "delivery_agent")
	require.NoError(t, err)
	require.NotNil(t, other)
	other()

	release()

	again, err := lock.Acquire(ctx, "applicant-1", "farmer")
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestStatsCache_RoundTrip(t *testing.T) {
	client := newTestRedis(t)
	cache := NewStatsCache(client, time.Minute, logger.NewNoOpLogger())
	ctx := context.Background()

	_, ok := cache.Get(ctx)
	assert.False(t, ok)

	counts := []models.StatusCount{
		{Type: models.TypeFarmer, Status: models.StatusPending, Count: 3},
		{Type: models.TypeDeliveryAgent, Status: models.StatusApproved, Count: 1},
	}
	cache.Set(ctx, counts)

	got, ok := cache.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, counts, got)

	cache.Invalidate(ctx)
	_, ok = cache.Get(ctx)
	assert.False(t, ok)
}

func TestStatsCache_TransportErrorFallsThrough(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewStatsCache(client, time.Minute, logger.NewNoOpLogger())

	mock.ExpectGet(statsCacheKey).SetErr(errors.New("connection reset"))

	_, ok := cache.Get(context.Background())
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
