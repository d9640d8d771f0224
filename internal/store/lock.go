// internal/store/lock.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SubmissionLock serializes concurrent submissions per (applicant, type)
// through a short-lived Redis SETNX lock. It is the fast path only; the
// database's partial unique index remains the hard guarantee.
type SubmissionLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSubmissionLock(client *redis.Client, ttl time.Duration) *SubmissionLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &SubmissionLock{client: client, ttl: ttl}
}

// Acquire takes the lock and returns a release function. It returns
// (nil, nil) when the lock is already held, and an error only on transport
// failure.
func (l *SubmissionLock) Acquire(ctx context.Context, applicantID, appType string) (func(), error) {
	key := fmt.Sprintf("onboarding:submit-lock:%s:%s", applicantID, appType)
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire submission lock: %w", err)
	}
	if !ok {
		return nil, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		current, err := l.client.Get(ctx, key).Result()
		if err != nil || current != token {
			return
		}
		l.client.Del(ctx, key)
	}
	return release, nil
}
