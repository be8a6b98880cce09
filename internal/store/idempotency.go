package store

import (
	"context"
	"fmt"
	"time"
)

// IdempotencyWindow is how long a token suppresses repeated sends.
const IdempotencyWindow = 1800 * time.Second

// Reserve records token and reports whether it was already recorded within
// the window. An empty token never touches the store and is never a
// duplicate. The check and the write are one SET NX, so two concurrent
// sends with a fresh token cannot both win.
func (s *RedisStore) Reserve(ctx context.Context, token string) (duplicate bool, err error) {
	if token == "" {
		return false, nil
	}
	defer observeLatency(time.Now())

	set, err := s.client.SetNX(ctx, idempotencyKey(token), "1", IdempotencyWindow).Result()
	if err != nil {
		return false, fmt.Errorf("reserve idempotency token: %w", err)
	}
	return !set, nil
}

// Release forgets a reservation whose send did not complete, so that a
// retry with the same token is processed instead of reported as a
// duplicate.
func (s *RedisStore) Release(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.client.Del(ctx, idempotencyKey(token)).Err(); err != nil {
		return fmt.Errorf("release idempotency token: %w", err)
	}
	return nil
}
