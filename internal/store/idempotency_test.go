package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveEmptyTokenSkipsStore(t *testing.T) {
	s, mr := newTestRedis(t)

	dup, err := s.Reserve(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Empty(t, mr.Keys())
	assert.Equal(t, 0, mr.CommandCount())
}

func TestReserveSecondCallIsDuplicate(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	dup, err := s.Reserve(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = s.Reserve(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, dup)

	assert.Equal(t, IdempotencyWindow, mr.TTL("idem:tok-1"))
}

func TestReserveWindowExpires(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, "tok-1")
	require.NoError(t, err)

	mr.FastForward(IdempotencyWindow + time.Second)

	dup, err := s.Reserve(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestReserveTokensAreIndependent(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, "tok-1")
	require.NoError(t, err)

	dup, err := s.Reserve(ctx, "tok-2")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestReleaseAllowsRetry(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, "tok-1")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "tok-1"))

	dup, err := s.Reserve(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestReserveStoreDown(t *testing.T) {
	s, mr := newTestRedis(t)
	mr.Close()

	_, err := s.Reserve(context.Background(), "tok-1")
	assert.Error(t, err)
}
