package cancel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRedis struct {
	keys    map[string]time.Duration
	readErr error
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.keys[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	if f.readErr != nil {
		return redis.NewIntResult(0, f.readErr)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestBatchCancelFlag(t *testing.T) {
	rdb := &fakeRedis{keys: map[string]time.Duration{}}
	flags := NewFlags(rdb, zap.NewNop())
	ctx := context.Background()

	require.False(t, flags.IsBatchCancelled(ctx, "batch-1"))
	require.NoError(t, flags.SetBatchCancelled(ctx, "batch-1"))
	require.True(t, flags.IsBatchCancelled(ctx, "batch-1"))
	require.False(t, flags.IsBatchCancelled(ctx, "batch-2"))
	require.False(t, flags.IsBatchCancelled(ctx, ""))
	require.Equal(t, defaultTTL, rdb.keys["cancel:batch:batch-1"])
}

func TestBatchCancelFlagReadErrorIsNotCancelled(t *testing.T) {
	rdb := &fakeRedis{keys: map[string]time.Duration{"cancel:batch:b": 0}, readErr: errors.New("conn reset")}
	flags := NewFlags(rdb, zap.NewNop())

	require.False(t, flags.IsBatchCancelled(context.Background(), "b"))
}
