package prochelper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsWithinWindow(t *testing.T) {
	limiter := NewRateLimiter(time.Second, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		start := time.Now()
		require.NoError(t, limiter.Acquire(ctx))
		assert.Less(t, time.Since(start), 50*time.Millisecond, "窗口内的第%d次请求不应阻塞", i+1)
	}
}

func TestRateLimiterBlocksWhenExhausted(t *testing.T) {
	limiter := NewRateLimiter(time.Second, 1)
	require.NoError(t, limiter.Acquire(context.Background()))

	// 配额用尽后 Acquire 阻塞，取消上下文应立即返回
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := limiter.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiterRecoversAfterWindow(t *testing.T) {
	limiter := NewRateLimiter(150*time.Millisecond, 1)
	require.NoError(t, limiter.Acquire(context.Background()))

	// 窗口滑过后配额恢复
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, limiter.Acquire(ctx))
}

func TestRateLimiterDefaults(t *testing.T) {
	limiter := NewRateLimiter(0, 0)
	assert.Equal(t, time.Minute, limiter.window)
	assert.Equal(t, 1, limiter.maxReqs)
}
