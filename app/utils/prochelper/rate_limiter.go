package prochelper

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 针对外部处理器提交接口的滑动窗口速率限制器
type RateLimiter struct {
	mu      sync.Mutex
	stamps  []time.Time
	window  time.Duration
	maxReqs int
}

// NewRateLimiter 创建速率限制器，窗口内最多允许 maxReqs 次请求
func NewRateLimiter(window time.Duration, maxReqs int) *RateLimiter {
	if maxReqs <= 0 {
		maxReqs = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		window:  window,
		maxReqs: maxReqs,
	}
}

// Acquire 阻塞直到获得一个请求配额或上下文被取消
func (r *RateLimiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := r.tryAcquire()
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// tryAcquire 尝试获取配额，失败时返回需要等待的时间
func (r *RateLimiter) tryAcquire() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	// 清理窗口外的记录
	valid := r.stamps[:0]
	for _, t := range r.stamps {
		if now.Sub(t) < r.window {
			valid = append(valid, t)
		}
	}
	r.stamps = valid

	if len(r.stamps) < r.maxReqs {
		r.stamps = append(r.stamps, now)
		return 0, true
	}

	// 等到最早的一条记录滑出窗口
	wait := r.window - now.Sub(r.stamps[0])
	if wait < time.Millisecond*100 {
		wait = time.Millisecond * 100
	}
	return wait, false
}
