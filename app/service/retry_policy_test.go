package service

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	policy := NewRetryPolicy(30 * time.Second)

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"参数校验错误为致命", NewValidationError("缺少字段"), ErrorFatal},
		{"远端拒绝处理为致命", &FatalProcessingError{Reason: "不支持的格式"}, ErrorFatal},
		{"条目未找到为致命", fmt.Errorf("包装: %w", ErrEntryNotFound), ErrorFatal},
		{"任务超时为瞬时", fmt.Errorf("包装: %w", ErrTaskTimeout), ErrorTransient},
		{"上下文超时为瞬时", context.DeadlineExceeded, ErrorTransient},
		{"连接重置为瞬时", syscall.ECONNRESET, ErrorTransient},
		{"连接中止为瞬时", syscall.ECONNABORTED, ErrorTransient},
		{"错误信息包含瞬时特征", errors.New("dial tcp: connection refused"), ErrorTransient},
		{"错误信息包含超时特征", errors.New("request timeout after 30s"), ErrorTransient},
		{"未知错误默认为致命", errors.New("磁盘损坏"), ErrorFatal},
		{"nil 为致命", nil, ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Classify(tt.err))
		})
	}
}

func TestClassifyWrappedTransient(t *testing.T) {
	policy := NewRetryPolicy(time.Second)

	// 多层包装后仍能识别瞬时错误
	err := fmt.Errorf("提交到外部处理器失败: %w", fmt.Errorf("请求失败: %w", syscall.ECONNRESET))
	assert.Equal(t, ErrorTransient, policy.Classify(err))
}

func TestBackoffLinear(t *testing.T) {
	policy := NewRetryPolicy(30 * time.Second)

	assert.Equal(t, 30*time.Second, policy.Backoff(1))
	assert.Equal(t, 60*time.Second, policy.Backoff(2))
	assert.Equal(t, 90*time.Second, policy.Backoff(3))

	// 非法的重试次数按第一次处理
	assert.Equal(t, 30*time.Second, policy.Backoff(0))
	assert.Equal(t, 30*time.Second, policy.Backoff(-1))
}

func TestBackoffDefaultBaseDelay(t *testing.T) {
	policy := NewRetryPolicy(0)
	assert.Equal(t, 30*time.Second, policy.Backoff(1))
}
