package service

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

// ErrorKind 错误分类结果
type ErrorKind int

const (
	// ErrorFatal 不可重试的错误，任务直接进入失败终态
	ErrorFatal ErrorKind = iota
	// ErrorTransient 瞬时错误，在重试次数允许的范围内重新入队
	ErrorTransient
)

// transientSignatures 来自外部协作方的典型瞬时错误特征
var transientSignatures = []string{
	"connection reset",
	"connection aborted",
	"connection refused",
	"broken pipe",
	"timeout",
	"temporary failure",
}

// RetryPolicy 失败分类与线性退避策略
// 退避为线性而非指数：外部处理器自身的速率限制已经提供了压力释放
type RetryPolicy struct {
	baseDelay time.Duration
}

// NewRetryPolicy 创建重试策略，baseDelay 为线性退避的基础单位
func NewRetryPolicy(baseDelay time.Duration) *RetryPolicy {
	if baseDelay <= 0 {
		baseDelay = 30 * time.Second
	}
	return &RetryPolicy{baseDelay: baseDelay}
}

// Classify 将错误分类为瞬时或致命
func (p *RetryPolicy) Classify(err error) ErrorKind {
	if err == nil {
		return ErrorFatal
	}

	// 明确的致命错误类型优先判定
	var validationErr *ValidationError
	var fatalErr *FatalProcessingError
	if errors.As(err, &validationErr) || errors.As(err, &fatalErr) {
		return ErrorFatal
	}
	if errors.Is(err, ErrEntryNotFound) {
		return ErrorFatal
	}

	// 任务超时按瞬时错误处理，走与网络错误相同的重试路径
	if errors.Is(err, ErrTaskTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTransient
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) {
		return ErrorTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTransient
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return ErrorTransient
		}
	}

	return ErrorFatal
}

// Backoff 计算第 retryCount 次重试前的延迟（线性退避）
func (p *RetryPolicy) Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	return time.Duration(retryCount) * p.baseDelay
}
