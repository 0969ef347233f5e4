package service

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskTimeout 任务超过配置的最长执行时间，按瞬时错误处理
	ErrTaskTimeout = errors.New("任务执行超时")
	// ErrCancelled 在协作式检查点观察到取消信号
	ErrCancelled = errors.New("任务已被取消")
	// ErrEntryNotFound 在所有已知的内容库名称变体中均未找到目标条目
	ErrEntryNotFound = errors.New("未找到内容库条目")
	// ErrTaskNotFound 注册表中不存在该任务
	ErrTaskNotFound = errors.New("任务不存在")
)

// ValidationError 提交时的参数校验错误，直接返回给调用方，不进入重试路径
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "参数校验失败: " + e.Reason
}

// NewValidationError 创建参数校验错误
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// FatalProcessingError 外部处理器明确拒绝了内容，任务直接失败，不重试
type FatalProcessingError struct {
	Reason string
}

func (e *FatalProcessingError) Error() string {
	return "外部处理器拒绝处理: " + e.Reason
}
