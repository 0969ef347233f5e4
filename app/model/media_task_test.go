package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to TaskStatus }{
		{TaskStatusPending, TaskStatusProcessing},
		{TaskStatusPending, TaskStatusCancelled},
		{TaskStatusProcessing, TaskStatusPending}, // 重试回到排队
		{TaskStatusProcessing, TaskStatusCompleted},
		{TaskStatusProcessing, TaskStatusFailed},
		{TaskStatusProcessing, TaskStatusCancelled},
		{TaskStatusFailed, TaskStatusPending}, // 失败任务手动重新入队
	}
	for _, tt := range allowed {
		assert.True(t, CanTransition(tt.from, tt.to), "%s -> %s 应该允许", tt.from, tt.to)
	}

	forbidden := []struct{ from, to TaskStatus }{
		{TaskStatusPending, TaskStatusCompleted}, // 不经过处理直接完成
		{TaskStatusPending, TaskStatusFailed},
		{TaskStatusCompleted, TaskStatusPending},
		{TaskStatusCompleted, TaskStatusProcessing},
		{TaskStatusCancelled, TaskStatusPending},
		{TaskStatusCancelled, TaskStatusProcessing},
		{TaskStatusFailed, TaskStatusProcessing},
	}
	for _, tt := range forbidden {
		assert.False(t, CanTransition(tt.from, tt.to), "%s -> %s 应该拒绝", tt.from, tt.to)
	}
}

func TestIsTerminal(t *testing.T) {
	for _, status := range []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled} {
		task := &MediaTask{Status: status}
		assert.True(t, task.IsTerminal(), "%s 应为终态", status)
	}
	for _, status := range []TaskStatus{TaskStatusPending, TaskStatusProcessing} {
		task := &MediaTask{Status: status}
		assert.False(t, task.IsTerminal(), "%s 不应为终态", status)
	}
}

func TestCanRetry(t *testing.T) {
	task := &MediaTask{RetryCount: 0, MaxRetries: 3}
	assert.True(t, task.CanRetry())

	task.RetryCount = 3
	assert.False(t, task.CanRetry())
}

func TestStatusSetters(t *testing.T) {
	task := &MediaTask{Status: TaskStatusPending}

	task.SetProcessing()
	assert.Equal(t, TaskStatusProcessing, task.Status)
	assert.NotNil(t, task.StartedAt)

	task.SetCompleted()
	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.Equal(t, 100, task.Progress)
	assert.NotNil(t, task.CompletedAt)

	failed := &MediaTask{Status: TaskStatusProcessing}
	failed.SetFailed("出错了")
	assert.Equal(t, TaskStatusFailed, failed.Status)
	assert.Equal(t, "出错了", failed.ErrorMsg)
}
