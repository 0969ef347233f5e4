package model

import (
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	TaskTypeFileUpload  TaskType = "file_upload"  // 本地文件上传
	TaskTypeURLUpload   TaskType = "url_upload"   // 远程URL导入
	TaskTypeDelete      TaskType = "delete"       // 删除单个条目
	TaskTypeBatchDelete TaskType = "batch_delete" // 批量删除条目
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// 内容来源类型
const (
	SourceTypeLocalFile = "local_file"
	SourceTypeURL       = "url"
	SourceTypeBlob      = "blob"
)

// MediaTask 媒体处理任务模型
type MediaTask struct {
	ID          uint       `json:"id" gorm:"primarykey"`
	TaskID      string     `json:"task_id" gorm:"uniqueIndex;not null;size:64;comment:任务唯一标识"`
	TaskType    TaskType   `json:"task_type" gorm:"size:20;not null;index"`
	Status      TaskStatus `json:"status" gorm:"size:20;default:pending;index"`
	Progress    int        `json:"progress" gorm:"default:0"` // 0-100，单次执行内单调不减
	CurrentStep string     `json:"current_step"`              // 当前步骤的可读描述
	FileName    string     `json:"file_name"`
	LibraryName string     `json:"library_name" gorm:"index"`          // 目标内容库名称
	FilePath    string     `json:"file_path"`                          // 本地文件路径
	SourceURL   string     `json:"source_url"`                         // 远程URL
	SourceType  string     `json:"source_type" gorm:"size:20"`         // local_file, url, blob
	SourceLang  string     `json:"source_lang" gorm:"size:20"`         // 源内容语言
	TargetID    string     `json:"target_id" gorm:"index"`             // 删除类任务的目标远端资源ID
	Metadata    string     `json:"metadata" gorm:"type:text"`          // 自由格式元数据(JSON)
	RetryCount  int        `json:"retry_count" gorm:"default:0"`       // 当前重试次数
	MaxRetries  int        `json:"max_retries" gorm:"default:3"`       // 最大重试次数
	ErrorMsg    string     `json:"error_msg" gorm:"type:text"`         // 最后一次错误信息
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// TableName 指定表名
func (MediaTask) TableName() string {
	return "media_tasks"
}

// validTransitions 状态机允许的迁移，除此之外的迁移均为编程错误
var validTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusProcessing, TaskStatusCancelled},
	TaskStatusProcessing: {TaskStatusPending, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled},
	TaskStatusFailed:     {TaskStatusPending},
}

// CanTransition 检查状态迁移是否合法
func CanTransition(from, to TaskStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal 任务是否处于终态
func (t *MediaTask) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed || t.Status == TaskStatusCancelled
}

// IsUpload 任务是否为上传类任务（需要去重检查和远端提交）
func (t *MediaTask) IsUpload() bool {
	return t.TaskType == TaskTypeFileUpload || t.TaskType == TaskTypeURLUpload
}

// CanRetry 检查是否可以重试
func (t *MediaTask) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// IncrementRetry 增加重试次数
func (t *MediaTask) IncrementRetry() {
	t.RetryCount++
}

// SetProcessing 设置为处理中状态并记录开始时间
func (t *MediaTask) SetProcessing() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
}

// SetCompleted 设置为已完成状态
func (t *MediaTask) SetCompleted() {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.Progress = 100
	t.CompletedAt = &now
}

// SetFailed 设置为失败状态并记录错误信息
func (t *MediaTask) SetFailed(errMsg string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.ErrorMsg = errMsg
	t.CompletedAt = &now
}

// SetCancelled 设置为已取消状态
func (t *MediaTask) SetCancelled() {
	now := time.Now()
	t.Status = TaskStatusCancelled
	t.CompletedAt = &now
}
