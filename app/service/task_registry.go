package service

import (
	"context"
	"fmt"
	"media-flow/app/config"
	"media-flow/app/logger"
	"media-flow/app/model"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SubmitRequest 任务提交参数
type SubmitRequest struct {
	TaskType    model.TaskType `json:"task_type"`
	FileName    string         `json:"file_name"`
	LibraryName string         `json:"library_name"`
	FilePath    string         `json:"file_path"`
	SourceURL   string         `json:"source_url"`
	SourceLang  string         `json:"source_lang"`
	TargetID    string         `json:"target_id"` // 删除任务的远端资源ID
	Metadata    string         `json:"metadata"`
}

// TaskRegistry 任务注册表，"当前有哪些任务在排队/在运行"的唯一权威视图
// 待处理队列、活动任务表和并发计数由同一把锁保护；所有状态迁移先落库再生效
type TaskRegistry struct {
	store *TaskStore
	cfg   *config.Config
	log   *logger.Logger

	mu          sync.Mutex
	tasks       map[string]*model.MediaTask    // 活动任务（含尚未清理的终态任务）
	pending     []string                       // FIFO 待处理队列
	processing  int                            // 当前并发处理数
	cancels     map[string]context.CancelFunc  // 运行中任务的取消令牌
	retryTimers map[string]*time.Timer         // 等待重试延迟的定时器
}

// NewTaskRegistry 创建任务注册表，并从存储中恢复未完成的任务
func NewTaskRegistry(store *TaskStore, cfg *config.Config, log *logger.Logger) (*TaskRegistry, error) {
	r := &TaskRegistry{
		store:       store,
		cfg:         cfg,
		log:         log,
		tasks:       make(map[string]*model.MediaTask),
		pending:     make([]string, 0),
		cancels:     make(map[string]context.CancelFunc),
		retryTimers: make(map[string]*time.Timer),
	}

	if err := r.recover(); err != nil {
		return nil, fmt.Errorf("恢复未完成任务失败: %w", err)
	}

	return r, nil
}

// recover 从存储恢复未完成的任务
// 上次进程退出时仍在 processing 的任务重置为 pending 并标注中断；
// 上传类任务重新执行时会先命中内容哈希缓存，不会重复提交相同内容
func (r *TaskRegistry) recover() error {
	rows, err := r.store.LoadUnfinished()
	if err != nil {
		return err
	}

	recovered := 0
	for i := range rows {
		task := rows[i]

		if task.Status == model.TaskStatusProcessing {
			task.Status = model.TaskStatusPending
			task.Progress = 0
			task.CurrentStep = "上次执行被进程重启中断，等待重新调度"
			task.StartedAt = nil
			if err := r.store.Save(&task); err != nil {
				r.log.Errorf("重置中断任务状态失败: TaskID=%s, 错误: %v", task.TaskID, err)
				continue
			}
		}

		r.tasks[task.TaskID] = &task
		r.pending = append(r.pending, task.TaskID)
		recovered++
	}

	if recovered > 0 {
		r.log.Infof("♻️ 恢复了 %d 个未完成任务", recovered)
	}

	return nil
}

// Submit 提交任务：校验、持久化、入队，返回任务ID
// 提交永远不设置背压，只有执行并发受限
func (r *TaskRegistry) Submit(req SubmitRequest) (string, error) {
	if err := validateSubmit(&req); err != nil {
		return "", err
	}

	task := &model.MediaTask{
		TaskID:      uuid.NewString(),
		TaskType:    req.TaskType,
		Status:      model.TaskStatusPending,
		CurrentStep: "等待调度",
		FileName:    req.FileName,
		LibraryName: req.LibraryName,
		FilePath:    req.FilePath,
		SourceURL:   req.SourceURL,
		SourceType:  sourceTypeOf(req.TaskType),
		SourceLang:  req.SourceLang,
		TargetID:    req.TargetID,
		Metadata:    req.Metadata,
		MaxRetries:  r.cfg.Task.MaxRetries,
	}
	if task.FileName == "" && task.FilePath != "" {
		task.FileName = filepath.Base(task.FilePath)
	}

	// 先落库，再进入内存队列
	if err := r.store.Save(task); err != nil {
		return "", fmt.Errorf("保存任务失败: %w", err)
	}

	r.mu.Lock()
	r.tasks[task.TaskID] = task
	r.pending = append(r.pending, task.TaskID)
	r.mu.Unlock()

	r.log.Infof("📥 任务已提交: TaskID=%s, Type=%s, Library=%s", task.TaskID, task.TaskType, task.LibraryName)
	return task.TaskID, nil
}

// validateSubmit 提交参数校验，失败直接返回给调用方
func validateSubmit(req *SubmitRequest) error {
	switch req.TaskType {
	case model.TaskTypeFileUpload:
		if req.FilePath == "" {
			return NewValidationError("文件上传任务缺少 file_path")
		}
		if req.LibraryName == "" {
			return NewValidationError("文件上传任务缺少 library_name")
		}
	case model.TaskTypeURLUpload:
		if req.SourceURL == "" {
			return NewValidationError("URL导入任务缺少 source_url")
		}
		if !strings.HasPrefix(req.SourceURL, "http://") && !strings.HasPrefix(req.SourceURL, "https://") {
			return NewValidationError("source_url 必须是 http(s) 地址")
		}
		if req.LibraryName == "" {
			return NewValidationError("URL导入任务缺少 library_name")
		}
		if req.FileName == "" {
			return NewValidationError("URL导入任务缺少 file_name")
		}
	case model.TaskTypeDelete:
		if req.TargetID == "" && req.FileName == "" {
			return NewValidationError("删除任务需要 target_id 或 file_name")
		}
		if req.LibraryName == "" {
			return NewValidationError("删除任务缺少 library_name")
		}
	case model.TaskTypeBatchDelete:
		if req.Metadata == "" {
			return NewValidationError("批量删除任务缺少条目列表")
		}
		if req.LibraryName == "" {
			return NewValidationError("批量删除任务缺少 library_name")
		}
	default:
		return NewValidationError("不支持的任务类型: %s", req.TaskType)
	}
	return nil
}

func sourceTypeOf(t model.TaskType) string {
	switch t {
	case model.TaskTypeFileUpload:
		return model.SourceTypeLocalFile
	case model.TaskTypeURLUpload:
		return model.SourceTypeURL
	default:
		return ""
	}
}

// NextPending 在并发额度内弹出队首的待处理任务，没有可调度任务时返回 nil
// 返回的同时占用一个并发额度，调用方必须保证最终调用 Release
func (r *TaskRegistry) NextPending() *model.MediaTask {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.processing >= r.cfg.Task.MaxConcurrent {
		return nil
	}

	for len(r.pending) > 0 {
		taskID := r.pending[0]
		r.pending = r.pending[1:]

		task, ok := r.tasks[taskID]
		if !ok || task.Status != model.TaskStatusPending {
			// 队列中的残留引用（任务已被取消或移除），跳过
			continue
		}

		r.processing++
		return task
	}

	return nil
}

// BindCancel 登记运行中任务的取消令牌
func (r *TaskRegistry) BindCancel(taskID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[taskID] = cancel
}

// Release 释放一个并发额度并清理取消令牌，每次成功的 NextPending 对应一次调用
func (r *TaskRegistry) Release(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.processing > 0 {
		r.processing--
	}
	delete(r.cancels, taskID)
}

// MarkProcessing 将任务标记为处理中并记录开始时间
// 如果任务在出队后、开始前被取消，返回错误且不执行
func (r *TaskRegistry) MarkProcessing(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if !model.CanTransition(task.Status, model.TaskStatusProcessing) {
		return fmt.Errorf("任务 %s 当前状态 %s 不允许开始处理", taskID, task.Status)
	}

	task.SetProcessing()
	task.CurrentStep = "开始处理"
	r.persistLocked(task)
	return nil
}

// UpdateProgress 更新任务进度和当前步骤，进度在单次执行内单调不减
func (r *TaskRegistry) UpdateProgress(taskID string, progress int, step string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok || task.Status != model.TaskStatusProcessing {
		return
	}

	if progress > task.Progress {
		task.Progress = progress
	}
	task.CurrentStep = step
	r.persistLocked(task)
}

// Complete 将任务标记为已完成
func (r *TaskRegistry) Complete(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return
	}
	if !model.CanTransition(task.Status, model.TaskStatusCompleted) {
		r.log.Warnf("任务 %s 当前状态 %s 不允许标记完成", taskID, task.Status)
		return
	}

	task.SetCompleted()
	task.CurrentStep = "处理完成"
	r.persistLocked(task)
}

// Fail 将任务标记为失败；如果期间已被取消则保持取消终态
func (r *TaskRegistry) Fail(taskID string, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return
	}

	// 取消请求优先于失败结论
	if task.Status == model.TaskStatusCancelled {
		task.ErrorMsg = errMsg
		r.persistLocked(task)
		return
	}

	if !model.CanTransition(task.Status, model.TaskStatusFailed) {
		r.log.Warnf("任务 %s 当前状态 %s 不允许标记失败", taskID, task.Status)
		return
	}

	task.SetFailed(errMsg)
	task.CurrentStep = "处理失败"
	r.persistLocked(task)
}

// FinalizeCancelled 工作协程观察到取消信号后确认取消终态，返回是否确认了取消
// 只有 Cancel 已经把任务标记为已取消时才落取消终态；
// 进程关闭触发的令牌不是用户取消，任务保持处理中状态并在下次启动时恢复为待处理
func (r *TaskRegistry) FinalizeCancelled(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return false
	}

	if task.Status != model.TaskStatusCancelled {
		task.CurrentStep = "执行被进程关闭中断"
		r.persistLocked(task)
		return false
	}
	task.CurrentStep = "已取消"
	r.persistLocked(task)
	return true
}

// ScheduleRetry 瞬时失败后安排重试：增加重试计数、回到待处理状态，
// 延迟到期后从队列尾部重新入队（避免对不稳定的远端形成重试风暴）
func (r *TaskRegistry) ScheduleRetry(taskID string, delay time.Duration, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return
	}
	if !model.CanTransition(task.Status, model.TaskStatusPending) {
		return
	}

	task.IncrementRetry()
	task.Status = model.TaskStatusPending
	task.Progress = 0
	task.ErrorMsg = cause.Error()
	task.CurrentStep = fmt.Sprintf("第 %d/%d 次重试将在 %v 后执行", task.RetryCount, task.MaxRetries, delay)
	r.persistLocked(task)

	r.retryTimers[taskID] = time.AfterFunc(delay, func() {
		r.enqueueRetry(taskID)
	})
}

// enqueueRetry 重试延迟到期，任务回到队列尾部
func (r *TaskRegistry) enqueueRetry(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.retryTimers, taskID)

	task, ok := r.tasks[taskID]
	if !ok || task.Status != model.TaskStatusPending {
		return
	}

	task.CurrentStep = fmt.Sprintf("第 %d/%d 次重试等待调度", task.RetryCount, task.MaxRetries)
	r.persistLocked(task)
	r.pending = append(r.pending, taskID)
}

// Cancel 取消任务
// pending 任务立即出队并进入取消终态，不会再执行；
// processing 任务标记为已取消并触发取消令牌，依赖工作协程在检查点协作停止
func (r *TaskRegistry) Cancel(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return false
	}

	switch task.Status {
	case model.TaskStatusPending:
		r.removeFromPendingLocked(taskID)
		if timer, ok := r.retryTimers[taskID]; ok {
			timer.Stop()
			delete(r.retryTimers, taskID)
		}
		task.SetCancelled()
		task.CurrentStep = "已取消"
		r.persistLocked(task)
		r.log.Infof("🚫 待处理任务已取消: TaskID=%s", taskID)
		return true

	case model.TaskStatusProcessing:
		task.SetCancelled()
		task.CurrentStep = "取消请求已发出，等待工作协程停止"
		r.persistLocked(task)
		if cancel, ok := r.cancels[taskID]; ok {
			cancel()
		}
		r.log.Infof("🚫 处理中任务已请求取消: TaskID=%s", taskID)
		return true

	default:
		return false
	}
}

// removeFromPendingLocked 从待处理队列中移除指定任务
func (r *TaskRegistry) removeFromPendingLocked(taskID string) {
	for i, id := range r.pending {
		if id == taskID {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return
		}
	}
}

// Remove 移除任务记录，仅允许移除终态任务
func (r *TaskRegistry) Remove(taskID string) bool {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if ok && !task.IsTerminal() {
		r.mu.Unlock()
		return false
	}
	delete(r.tasks, taskID)
	r.mu.Unlock()

	if err := r.store.Delete(taskID); err != nil {
		if err == ErrTaskNotFound {
			return ok
		}
		r.log.Errorf("删除任务记录失败: TaskID=%s, 错误: %v", taskID, err)
		return false
	}
	return true
}

// Get 获取任务的一致性快照
func (r *TaskRegistry) Get(taskID string) (model.MediaTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if task, ok := r.tasks[taskID]; ok {
		return *task, true
	}
	return model.MediaTask{}, false
}

// GetOrLoad 优先从内存获取任务快照，未命中时回落到存储（历史终态任务）
func (r *TaskRegistry) GetOrLoad(taskID string) (*model.MediaTask, error) {
	if task, ok := r.Get(taskID); ok {
		return &task, nil
	}
	return r.store.Get(taskID)
}

// List 按条件分页查询任务
func (r *TaskRegistry) List(status model.TaskStatus, taskType model.TaskType, limit, offset int) ([]model.MediaTask, int64, error) {
	return r.store.List(status, taskType, limit, offset)
}

// QueueStatus 队列状态概览
func (r *TaskRegistry) QueueStatus() (map[string]interface{}, error) {
	counts, err := r.store.CountByStatus()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	queueLen := len(r.pending)
	processing := r.processing
	r.mu.Unlock()

	return map[string]interface{}{
		"counts":         counts,
		"queue_length":   queueLen,
		"processing":     processing,
		"max_concurrent": r.cfg.Task.MaxConcurrent,
	}, nil
}

// ProcessingCount 当前并发处理数
func (r *TaskRegistry) ProcessingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processing
}

// EvictTerminal 从内存中移除一批已被清理的终态任务
func (r *TaskRegistry) EvictTerminal(taskIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range taskIDs {
		if task, ok := r.tasks[id]; ok && task.IsTerminal() {
			delete(r.tasks, id)
		}
	}
}

// CancelAllRunning 触发所有运行中任务的取消令牌（进程关闭时使用）
// 不改变任务状态：被中断的任务留在处理中状态，由下次启动的恢复逻辑重新入队
func (r *TaskRegistry) CancelAllRunning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.cancels {
		cancel()
	}
}

// persistLocked 持久化任务状态，失败时记录日志并继续（尽力而为的持久化）
// 调用方必须持有 r.mu
func (r *TaskRegistry) persistLocked(task *model.MediaTask) {
	if err := r.store.Save(task); err != nil {
		r.log.Errorf("持久化任务状态失败: TaskID=%s, Status=%s, 错误: %v", task.TaskID, task.Status, err)
	}
}
