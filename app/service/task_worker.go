package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"media-flow/app/config"
	"media-flow/app/logger"
	"media-flow/app/model"
	"media-flow/app/utils/downloader"
	"media-flow/app/utils/hasher"
	"media-flow/app/utils/prochelper"
	"os"
	"path/filepath"
	"time"
)

// ContentProcessor 外部内容处理器的抽象（远端、慢速、受速率限制）
type ContentProcessor interface {
	Submit(ctx context.Context, req prochelper.SubmitRequest) (string, error)
	PollStatus(ctx context.Context, externalID string) (*prochelper.StatusResponse, error)
	FetchResult(ctx context.Context, externalID string) (*model.StructuredContent, error)
}

// LibraryIndexer 目标内容库的抽象
type LibraryIndexer interface {
	Register(library, externalID string, content *model.StructuredContent, entry *model.MediaEntry) error
	ResolveEntry(library, externalID, fileName string) (*model.MediaEntry, error)
	DeleteEntry(entry *model.MediaEntry) error
}

// BatchDeleteItem 批量删除任务中的单个条目
type BatchDeleteItem struct {
	ExternalID string `json:"external_id"`
	FileName   string `json:"file_name"`
}

// batchDeletePayload 批量删除任务的 Metadata 载荷
type batchDeletePayload struct {
	Items []BatchDeleteItem `json:"items"`
}

// TaskWorker 执行单个任务的流水线
// 所有错误在这里被捕获、分类并转化为终态或重试，绝不向调度循环抛出
type TaskWorker struct {
	registry  *TaskRegistry
	cache     *CacheService
	processor ContentProcessor
	library   LibraryIndexer
	policy    *RetryPolicy
	cfg       *config.Config
	log       *logger.Logger
}

// NewTaskWorker 创建任务执行器
func NewTaskWorker(registry *TaskRegistry, cache *CacheService, processor ContentProcessor,
	library LibraryIndexer, policy *RetryPolicy, cfg *config.Config, log *logger.Logger) *TaskWorker {
	return &TaskWorker{
		registry:  registry,
		cache:     cache,
		processor: processor,
		library:   library,
		policy:    policy,
		cfg:       cfg,
		log:       log,
	}
}

// Execute 执行一次任务调度尝试
func (w *TaskWorker) Execute(ctx context.Context, task *model.MediaTask) {
	if err := w.registry.MarkProcessing(task.TaskID); err != nil {
		// 出队后、执行前任务已被取消
		w.log.Warnf("任务未开始执行: TaskID=%s, 原因: %v", task.TaskID, err)
		return
	}

	w.log.Infof("🔄 开始处理任务: TaskID=%s, Type=%s, 重试次数: %d/%d",
		task.TaskID, task.TaskType, task.RetryCount, task.MaxRetries)
	startTime := time.Now()

	var err error
	switch task.TaskType {
	case model.TaskTypeFileUpload, model.TaskTypeURLUpload:
		err = w.runUpload(ctx, task)
	case model.TaskTypeDelete:
		err = w.runDelete(ctx, task)
	case model.TaskTypeBatchDelete:
		err = w.runBatchDelete(ctx, task)
	default:
		err = fmt.Errorf("未知的任务类型: %s", task.TaskType)
	}

	elapsed := time.Since(startTime)

	if err == nil {
		w.registry.Complete(task.TaskID)
		w.log.Infof("✅ 任务完成: TaskID=%s, 耗时: %v", task.TaskID, elapsed)
		return
	}

	w.finalize(task, err, elapsed)
}

// finalize 把执行错误转化为取消/重试/失败终态
func (w *TaskWorker) finalize(task *model.MediaTask, err error, elapsed time.Duration) {
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		if w.registry.FinalizeCancelled(task.TaskID) {
			w.log.Infof("🚫 任务已取消: TaskID=%s, 耗时: %v", task.TaskID, elapsed)
		} else {
			// 进程关闭触发的中断，任务保持处理中状态等待重启后恢复
			w.log.Infof("任务执行被中断，等待下次启动恢复: TaskID=%s, 耗时: %v", task.TaskID, elapsed)
		}
		return
	}

	kind := w.policy.Classify(err)
	if kind == ErrorTransient && task.CanRetry() {
		delay := w.policy.Backoff(task.RetryCount + 1)
		w.registry.ScheduleRetry(task.TaskID, delay, err)
		w.log.Warnf("🔄 任务将重试: TaskID=%s, 第 %d/%d 次, 延迟: %v, 错误: %v",
			task.TaskID, task.RetryCount+1, task.MaxRetries, delay, err)
		return
	}

	w.registry.Fail(task.TaskID, fmt.Sprintf("%v（累计重试 %d 次）", err, task.RetryCount))
	w.log.Errorf("💀 任务失败: TaskID=%s, 累计重试: %d, 最终错误: %v", task.TaskID, task.RetryCount, err)
}

// checkpoint 协作式取消检查点
func checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
	return nil
}

// runUpload 上传类任务流水线：
// 内容哈希 → 去重检查 → 远端提交与轮询 → 注册到内容库
func (w *TaskWorker) runUpload(ctx context.Context, task *model.MediaTask) error {
	deadline := time.Now().Add(w.cfg.Task.TaskTimeout)

	localPath := task.FilePath
	if task.TaskType == model.TaskTypeURLUpload {
		w.registry.UpdateProgress(task.TaskID, 5, "下载远程文件")
		result, err := downloader.DownloadToTemp(ctx, task.SourceURL, task.FileName)
		if err != nil {
			return fmt.Errorf("下载远程文件失败: %w", err)
		}
		localPath = result.Path
		defer os.RemoveAll(filepath.Dir(result.Path))
	}

	if err := checkpoint(ctx); err != nil {
		return err
	}

	// 流式分块计算内容哈希，内存占用与文件大小无关
	w.registry.UpdateProgress(task.TaskID, 10, "计算文件内容哈希")
	contentHash, byteSize, err := hasher.HashFile(ctx, localPath)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: 哈希计算被中断", ErrCancelled)
		}
		return fmt.Errorf("计算内容哈希失败: %w", err)
	}

	w.registry.UpdateProgress(task.TaskID, 20, "查询内容哈希缓存")
	cached, err := w.cache.Lookup(contentHash)
	if err != nil {
		// 缓存查询失败按未命中处理，最多造成一次多余的远端提交
		w.log.Errorf("查询内容哈希缓存失败: TaskID=%s, 错误: %v", task.TaskID, err)
		cached = nil
	}

	var externalID string
	if cached != nil {
		// 命中去重缓存：相同字节内容已经处理过，跳过昂贵的远端提交，
		// 只需把已有的远端资源注册到本次的目标内容库
		externalID = cached.ExternalID
		w.registry.UpdateProgress(task.TaskID, 70, fmt.Sprintf("命中内容缓存，复用远端资源 %s", externalID))
		w.log.Infof("♻️ 内容去重命中: TaskID=%s, Hash=%s, ExternalID=%s",
			task.TaskID, shortHash(contentHash), externalID)
	} else {
		if err := checkpoint(ctx); err != nil {
			return err
		}

		w.registry.UpdateProgress(task.TaskID, 30, "提交内容到外部处理器")
		externalID, err = w.processor.Submit(ctx, prochelper.SubmitRequest{
			FilePath:   localPath,
			FileName:   task.FileName,
			SourceType: task.SourceType,
			SourceLang: task.SourceLang,
		})
		if err != nil {
			return fmt.Errorf("提交到外部处理器失败: %w", err)
		}

		w.registry.UpdateProgress(task.TaskID, 40, "等待远端处理完成")
		if err := w.waitForCompletion(ctx, task, externalID, deadline); err != nil {
			return err
		}

		// 远端处理成功后写入去重缓存；写入失败不影响任务本身
		canonical, created, err := w.cache.Put(&model.ContentHashCache{
			ContentHash: contentHash,
			ExternalID:  externalID,
			LibraryName: NormalizeLibraryName(task.LibraryName),
			FileName:    task.FileName,
			ByteSize:    byteSize,
			CachedAt:    time.Now(),
		})
		if err != nil {
			w.log.Errorf("写入内容哈希缓存失败: TaskID=%s, 错误: %v", task.TaskID, err)
		} else if !created && canonical.ExternalID != externalID {
			// 相同内容的任务并发通过了去重检查，各自提交了一次远端处理；
			// 落库只保留先写入者的映射，落败方改用规范资源ID注册
			w.log.Infof("♻️ 并发提交收敛到规范资源: TaskID=%s, %s -> %s",
				task.TaskID, externalID, canonical.ExternalID)
			externalID = canonical.ExternalID
		}
	}

	if err := checkpoint(ctx); err != nil {
		return err
	}

	w.registry.UpdateProgress(task.TaskID, 85, "获取结构化内容")
	content, err := w.processor.FetchResult(ctx, externalID)
	if err != nil {
		return fmt.Errorf("获取结构化内容失败: %w", err)
	}

	w.registry.UpdateProgress(task.TaskID, 90, "注册到目标内容库")
	entry := &model.MediaEntry{
		FileName:   task.FileName,
		ByteSize:   byteSize,
		SourceType: task.SourceType,
		SourceLang: task.SourceLang,
		Metadata:   task.Metadata,
	}
	if err := w.library.Register(task.LibraryName, externalID, content, entry); err != nil {
		return fmt.Errorf("注册到内容库失败: %w", err)
	}

	return nil
}

// waitForCompletion 轮询远端处理状态直到完成
// 每轮开始前检查取消信号和任务级超时；超时按瞬时错误处理，走重试路径
func (w *TaskWorker) waitForCompletion(ctx context.Context, task *model.MediaTask, externalID string, deadline time.Time) error {
	progress := 40

	for {
		if err := checkpoint(ctx); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: 超过 %v 仍未处理完成", ErrTaskTimeout, w.cfg.Task.TaskTimeout)
		}

		status, err := w.processor.PollStatus(ctx, externalID)
		if err != nil {
			return fmt.Errorf("轮询处理状态失败: %w", err)
		}

		switch status.State {
		case prochelper.StateDone:
			w.registry.UpdateProgress(task.TaskID, 80, "远端处理完成")
			return nil
		case prochelper.StateFailed:
			return &FatalProcessingError{Reason: status.Error}
		}

		if progress < 78 {
			progress += 2
		}
		w.registry.UpdateProgress(task.TaskID, progress, "远端处理中")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		case <-time.After(w.cfg.Processor.PollInterval):
		}
	}
}

// runDelete 删除任务：解析目标 → 移除索引文档（非致命）→ 删除登记行
func (w *TaskWorker) runDelete(ctx context.Context, task *model.MediaTask) error {
	w.registry.UpdateProgress(task.TaskID, 20, "解析删除目标")

	entry, err := w.library.ResolveEntry(task.LibraryName, task.TargetID, task.FileName)
	if err != nil {
		return err
	}

	if err := checkpoint(ctx); err != nil {
		return err
	}

	w.registry.UpdateProgress(task.TaskID, 60, "移除索引文档和登记行")
	if err := w.library.DeleteEntry(entry); err != nil {
		return err
	}

	return nil
}

// runBatchDelete 批量删除任务：逐条处理，单条未找到不中断；全部失败才算任务失败
func (w *TaskWorker) runBatchDelete(ctx context.Context, task *model.MediaTask) error {
	var payload batchDeletePayload
	if err := json.Unmarshal([]byte(task.Metadata), &payload); err != nil {
		return NewValidationError("批量删除载荷解析失败: %v", err)
	}
	if len(payload.Items) == 0 {
		return NewValidationError("批量删除条目列表为空")
	}

	total := len(payload.Items)
	failed := 0

	for i, item := range payload.Items {
		if err := checkpoint(ctx); err != nil {
			return err
		}

		progress := (i + 1) * 100 / total
		if progress > 95 {
			progress = 95
		}
		w.registry.UpdateProgress(task.TaskID, progress,
			fmt.Sprintf("批量删除中 (%d/%d)", i+1, total))

		entry, err := w.library.ResolveEntry(task.LibraryName, item.ExternalID, item.FileName)
		if err != nil {
			failed++
			w.log.Warnf("批量删除条目未找到: TaskID=%s, ExternalID=%s, FileName=%s",
				task.TaskID, item.ExternalID, item.FileName)
			continue
		}

		if err := w.library.DeleteEntry(entry); err != nil {
			failed++
			w.log.Errorf("批量删除条目失败: TaskID=%s, ExternalID=%s, 错误: %v",
				task.TaskID, entry.ExternalID, err)
		}
	}

	if failed == total {
		return fmt.Errorf("批量删除全部失败: %d/%d 条未处理", failed, total)
	}
	if failed > 0 {
		w.registry.UpdateProgress(task.TaskID, 95,
			fmt.Sprintf("批量删除完成，%d/%d 条失败", failed, total))
	}

	return nil
}
