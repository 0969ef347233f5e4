package service

import (
	"context"
	"media-flow/app/config"
	"media-flow/app/logger"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// TaskDispatcher 任务调度器
// 单个轮询循环每秒检查一次队列，在并发额度内为每个任务启动独立的工作协程；
// 轮询而非事件驱动：任务到达率低、单任务耗时长（分钟到小时级），轮询足够
type TaskDispatcher struct {
	registry *TaskRegistry
	worker   *TaskWorker
	cache    *CacheService
	cfg      *config.Config
	log      *logger.Logger

	cron     *cron.Cron
	stopCh   chan struct{}
	loopWg   sync.WaitGroup
	workerWg sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewTaskDispatcher 创建任务调度器
func NewTaskDispatcher(registry *TaskRegistry, worker *TaskWorker, cache *CacheService,
	cfg *config.Config, log *logger.Logger) *TaskDispatcher {
	return &TaskDispatcher{
		registry: registry,
		worker:   worker,
		cache:    cache,
		cfg:      cfg,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Start 启动调度循环和定期清理
func (d *TaskDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.running = true

	d.loopWg.Add(1)
	go d.dispatchLoop()

	// 定期清理：每小时清理历史终态任务，每天清理过期的去重缓存
	d.cron = cron.New()
	d.cron.AddFunc("@every 1h", d.cleanupOldTasks)
	d.cron.AddFunc("@every 24h", d.cleanupStaleCache)
	d.cron.Start()

	d.log.Infof("任务调度器已启动，最大并发数: %d", d.cfg.Task.MaxConcurrent)
}

// Stop 停止调度器：触发所有运行中任务的取消令牌并等待工作协程退出
func (d *TaskDispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()

	if d.cron != nil {
		d.cron.Stop()
	}

	d.registry.CancelAllRunning()
	d.loopWg.Wait()
	d.workerWg.Wait()

	d.log.Info("任务调度器已停止")
}

// dispatchLoop 调度循环
func (d *TaskDispatcher) dispatchLoop() {
	defer d.loopWg.Done()

	ticker := time.NewTicker(1 * time.Second) // 每1秒检查一次队列
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.dispatchReady()
		}
	}
}

// dispatchReady 在并发额度内持续出队并启动工作协程
func (d *TaskDispatcher) dispatchReady() {
	for {
		task := d.registry.NextPending()
		if task == nil {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		d.registry.BindCancel(task.TaskID, cancel)

		d.workerWg.Add(1)
		go func() {
			defer d.workerWg.Done()
			defer cancel()
			defer d.registry.Release(task.TaskID)

			d.worker.Execute(ctx, task)
		}()
	}
}

// cleanupOldTasks 清理超过保留期的终态任务记录
func (d *TaskDispatcher) cleanupOldTasks() {
	completedCutoff := time.Now().AddDate(0, 0, -d.cfg.Task.RetentionDays)
	failedCutoff := time.Now().AddDate(0, 0, -d.cfg.Task.FailedRetainDays)

	removed, err := d.registry.store.CleanupTerminal(completedCutoff, failedCutoff)
	if err != nil {
		d.log.Errorf("清理历史任务失败: %v", err)
		return
	}

	if len(removed) > 0 {
		d.registry.EvictTerminal(removed)
		d.log.Infof("🧹 清理了 %d 个历史任务记录", len(removed))
	}
}

// cleanupStaleCache 清理超过保留期的内容哈希缓存
func (d *TaskDispatcher) cleanupStaleCache() {
	if _, err := d.cache.RemoveStaleEntries(d.cfg.Task.CacheMaxAgeDays); err != nil {
		d.log.Errorf("清理过期缓存失败: %v", err)
	}
}

// ManualCleanup 手动触发一次清理（管理接口使用）
func (d *TaskDispatcher) ManualCleanup() {
	d.log.Info("手动触发任务清理")
	d.cleanupOldTasks()
}
