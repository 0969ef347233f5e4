package filewatcher

import (
	"fmt"
	"media-flow/app/config"
	"media-flow/app/logger"
	"media-flow/app/model"
	"media-flow/app/service"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcherManager 入库目录监控管理器，管理多个监控实例
type FileWatcherManager struct {
	watchers []*FileWatcher
	logger   *logger.Logger
	mu       sync.RWMutex
}

// NewFileWatcherManager 创建入库目录监控管理器
func NewFileWatcherManager(configs *config.WatcherConfigs, registry *service.TaskRegistry, log *logger.Logger) (*FileWatcherManager, error) {
	// 未启用时返回空管理器，Start/Stop 都是空操作
	if !configs.Enabled {
		return &FileWatcherManager{logger: log}, nil
	}

	if len(configs.Configs) == 0 {
		return nil, fmt.Errorf("文件监控已启用但没有配置任何监控项")
	}

	manager := &FileWatcherManager{
		logger:   log,
		watchers: make([]*FileWatcher, 0, len(configs.Configs)),
	}

	for i, cfg := range configs.Configs {
		watcher, err := NewFileWatcher(&cfg, registry, log)
		if err != nil {
			manager.stopAll()
			return nil, fmt.Errorf("创建第%d个文件监控器失败: %w", i+1, err)
		}
		manager.watchers = append(manager.watchers, watcher)
	}

	return manager, nil
}

// Start 启动所有文件监控器
func (m *FileWatcherManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, watcher := range m.watchers {
		if err := watcher.Start(); err != nil {
			for j := 0; j < i; j++ {
				m.watchers[j].Stop()
			}
			return fmt.Errorf("启动第%d个文件监控器失败: %w", i+1, err)
		}
	}

	if len(m.watchers) > 0 {
		m.logger.Infof("文件监控管理器已启动，共启动了 %d 个监控实例", len(m.watchers))
	}
	return nil
}

// Stop 停止所有文件监控器
func (m *FileWatcherManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stopAll()
}

// stopAll 停止所有监控器（内部方法，不加锁）
func (m *FileWatcherManager) stopAll() error {
	var errs []error

	for i, watcher := range m.watchers {
		if err := watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("停止第%d个文件监控器失败: %w", i+1, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("停止文件监控器时出现错误: %v", errs)
	}

	if len(m.watchers) > 0 {
		m.logger.Info("文件监控管理器已停止")
	}
	return nil
}

// FileWatcher 单个入库目录监控器
// 监控目录中出现的媒体文件在写入稳定后自动提交为文件上传任务
type FileWatcher struct {
	config   *config.WatcherConfig
	registry *service.TaskRegistry
	watcher  *fsnotify.Watcher
	logger   *logger.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	watching bool
	mu       sync.RWMutex

	seenMu sync.Mutex
	seen   map[string]time.Time // 已提交过任务的文件，避免重复提交
}

// NewFileWatcher 创建新的文件监控器
func NewFileWatcher(cfg *config.WatcherConfig, registry *service.TaskRegistry, log *logger.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	return &FileWatcher{
		config:   cfg,
		registry: registry,
		watcher:  watcher,
		logger:   log,
		stopCh:   make(chan struct{}),
		seen:     make(map[string]time.Time),
	}, nil
}

// Start 启动文件监控
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.watching {
		return fmt.Errorf("文件监控器[%s]已经在运行", fw.config.Name)
	}

	if _, err := os.Stat(fw.config.SourceDir); os.IsNotExist(err) {
		return fmt.Errorf("监控源目录不存在: %s", fw.config.SourceDir)
	}

	if err := fw.addWatchPaths(); err != nil {
		return fmt.Errorf("添加监控路径失败: %w", err)
	}

	fw.watching = true
	fw.wg.Add(1)
	go fw.watchLoop()

	fw.logger.Infof("文件监控器[%s]已启动，监控目录: %s -> 内容库[%s]",
		fw.config.Name, fw.config.SourceDir, fw.config.LibraryName)

	return nil
}

// Stop 停止文件监控
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !fw.watching {
		return nil
	}

	close(fw.stopCh)
	fw.watcher.Close()
	fw.wg.Wait()
	fw.watching = false

	fw.logger.Infof("文件监控器[%s]已停止", fw.config.Name)
	return nil
}

// addWatchPaths 添加监控路径
func (fw *FileWatcher) addWatchPaths() error {
	if err := fw.watcher.Add(fw.config.SourceDir); err != nil {
		return fmt.Errorf("添加根监控目录失败: %w", err)
	}

	// 如果启用递归监控，添加所有子目录
	if fw.config.Recursive {
		err := filepath.Walk(fw.config.SourceDir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() && path != fw.config.SourceDir {
				if err := fw.watcher.Add(path); err != nil {
					fw.logger.Warnf("添加子目录监控失败: %s, 错误: %v", path, err)
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("递归添加监控目录失败: %w", err)
		}
	}

	return nil
}

// watchLoop 监控事件循环
func (fw *FileWatcher) watchLoop() {
	defer fw.wg.Done()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Errorf("文件监控器[%s]错误: %v", fw.config.Name, err)

		case <-fw.stopCh:
			return
		}
	}
}

// handleEvent 处理文件系统事件
func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		fw.logger.Warnf("获取文件信息失败: %s, 错误: %v", event.Name, err)
		return
	}

	if info.IsDir() {
		// 新目录且启用递归监控时纳入监控
		if fw.config.Recursive {
			if err := fw.watcher.Add(event.Name); err != nil {
				fw.logger.Warnf("添加新目录监控失败: %s, 错误: %v", event.Name, err)
			}
		}
		return
	}

	if !fw.shouldProcessFile(event.Name) {
		return
	}

	// 异步等待写入稳定后提交任务，避免阻塞事件循环
	go func(path string) {
		if err := fw.waitForFileReady(path); err != nil {
			fw.logger.Warnf("等待文件就绪失败: %s, 错误: %v", path, err)
			return
		}
		fw.submitFile(path)
	}(event.Name)
}

// shouldProcessFile 检查文件扩展名是否在处理范围内
func (fw *FileWatcher) shouldProcessFile(path string) bool {
	if len(fw.config.Extensions) == 0 {
		return true
	}

	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range fw.config.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// waitForFileReady 等待文件写入完成：连续两次大小一致视为稳定
func (fw *FileWatcher) waitForFileReady(path string) error {
	var lastSize int64 = -1

	for i := 0; i < 60; i++ {
		select {
		case <-fw.stopCh:
			return fmt.Errorf("监控器已停止")
		case <-time.After(2 * time.Second):
		}

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("获取文件信息失败: %w", err)
		}

		if info.Size() > 0 && info.Size() == lastSize {
			return nil
		}
		lastSize = info.Size()
	}

	return fmt.Errorf("文件 %s 在等待时间内未写入稳定", path)
}

// submitFile 将稳定的文件提交为上传任务
func (fw *FileWatcher) submitFile(path string) {
	fw.seenMu.Lock()
	if _, ok := fw.seen[path]; ok {
		fw.seenMu.Unlock()
		return
	}
	fw.seen[path] = time.Now()
	fw.seenMu.Unlock()

	taskID, err := fw.registry.Submit(service.SubmitRequest{
		TaskType:    model.TaskTypeFileUpload,
		FilePath:    path,
		FileName:    filepath.Base(path),
		LibraryName: fw.config.LibraryName,
		SourceLang:  fw.config.SourceLang,
	})
	if err != nil {
		fw.logger.Errorf("监控器[%s]自动提交任务失败: %s, 错误: %v", fw.config.Name, path, err)
		return
	}

	fw.logger.Infof("📥 监控器[%s]自动提交上传任务: %s, TaskID=%s", fw.config.Name, path, taskID)
}
