package service

import (
	"path/filepath"
	"testing"
	"time"

	"media-flow/app/config"
	"media-flow/app/logger"
	"media-flow/app/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestLogger 测试用日志器，只输出错误级别
func newTestLogger() *logger.Logger {
	return logger.New(config.LogConfig{Level: "error"})
}

// newTestDB 在临时目录创建独立的 SQLite 数据库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.MediaTask{},
		&model.ContentHashCache{},
		&model.MediaEntry{},
	))

	return db
}

// newTestConfig 测试用配置，重试和轮询间隔都压到毫秒级
func newTestConfig() *config.Config {
	return &config.Config{
		Task: config.TaskConfig{
			MaxConcurrent:    2,
			MaxRetries:       3,
			RetryBaseDelay:   10 * time.Millisecond,
			TaskTimeout:      time.Minute,
			RetentionDays:    7,
			FailedRetainDays: 30,
			CacheMaxAgeDays:  180,
		},
		Processor: config.ProcessorConfig{
			PollInterval:   5 * time.Millisecond,
			RequestTimeout: time.Second,
			RateLimit:      100,
			RateWindow:     time.Second,
		},
	}
}

// newTestRegistry 基于临时数据库构建任务注册表
func newTestRegistry(t *testing.T, db *gorm.DB, cfg *config.Config) (*TaskRegistry, *TaskStore) {
	t.Helper()

	log := newTestLogger()
	store := NewTaskStore(db, log)
	registry, err := NewTaskRegistry(store, cfg, log)
	require.NoError(t, err)
	return registry, store
}

const testWaitTimeout = 2 * time.Second

// waitFor 轮询等待条件成立，测试中替代固定的 sleep
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("等待条件成立超时")
}
