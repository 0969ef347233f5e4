package filewatcher

import (
	"testing"

	"media-flow/app/config"
	"media-flow/app/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logger.Logger {
	return logger.New(config.LogConfig{Level: "error"})
}

func TestManagerDisabledIsNoop(t *testing.T) {
	manager, err := NewFileWatcherManager(&config.WatcherConfigs{Enabled: false}, nil, newTestLogger())
	require.NoError(t, err)
	require.NotNil(t, manager)

	// 未启用时 Start/Stop 都是空操作
	assert.NoError(t, manager.Start())
	assert.NoError(t, manager.Stop())
}

func TestManagerEnabledWithoutConfigsFails(t *testing.T) {
	_, err := NewFileWatcherManager(&config.WatcherConfigs{Enabled: true}, nil, newTestLogger())
	assert.Error(t, err)
}
