package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Task      TaskConfig      `mapstructure:"task"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Watcher   WatcherConfigs  `mapstructure:"watcher"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`      // 签发者
}

// TaskConfig 任务调度配置
type TaskConfig struct {
	MaxConcurrent    int           `mapstructure:"max_concurrent"`     // 最大并发处理任务数
	MaxRetries       int           `mapstructure:"max_retries"`        // 任务最大重试次数
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`   // 线性退避的基础延迟单位
	TaskTimeout      time.Duration `mapstructure:"task_timeout"`       // 单任务最长执行时间
	RetentionDays    int           `mapstructure:"retention_days"`     // 已完成任务保留天数
	FailedRetainDays int           `mapstructure:"failed_retain_days"` // 失败任务保留天数
	CacheMaxAgeDays  int           `mapstructure:"cache_max_age_days"` // 内容哈希缓存最大保留天数
}

// ProcessorConfig 外部内容处理器配置
type ProcessorConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`   // 轮询处理状态的间隔
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // 单次HTTP请求超时
	RateLimit      int           `mapstructure:"rate_limit"`      // 速率窗口内允许的提交次数
	RateWindow     time.Duration `mapstructure:"rate_window"`     // 速率限制窗口
}

// WatcherConfigs 文件监控总配置
type WatcherConfigs struct {
	Enabled bool            `mapstructure:"enabled"`
	Configs []WatcherConfig `mapstructure:"configs"`
}

// WatcherConfig 单个入库目录监控配置
type WatcherConfig struct {
	Name        string   `mapstructure:"name"`
	SourceDir   string   `mapstructure:"source_dir"`   // 监控的入库目录
	LibraryName string   `mapstructure:"library_name"` // 自动提交任务的目标内容库
	SourceLang  string   `mapstructure:"source_lang"`  // 源内容语言
	Recursive   bool     `mapstructure:"recursive"`
	Extensions  []string `mapstructure:"extensions"` // 需要处理的媒体文件扩展名
}

func Load() *Config {
	setDefaults()

	// 读取配置
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			log.Fatalf("读取配置文件出错: %v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "5000")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// JWT默认配置
	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24) // 24小时
	viper.SetDefault("jwt.issuer", "media-flow")

	// 任务调度默认配置
	viper.SetDefault("task.max_concurrent", 2)
	viper.SetDefault("task.max_retries", 3)
	viper.SetDefault("task.retry_base_delay", "30s")
	viper.SetDefault("task.task_timeout", "2h")
	viper.SetDefault("task.retention_days", 7)
	viper.SetDefault("task.failed_retain_days", 30)
	viper.SetDefault("task.cache_max_age_days", 180)

	// 外部处理器默认配置
	viper.SetDefault("processor.poll_interval", "10s")
	viper.SetDefault("processor.request_timeout", "2m")
	viper.SetDefault("processor.rate_limit", 10)
	viper.SetDefault("processor.rate_window", "1m")

	// 文件监控默认配置
	viper.SetDefault("watcher.enabled", false)
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	if config.Task.MaxConcurrent <= 0 {
		return fmt.Errorf("任务最大并发数必须大于0")
	}
	if config.Task.MaxRetries < 0 {
		return fmt.Errorf("任务最大重试次数不能为负数")
	}
	if config.Processor.PollInterval <= 0 {
		return fmt.Errorf("处理器轮询间隔必须大于0")
	}
	return nil
}
