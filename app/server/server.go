package server

import (
	"context"
	"media-flow/app/config"
	"media-flow/app/database"
	"media-flow/app/filewatcher"
	"media-flow/app/handler"
	"media-flow/app/logger"
	"media-flow/app/middleware"
	"media-flow/app/service"
	"media-flow/app/utils/prochelper"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Server 表示 HTTP 服务器
type Server struct {
	Config *config.Config
	Logger *logger.Logger
	gin    *gin.Engine
	http   *http.Server

	registry   *service.TaskRegistry
	dispatcher *service.TaskDispatcher
	cache      *service.CacheService
	library    *service.LibraryService
	watchers   *filewatcher.FileWatcherManager
}

// New 创建一个新的 Server 实例，并完成任务子系统的组装
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	router := gin.Default()

	db := database.GetDB()

	store := service.NewTaskStore(db, log)
	registry, err := service.NewTaskRegistry(store, cfg, log)
	if err != nil {
		return nil, err
	}

	cache := service.NewCacheService(db, log)
	library := service.NewLibraryService(db, log)
	processor := prochelper.New(cfg)
	policy := service.NewRetryPolicy(cfg.Task.RetryBaseDelay)
	worker := service.NewTaskWorker(registry, cache, processor, library, policy, cfg, log)
	dispatcher := service.NewTaskDispatcher(registry, worker, cache, cfg, log)

	watchers, err := filewatcher.NewFileWatcherManager(&cfg.Watcher, registry, log)
	if err != nil {
		return nil, err
	}

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		Config:     cfg,
		Logger:     log,
		registry:   registry,
		dispatcher: dispatcher,
		cache:      cache,
		library:    library,
		watchers:   watchers,
	}

	// 设置路由
	s.setupRoutes()

	return s, nil
}

// Start 启动服务器
func (s *Server) Start() error {
	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)

	// 启动任务调度器和入库目录监控
	s.dispatcher.Start()
	if err := s.watchers.Start(); err != nil {
		return err
	}

	return s.http.ListenAndServe()
}

// Shutdown 按依赖顺序关闭：先停监控和调度器，再关索引和数据库
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.watchers.Stop(); err != nil {
		s.Logger.Errorf("停止文件监控失败: %v", err)
	}

	s.dispatcher.Stop()

	if err := s.library.Close(); err != nil {
		s.Logger.Errorf("关闭内容库索引失败: %v", err)
	}

	if err := database.Close(); err != nil {
		s.Logger.Errorf("关闭数据库连接失败: %v", err)
	}
	return s.http.Shutdown(ctx)
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes() {
	// 创建处理器实例
	authHandler := handler.NewAuthHandler(s.Config)
	taskHandler := handler.NewTaskHandler(s.registry, s.dispatcher, s.Logger)
	libraryHandler := handler.NewLibraryHandler(s.library, s.Logger)
	cacheHandler := handler.NewCacheHandler(s.cache, s.Config, s.Logger)

	// API路由组
	api := s.gin.Group("/api")

	// 认证相关路由（不需要JWT验证）
	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
	}

	// 需要JWT验证的路由
	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(s.Config))
	{
		// 用户相关
		protected.GET("/me", authHandler.Me)

		// 任务相关路由
		tasks := protected.Group("/tasks")
		{
			tasks.POST("/file", taskHandler.SubmitFileUpload)
			tasks.POST("/url", taskHandler.SubmitURLUpload)
			tasks.POST("/delete", taskHandler.SubmitDelete)
			tasks.POST("/batch-delete", taskHandler.SubmitBatchDelete)

			tasks.GET("/", taskHandler.ListTasks)
			tasks.GET("/queue/status", taskHandler.QueueStatus)
			tasks.GET("/:id", taskHandler.GetTask)
			tasks.POST("/:id/cancel", taskHandler.CancelTask)
			tasks.DELETE("/:id", taskHandler.DeleteTask)

			tasks.POST("/cleanup", taskHandler.Cleanup)
		}

		// 内容库相关路由
		libraries := protected.Group("/libraries")
		{
			libraries.GET("/", libraryHandler.ListLibraries)
			libraries.GET("/:name/entries", libraryHandler.ListEntries)
			libraries.GET("/:name/search", libraryHandler.Search)
		}

		// 内容哈希缓存相关路由
		cache := protected.Group("/cache")
		{
			cache.GET("/stats", cacheHandler.Stats)
			cache.POST("/cleanup", cacheHandler.Cleanup)
		}
	}
}
