package handler

import (
	"media-flow/app/config"
	"media-flow/app/logger"
	"media-flow/app/service"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// CacheHandler 内容哈希缓存管理处理器
type CacheHandler struct {
	cache    *service.CacheService
	config   *config.Config
	logger   *logger.Logger
	response *ResponseHelper
}

// NewCacheHandler 创建缓存管理处理器
func NewCacheHandler(cache *service.CacheService, cfg *config.Config, log *logger.Logger) *CacheHandler {
	return &CacheHandler{
		cache:    cache,
		config:   cfg,
		logger:   log,
		response: NewResponseHelper(),
	}
}

// Stats 查询缓存统计
func (h *CacheHandler) Stats(c *gin.Context) {
	stats, err := h.cache.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "查询缓存统计失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(stats, "success"))
}

// Cleanup 手动触发过期缓存清理，可用 max_age_days 覆盖配置的保留期
func (h *CacheHandler) Cleanup(c *gin.Context) {
	maxAgeDays := h.config.Task.CacheMaxAgeDays
	if v := c.Query("max_age_days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, h.response.Error(400, "max_age_days 必须是正整数"))
			return
		}
		maxAgeDays = parsed
	}

	removed, err := h.cache.RemoveStaleEntries(maxAgeDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "清理缓存失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(gin.H{
		"removed":      removed,
		"max_age_days": maxAgeDays,
	}, "清理完成"))
}
