package handler

import (
	"media-flow/app/logger"
	"media-flow/app/service"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// LibraryHandler 内容库查询处理器
// 条目的写入和删除只通过任务流水线进行，这里只提供只读接口
type LibraryHandler struct {
	library  *service.LibraryService
	logger   *logger.Logger
	response *ResponseHelper
}

// NewLibraryHandler 创建内容库查询处理器
func NewLibraryHandler(library *service.LibraryService, log *logger.Logger) *LibraryHandler {
	return &LibraryHandler{
		library:  library,
		logger:   log,
		response: NewResponseHelper(),
	}
}

// ListLibraries 列出所有已知内容库
func (h *LibraryHandler) ListLibraries(c *gin.Context) {
	names, err := h.library.Libraries()
	if err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "查询内容库失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(gin.H{"libraries": names}, "success"))
}

// ListEntries 分页列出内容库中的登记条目
func (h *LibraryHandler) ListEntries(c *gin.Context) {
	library := c.Param("name")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	entries, total, err := h.library.Entries(library, pageSize, (page-1)*pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "查询条目失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(gin.H{
		"entries":   entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	}, "success"))
}

// Search 在内容库中全文检索
func (h *LibraryHandler) Search(c *gin.Context) {
	library := c.Param("name")
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "缺少查询参数 q"))
		return
	}

	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	hits, err := h.library.Search(library, query, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "检索失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(gin.H{
		"hits":  hits,
		"total": len(hits),
	}, "success"))
}
