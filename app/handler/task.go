package handler

import (
	"errors"
	"media-flow/app/logger"
	"media-flow/app/model"
	"media-flow/app/service"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// TaskHandler 任务管理处理器
type TaskHandler struct {
	registry   *service.TaskRegistry
	dispatcher *service.TaskDispatcher
	logger     *logger.Logger
	response   *ResponseHelper
}

// NewTaskHandler 创建任务管理处理器
func NewTaskHandler(registry *service.TaskRegistry, dispatcher *service.TaskDispatcher, log *logger.Logger) *TaskHandler {
	return &TaskHandler{
		registry:   registry,
		dispatcher: dispatcher,
		logger:     log,
		response:   NewResponseHelper(),
	}
}

// submit 统一的提交入口，校验失败返回400，其余错误返回500
func (h *TaskHandler) submit(c *gin.Context, taskType model.TaskType) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "请求参数错误: "+err.Error()))
		return
	}
	req.TaskType = taskType

	taskID, err := h.registry.Submit(req)
	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, h.response.Error(400, ve.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "提交任务失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(gin.H{"task_id": taskID}, "任务已提交"))
}

// SubmitFileUpload 提交本地文件上传任务
func (h *TaskHandler) SubmitFileUpload(c *gin.Context) {
	h.submit(c, model.TaskTypeFileUpload)
}

// SubmitURLUpload 提交URL导入任务
func (h *TaskHandler) SubmitURLUpload(c *gin.Context) {
	h.submit(c, model.TaskTypeURLUpload)
}

// SubmitDelete 提交删除任务
func (h *TaskHandler) SubmitDelete(c *gin.Context) {
	h.submit(c, model.TaskTypeDelete)
}

// SubmitBatchDelete 提交批量删除任务
func (h *TaskHandler) SubmitBatchDelete(c *gin.Context) {
	h.submit(c, model.TaskTypeBatchDelete)
}

// ListTasks 按状态和类型分页查询任务
func (h *TaskHandler) ListTasks(c *gin.Context) {
	status := model.TaskStatus(c.Query("status"))
	taskType := model.TaskType(c.Query("type"))

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	tasks, total, err := h.registry.List(status, taskType, pageSize, (page-1)*pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "查询任务失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(gin.H{
		"tasks":     tasks,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	}, "success"))
}

// GetTask 查询单个任务详情
func (h *TaskHandler) GetTask(c *gin.Context) {
	taskID := c.Param("id")

	task, err := h.registry.GetOrLoad(taskID)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, h.response.Error(404, "任务不存在"))
			return
		}
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "查询任务失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(task, "success"))
}

// CancelTask 取消任务：排队中的任务立即取消，运行中的任务触发协作式取消
func (h *TaskHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("id")

	if !h.registry.Cancel(taskID) {
		c.JSON(http.StatusConflict, h.response.Error(409, "任务不存在或已进入终态，无法取消"))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(nil, "取消请求已受理"))
}

// DeleteTask 删除终态任务记录
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	taskID := c.Param("id")

	if !h.registry.Remove(taskID) {
		c.JSON(http.StatusConflict, h.response.Error(409, "任务不存在或尚未结束，不能删除"))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(nil, "任务记录已删除"))
}

// QueueStatus 查询队列状态
func (h *TaskHandler) QueueStatus(c *gin.Context) {
	status, err := h.registry.QueueStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "查询队列状态失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(status, "success"))
}

// Cleanup 手动触发历史任务清理
func (h *TaskHandler) Cleanup(c *gin.Context) {
	h.dispatcher.ManualCleanup()
	c.JSON(http.StatusOK, h.response.Success(nil, "清理已触发"))
}
