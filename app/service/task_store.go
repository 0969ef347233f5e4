package service

import (
	"fmt"
	"media-flow/app/logger"
	"media-flow/app/model"
	"time"

	"gorm.io/gorm"
)

// TaskStore 任务记录的持久化仓库
// 每次状态迁移先落库，内存注册表才视为已提交；进程重启后未完成的任务从这里恢复
type TaskStore struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewTaskStore 创建任务存储
func NewTaskStore(db *gorm.DB, log *logger.Logger) *TaskStore {
	return &TaskStore{db: db, log: log}
}

// Save 以 task_id 为键的幂等 upsert
func (s *TaskStore) Save(task *model.MediaTask) error {
	var existing model.MediaTask
	err := s.db.Where("task_id = ?", task.TaskID).First(&existing).Error

	if err == gorm.ErrRecordNotFound {
		return s.db.Create(task).Error
	}
	if err != nil {
		return err
	}

	task.ID = existing.ID
	return s.db.Save(task).Error
}

// Get 根据任务ID获取任务
func (s *TaskStore) Get(taskID string) (*model.MediaTask, error) {
	var task model.MediaTask
	if err := s.db.Where("task_id = ?", taskID).First(&task).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

// List 按条件分页查询任务，status/taskType 为空时不过滤
func (s *TaskStore) List(status model.TaskStatus, taskType model.TaskType, limit, offset int) ([]model.MediaTask, int64, error) {
	var tasks []model.MediaTask
	var total int64

	query := s.db.Model(&model.MediaTask{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if taskType != "" {
		query = query.Where("task_type = ?", taskType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&tasks).Error; err != nil {
		return nil, 0, err
	}

	return tasks, total, nil
}

// Delete 删除任务记录，仅允许删除终态任务
func (s *TaskStore) Delete(taskID string) error {
	task, err := s.Get(taskID)
	if err != nil {
		return err
	}
	if !task.IsTerminal() {
		return fmt.Errorf("任务 %s 尚未结束，不允许删除", taskID)
	}
	return s.db.Where("task_id = ?", taskID).Delete(&model.MediaTask{}).Error
}

// LoadUnfinished 加载所有未完成的任务（pending 和 processing），按创建时间排序
// 进程启动时调用，保证排队中的工作不会静默丢失
func (s *TaskStore) LoadUnfinished() ([]model.MediaTask, error) {
	var tasks []model.MediaTask
	err := s.db.Where("status IN (?)",
		[]model.TaskStatus{model.TaskStatusPending, model.TaskStatusProcessing}).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

// CountByStatus 统计各状态的任务数量
func (s *TaskStore) CountByStatus() (map[string]int64, error) {
	status := make(map[string]int64)

	for _, st := range []model.TaskStatus{
		model.TaskStatusPending, model.TaskStatusProcessing,
		model.TaskStatusCompleted, model.TaskStatusFailed, model.TaskStatusCancelled,
	} {
		var count int64
		if err := s.db.Model(&model.MediaTask{}).Where("status = ?", st).Count(&count).Error; err != nil {
			return nil, err
		}
		status[string(st)] = count
	}

	return status, nil
}

// CleanupTerminal 清理超过保留期的终态任务，不触碰 pending/processing 记录
// 返回 (删除的任务ID列表, error)
func (s *TaskStore) CleanupTerminal(completedBefore, failedBefore time.Time) ([]string, error) {
	var victims []model.MediaTask
	err := s.db.Where("(status IN (?) AND completed_at < ?) OR (status = ? AND completed_at < ?)",
		[]model.TaskStatus{model.TaskStatusCompleted, model.TaskStatusCancelled}, completedBefore,
		model.TaskStatusFailed, failedBefore).
		Find(&victims).Error
	if err != nil {
		return nil, err
	}

	if len(victims) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(victims))
	for _, v := range victims {
		ids = append(ids, v.TaskID)
	}

	if err := s.db.Where("task_id IN (?)", ids).Delete(&model.MediaTask{}).Error; err != nil {
		return nil, err
	}

	return ids, nil
}
