package service

import (
	"testing"
	"time"

	"media-flow/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *TaskStore {
	t.Helper()
	return NewTaskStore(newTestDB(t), newTestLogger())
}

func storeTask(t *testing.T, store *TaskStore, task *model.MediaTask) {
	t.Helper()
	require.NoError(t, store.Save(task))
}

func TestStoreSaveIsIdempotentUpsert(t *testing.T) {
	store := newTestStore(t)

	task := &model.MediaTask{TaskID: "t-1", TaskType: model.TaskTypeFileUpload, Status: model.TaskStatusPending}
	storeTask(t, store, task)

	// 同一 task_id 再次保存是更新而不是新增
	task.Status = model.TaskStatusProcessing
	task.Progress = 50
	storeTask(t, store, task)

	_, total, err := store.List("", "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	got, err := store.Get("t-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusProcessing, got.Status)
	assert.Equal(t, 50, got.Progress)
}

func TestStoreListFilters(t *testing.T) {
	store := newTestStore(t)

	storeTask(t, store, &model.MediaTask{TaskID: "t-1", TaskType: model.TaskTypeFileUpload, Status: model.TaskStatusPending})
	storeTask(t, store, &model.MediaTask{TaskID: "t-2", TaskType: model.TaskTypeFileUpload, Status: model.TaskStatusCompleted})
	storeTask(t, store, &model.MediaTask{TaskID: "t-3", TaskType: model.TaskTypeDelete, Status: model.TaskStatusPending})

	_, total, err := store.List(model.TaskStatusPending, "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, total, err = store.List("", model.TaskTypeDelete, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, total, err = store.List(model.TaskStatusPending, model.TaskTypeFileUpload, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestStoreDeleteRejectsUnfinished(t *testing.T) {
	store := newTestStore(t)

	storeTask(t, store, &model.MediaTask{TaskID: "t-1", Status: model.TaskStatusProcessing})
	assert.Error(t, store.Delete("t-1"))

	storeTask(t, store, &model.MediaTask{TaskID: "t-2", Status: model.TaskStatusCompleted})
	assert.NoError(t, store.Delete("t-2"))

	assert.ErrorIs(t, store.Delete("no-such"), ErrTaskNotFound)
}

func TestStoreLoadUnfinished(t *testing.T) {
	store := newTestStore(t)

	storeTask(t, store, &model.MediaTask{TaskID: "t-1", Status: model.TaskStatusPending})
	storeTask(t, store, &model.MediaTask{TaskID: "t-2", Status: model.TaskStatusProcessing})
	storeTask(t, store, &model.MediaTask{TaskID: "t-3", Status: model.TaskStatusCompleted})
	storeTask(t, store, &model.MediaTask{TaskID: "t-4", Status: model.TaskStatusFailed})

	tasks, err := store.LoadUnfinished()
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t-1", tasks[0].TaskID)
	assert.Equal(t, "t-2", tasks[1].TaskID)
}

func TestStoreCleanupTerminal(t *testing.T) {
	store := newTestStore(t)

	old := time.Now().AddDate(0, 0, -10)
	recent := time.Now().Add(-time.Hour)

	storeTask(t, store, &model.MediaTask{TaskID: "old-done", Status: model.TaskStatusCompleted, CompletedAt: &old})
	storeTask(t, store, &model.MediaTask{TaskID: "new-done", Status: model.TaskStatusCompleted, CompletedAt: &recent})
	storeTask(t, store, &model.MediaTask{TaskID: "old-cancelled", Status: model.TaskStatusCancelled, CompletedAt: &old})
	storeTask(t, store, &model.MediaTask{TaskID: "old-failed", Status: model.TaskStatusFailed, CompletedAt: &old})
	storeTask(t, store, &model.MediaTask{TaskID: "queued", Status: model.TaskStatusPending})

	// 完成/取消类保留7天，失败类保留30天
	completedCutoff := time.Now().AddDate(0, 0, -7)
	failedCutoff := time.Now().AddDate(0, 0, -30)

	removed, err := store.CleanupTerminal(completedCutoff, failedCutoff)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"old-done", "old-cancelled"}, removed)

	// 失败任务保留期更长，本轮不清理；排队中的任务永不触碰
	_, err = store.Get("old-failed")
	assert.NoError(t, err)
	_, err = store.Get("queued")
	assert.NoError(t, err)
	_, err = store.Get("new-done")
	assert.NoError(t, err)
	_, err = store.Get("old-done")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestStoreCountByStatus(t *testing.T) {
	store := newTestStore(t)

	storeTask(t, store, &model.MediaTask{TaskID: "t-1", Status: model.TaskStatusPending})
	storeTask(t, store, &model.MediaTask{TaskID: "t-2", Status: model.TaskStatusPending})
	storeTask(t, store, &model.MediaTask{TaskID: "t-3", Status: model.TaskStatusFailed})

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["pending"])
	assert.Equal(t, int64(1), counts["failed"])
	assert.Equal(t, int64(0), counts["processing"])
}
