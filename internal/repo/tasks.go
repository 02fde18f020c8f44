package repo

import (
	"errors"
	"time"

	"golang.org/x/net/context"
	"gorm.io/gorm"

	"GoCDN/model"
)

// TaskStore is the metadata table for remote-ingest tasks.
type TaskStore interface {
	Create(ctx context.Context, task *model.IngestTask) error
	Get(ctx context.Context, id uint64) (*model.IngestTask, error)
	List(ctx context.Context, limit int) ([]model.IngestTask, error)
	MarkRunning(ctx context.Context, id uint64) error
	MarkDone(ctx context.Context, id uint64) error
	MarkRetrying(ctx context.Context, id uint64, errMsg string, retryCount int, nextRetryAt time.Time) error
	MarkFailed(ctx context.Context, id uint64, errMsg string) error
}

// Tasks is the gorm-backed TaskStore.
type Tasks struct {
	db *gorm.DB
}

// NewTasks builds a TaskStore over a database handle.
func NewTasks(db *gorm.DB) *Tasks {
	return &Tasks{db: db}
}

// Create inserts a new task row.
func (t *Tasks) Create(ctx context.Context, task *model.IngestTask) error {
	return t.db.WithContext(ctx).Create(task).Error
}

// Get loads one task.
func (t *Tasks) Get(ctx context.Context, id uint64) (*model.IngestTask, error) {
	var task model.IngestTask
	err := t.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

// List returns the most recent tasks.
func (t *Tasks) List(ctx context.Context, limit int) ([]model.IngestTask, error) {
	if limit <= 0 {
		limit = 20
	}
	var tasks []model.IngestTask
	err := t.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&tasks).Error
	return tasks, err
}

// MarkRunning flags a task as started.
func (t *Tasks) MarkRunning(ctx context.Context, id uint64) error {
	now := time.Now()
	return t.db.WithContext(ctx).Model(&model.IngestTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     "running",
			"started_at": &now,
		}).Error
}

// MarkDone flags a task as completed.
func (t *Tasks) MarkDone(ctx context.Context, id uint64) error {
	now := time.Now()
	return t.db.WithContext(ctx).Model(&model.IngestTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      "done",
			"error_msg":   "",
			"finished_at": &now,
		}).Error
}

// MarkRetrying records a scheduled retry.
func (t *Tasks) MarkRetrying(ctx context.Context, id uint64, errMsg string, retryCount int, nextRetryAt time.Time) error {
	return t.db.WithContext(ctx).Model(&model.IngestTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        "retrying",
			"error_msg":     errMsg,
			"retry_count":   retryCount,
			"next_retry_at": &nextRetryAt,
		}).Error
}

// MarkFailed flags a task as permanently failed.
func (t *Tasks) MarkFailed(ctx context.Context, id uint64, errMsg string) error {
	now := time.Now()
	return t.db.WithContext(ctx).Model(&model.IngestTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      "failed",
			"error_msg":   errMsg,
			"finished_at": &now,
		}).Error
}
