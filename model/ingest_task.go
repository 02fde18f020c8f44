package model

import "time"

// IngestTask is a remote-fetch upload processed by the worker.
type IngestTask struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	LogicalName string `gorm:"column:logical_name;size:255;not null" json:"logical_name"`
	Source      string `gorm:"column:source;type:text;not null" json:"source"`

	UploadedBy string `gorm:"column:uploaded_by;size:128;not null;default:''" json:"uploaded_by"`

	Status      string     `gorm:"column:status;type:varchar(32);index;not null" json:"status"`
	ErrorMsg    string     `gorm:"column:error_msg;type:text" json:"error_msg"`
	RetryCount  int        `gorm:"column:retry_count;default:0" json:"retry_count"`
	NextRetryAt *time.Time `gorm:"column:next_retry_at" json:"next_retry_at"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at"`
	FinishedAt  *time.Time `gorm:"column:finished_at" json:"finished_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (IngestTask) TableName() string {
	return "ingest_task"
}
