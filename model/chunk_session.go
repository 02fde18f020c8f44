package model

import "time"

// ChunkSession tracks one resumable upload. Which chunk indices have arrived
// is derived from the storage scratch area, not stored here, so there is a
// single source of truth for receipt state.
type ChunkSession struct {
	ID uint64 `gorm:"primaryKey"`

	UploadID string `gorm:"column:upload_id;size:36;uniqueIndex;not null"`

	LogicalName string `gorm:"column:logical_name;size:255;not null;default:''"`

	// Declared totals arrive with the first upload call, not with start.
	DeclaredChunkCount int   `gorm:"column:declared_chunk_count;not null;default:0"`
	DeclaredTotalSize  int64 `gorm:"column:declared_total_size;not null;default:0"`

	UploadedBy string `gorm:"column:uploaded_by;size:128;not null;default:''"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName returns the database table name.
func (ChunkSession) TableName() string {
	return "chunk_session"
}
