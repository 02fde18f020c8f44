package model

import "time"

// FileRecord is the metadata row for one logical name. There is at most one
// live row per logical name; content changes bump Version and swap StorageKey.
type FileRecord struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	LogicalName string `gorm:"column:logical_name;size:255;uniqueIndex;not null" json:"logical_name"`

	// StorageKey is the opaque name the current blob lives under. It changes
	// on every content update and is never exposed to callers.
	StorageKey string `gorm:"column:storage_key;size:128;not null" json:"-"`

	ContentHash string `gorm:"column:content_hash;size:64;index;not null" json:"content_hash"`

	Size      int64  `gorm:"column:size;not null" json:"size"`
	MimeType  string `gorm:"column:mime_type;size:128;not null" json:"mime_type"`
	Extension string `gorm:"column:extension;size:32;not null;default:''" json:"extension"`

	Version       int    `gorm:"column:version;not null;default:1" json:"version"`
	DownloadCount uint64 `gorm:"column:download_count;not null;default:0" json:"download_count"`

	UploadedBy string `gorm:"column:uploaded_by;size:128;not null;default:''" json:"uploaded_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (FileRecord) TableName() string {
	return "file_record"
}
