package repo

import (
	"errors"
	"time"

	"golang.org/x/net/context"
	"gorm.io/gorm"

	"GoCDN/model"
)

const fileRecordCacheTTL = 5 * time.Minute

// FileStore is the metadata table for file records, keyed by logical name.
type FileStore interface {
	GetByLogicalName(ctx context.Context, name string) (*model.FileRecord, error)
	Create(ctx context.Context, record *model.FileRecord) error
	// UpdateContent swaps the record to new content in a single statement:
	// storage key, hash, size, mime, extension, uploader and version together.
	UpdateContent(ctx context.Context, record *model.FileRecord) error
	IncrementDownloadCount(ctx context.Context, id uint64) error
	List(ctx context.Context, page, perPage int, search string) ([]model.FileRecord, int64, error)
	Delete(ctx context.Context, id uint64) error
}

// Files is the gorm-backed FileStore with an optional read-through cache for
// lookups by logical name.
type Files struct {
	db    *gorm.DB
	cache Cache
}

// NewFiles builds a FileStore over a database handle. The cache may be nil.
func NewFiles(db *gorm.DB, cache Cache) *Files {
	return &Files{db: db, cache: cache}
}

func (f *Files) cacheRecord(ctx context.Context, record *model.FileRecord) {
	if f.cache == nil || record == nil {
		return
	}
	key := BuildCacheKey(CacheKeyFileRecord, record.LogicalName)
	_ = f.cache.Set(ctx, key, record, fileRecordCacheTTL)
}

func (f *Files) invalidateRecord(ctx context.Context, name string) {
	if f.cache == nil {
		return
	}
	_ = f.cache.Delete(ctx, BuildCacheKey(CacheKeyFileRecord, name))
}

// GetByLogicalName finds the record for a logical name.
func (f *Files) GetByLogicalName(ctx context.Context, name string) (*model.FileRecord, error) {
	if f.cache != nil {
		var cached model.FileRecord
		key := BuildCacheKey(CacheKeyFileRecord, name)
		if err := f.cache.Get(ctx, key, &cached); err == nil && cached.ID != 0 {
			return &cached, nil
		}
	}
	var record model.FileRecord
	err := f.db.WithContext(ctx).Where("logical_name = ?", name).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	f.cacheRecord(ctx, &record)
	return &record, nil
}

// Create inserts a new record at version 1.
func (f *Files) Create(ctx context.Context, record *model.FileRecord) error {
	if err := f.db.WithContext(ctx).Create(record).Error; err != nil {
		return err
	}
	f.cacheRecord(ctx, record)
	return nil
}

// UpdateContent commits a content swap for an existing record.
func (f *Files) UpdateContent(ctx context.Context, record *model.FileRecord) error {
	err := f.db.WithContext(ctx).Model(&model.FileRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"storage_key":  record.StorageKey,
			"content_hash": record.ContentHash,
			"size":         record.Size,
			"mime_type":    record.MimeType,
			"extension":    record.Extension,
			"version":      record.Version,
			"uploaded_by":  record.UploadedBy,
		}).Error
	if err != nil {
		return err
	}
	f.invalidateRecord(ctx, record.LogicalName)
	return nil
}

// IncrementDownloadCount bumps the counter in the database, not in Go, so
// concurrent downloads never lose increments.
func (f *Files) IncrementDownloadCount(ctx context.Context, id uint64) error {
	return f.db.WithContext(ctx).Model(&model.FileRecord{}).
		Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
}

// List returns a page of records, newest first, optionally filtered by a
// substring of the logical name.
func (f *Files) List(ctx context.Context, page, perPage int, search string) ([]model.FileRecord, int64, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	query := f.db.WithContext(ctx).Model(&model.FileRecord{})
	if search != "" {
		query = query.Where("logical_name LIKE ?", "%"+search+"%")
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var records []model.FileRecord
	err := query.Order("created_at desc").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Delete removes a record by id.
func (f *Files) Delete(ctx context.Context, id uint64) error {
	var record model.FileRecord
	if err := f.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := f.db.WithContext(ctx).Delete(&model.FileRecord{}, id).Error; err != nil {
		return err
	}
	f.invalidateRecord(ctx, record.LogicalName)
	return nil
}
