package repo

import (
	"errors"
	"time"

	"golang.org/x/net/context"
	"gorm.io/gorm"

	"GoCDN/model"
)

// SessionStore is the metadata table for in-flight chunk sessions.
type SessionStore interface {
	Create(ctx context.Context, session *model.ChunkSession) error
	GetByUploadID(ctx context.Context, uploadID string) (*model.ChunkSession, error)
	// SetDeclared persists the chunk count and total size announced by the
	// first upload call. Once set, later calls must not change them.
	SetDeclared(ctx context.Context, uploadID string, chunkCount int, totalSize int64) error
	Delete(ctx context.Context, uploadID string) error
	ListExpired(ctx context.Context, before time.Time) ([]model.ChunkSession, error)
}

// Sessions is the gorm-backed SessionStore.
type Sessions struct {
	db *gorm.DB
}

// NewSessions builds a SessionStore over a database handle.
func NewSessions(db *gorm.DB) *Sessions {
	return &Sessions{db: db}
}

// Create inserts a new session row.
func (s *Sessions) Create(ctx context.Context, session *model.ChunkSession) error {
	return s.db.WithContext(ctx).Create(session).Error
}

// GetByUploadID loads a session by upload ID.
func (s *Sessions) GetByUploadID(ctx context.Context, uploadID string) (*model.ChunkSession, error) {
	var session model.ChunkSession
	err := s.db.WithContext(ctx).Where("upload_id = ?", uploadID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// SetDeclared records the declared totals for a session.
func (s *Sessions) SetDeclared(ctx context.Context, uploadID string, chunkCount int, totalSize int64) error {
	return s.db.WithContext(ctx).Model(&model.ChunkSession{}).
		Where("upload_id = ?", uploadID).
		Updates(map[string]interface{}{
			"declared_chunk_count": chunkCount,
			"declared_total_size":  totalSize,
		}).Error
}

// Delete removes a session row.
func (s *Sessions) Delete(ctx context.Context, uploadID string) error {
	return s.db.WithContext(ctx).Where("upload_id = ?", uploadID).Delete(&model.ChunkSession{}).Error
}

// ListExpired returns sessions created before the cutoff.
func (s *Sessions) ListExpired(ctx context.Context, before time.Time) ([]model.ChunkSession, error) {
	var sessions []model.ChunkSession
	err := s.db.WithContext(ctx).Where("created_at < ?", before).Find(&sessions).Error
	return sessions, err
}
