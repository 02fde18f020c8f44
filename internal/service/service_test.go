package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"GoCDN/internal/repo"
	"GoCDN/internal/storage"
	"GoCDN/model"
)

// memFiles is an in-memory FileStore for tests.
type memFiles struct {
	mu      sync.Mutex
	nextID  uint64
	records map[string]*model.FileRecord

	failCreate bool
	failUpdate bool
}

func newMemFiles() *memFiles {
	return &memFiles{records: make(map[string]*model.FileRecord)}
}

func (m *memFiles) GetByLogicalName(ctx context.Context, name string) (*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[name]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (m *memFiles) Create(ctx context.Context, record *model.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return assertError
	}
	m.nextID++
	record.ID = m.nextID
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt
	copied := *record
	m.records[record.LogicalName] = &copied
	return nil
}

func (m *memFiles) UpdateContent(ctx context.Context, record *model.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate {
		return assertError
	}
	existing, ok := m.records[record.LogicalName]
	if !ok {
		return repo.ErrNotFound
	}
	existing.StorageKey = record.StorageKey
	existing.ContentHash = record.ContentHash
	existing.Size = record.Size
	existing.MimeType = record.MimeType
	existing.Extension = record.Extension
	existing.Version = record.Version
	existing.UploadedBy = record.UploadedBy
	existing.UpdatedAt = time.Now()
	return nil
}

func (m *memFiles) IncrementDownloadCount(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.records {
		if record.ID == id {
			record.DownloadCount++
			return nil
		}
	}
	return repo.ErrNotFound
}

func (m *memFiles) List(ctx context.Context, page, perPage int, search string) ([]model.FileRecord, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.FileRecord
	for _, record := range m.records {
		if search == "" || strings.Contains(record.LogicalName, search) {
			out = append(out, *record)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memFiles) Delete(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, record := range m.records {
		if record.ID == id {
			delete(m.records, name)
			return nil
		}
	}
	return repo.ErrNotFound
}

// memSessions is an in-memory SessionStore for tests.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*model.ChunkSession
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*model.ChunkSession)}
}

func (m *memSessions) Create(ctx context.Context, session *model.ChunkSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.CreatedAt = time.Now()
	copied := *session
	m.sessions[session.UploadID] = &copied
	return nil
}

func (m *memSessions) GetByUploadID(ctx context.Context, uploadID string) (*model.ChunkSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[uploadID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *memSessions) SetDeclared(ctx context.Context, uploadID string, chunkCount int, totalSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[uploadID]
	if !ok {
		return repo.ErrNotFound
	}
	session.DeclaredChunkCount = chunkCount
	session.DeclaredTotalSize = totalSize
	return nil
}

func (m *memSessions) Delete(ctx context.Context, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, uploadID)
	return nil
}

func (m *memSessions) ListExpired(ctx context.Context, before time.Time) ([]model.ChunkSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ChunkSession
	for _, session := range m.sessions {
		if session.CreatedAt.Before(before) {
			out = append(out, *session)
		}
	}
	return out, nil
}

var assertError = &StorageError{Op: "test", Err: context.Canceled}

func newTestResolver(t *testing.T) (*Resolver, *memFiles, *storage.DiskStore) {
	t.Helper()
	blobs, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	files := newMemFiles()
	resolver := NewResolver(files, blobs, repo.NewLocalLocker(), t.TempDir())
	return resolver, files, blobs
}
