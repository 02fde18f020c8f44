package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/context"

	"GoCDN/internal/repo"
	"GoCDN/internal/storage"
	"GoCDN/model"
)

// ChunkManager runs chunked upload sessions: Start mints a session, Upload
// stages verified chunks, Finish assembles them in index order and hands the
// result to the Resolver as if it were a single direct upload.
type ChunkManager struct {
	sessions   repo.SessionStore
	blobs      storage.Store
	resolver   *Resolver
	rdb        *redis.Client
	sessionTTL time.Duration
}

// NewChunkManager builds a ChunkManager. rdb may be nil; expiry markers are
// then skipped and the periodic sweep alone reaps stale sessions.
func NewChunkManager(sessions repo.SessionStore, blobs storage.Store, resolver *Resolver, rdb *redis.Client, sessionTTL time.Duration) *ChunkManager {
	return &ChunkManager{
		sessions:   sessions,
		blobs:      blobs,
		resolver:   resolver,
		rdb:        rdb,
		sessionTTL: sessionTTL,
	}
}

// Progress reports receipt state after a chunk upload.
type Progress struct {
	UploadID      string
	ReceivedCount int
	ChunkCount    int
	Complete      bool
}

// Start opens a session for a logical name and returns its upload ID.
func (m *ChunkManager) Start(ctx context.Context, logicalName, uploadedBy string) (string, error) {
	name, err := cleanLogicalName(logicalName)
	if err != nil {
		return "", err
	}
	uploadID := uuid.NewString()
	if err := m.blobs.CreateSession(ctx, uploadID); err != nil {
		return "", &StorageError{Op: "session create", Err: err}
	}
	session := &model.ChunkSession{
		UploadID:    uploadID,
		LogicalName: name,
		UploadedBy:  uploadedBy,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		_ = m.blobs.RemoveSession(ctx, uploadID)
		return "", err
	}
	if err := repo.MarkSessionExpiry(ctx, m.rdb, uploadID, m.sessionTTL); err != nil {
		log.Printf("mark session expiry %s failed: %v", uploadID, err)
	}
	return uploadID, nil
}

// Upload stages one chunk. The first call pins the declared chunk count and
// total size for the session; later calls must repeat the same values. The
// chunk hash is verified before the chunk is kept. Re-sending an index
// overwrites the previous copy.
func (m *ChunkManager) Upload(ctx context.Context, uploadID string, index, chunkCount int, totalSize int64, chunkHash string, chunk io.ReadSeeker, chunkSize int64) (*Progress, error) {
	session, err := m.sessions.GetByUploadID(ctx, uploadID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, Validationf("unknown upload session %q", uploadID)
		}
		return nil, err
	}
	if chunkCount <= 0 {
		return nil, Validationf("chunk count must be positive")
	}
	if index < 0 || index >= chunkCount {
		return nil, Validationf("chunk index %d out of range [0, %d)", index, chunkCount)
	}
	if totalSize < 0 {
		return nil, Validationf("total size must not be negative")
	}

	if session.DeclaredChunkCount == 0 {
		if err := m.sessions.SetDeclared(ctx, uploadID, chunkCount, totalSize); err != nil {
			return nil, err
		}
		session.DeclaredChunkCount = chunkCount
		session.DeclaredTotalSize = totalSize
	} else if session.DeclaredChunkCount != chunkCount || session.DeclaredTotalSize != totalSize {
		return nil, Validationf("declared totals changed mid-session: %d chunks / %d bytes, session has %d / %d",
			chunkCount, totalSize, session.DeclaredChunkCount, session.DeclaredTotalSize)
	}

	if chunkHash != "" {
		hasher := sha256.New()
		if _, err := io.Copy(hasher, chunk); err != nil {
			return nil, &StorageError{Op: "chunk read", Err: err}
		}
		got := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(got, chunkHash) {
			return nil, Integrityf("chunk %d hash mismatch", index)
		}
		if _, err := chunk.Seek(0, io.SeekStart); err != nil {
			return nil, &StorageError{Op: "chunk rewind", Err: err}
		}
	}

	if err := m.blobs.PutChunk(ctx, uploadID, index, chunk, chunkSize); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, Validationf("unknown upload session %q", uploadID)
		}
		return nil, &StorageError{Op: "chunk write", Err: err}
	}

	received, err := m.blobs.ReceivedIndices(ctx, uploadID)
	if err != nil {
		return nil, &StorageError{Op: "session list", Err: err}
	}
	return &Progress{
		UploadID:      uploadID,
		ReceivedCount: len(received),
		ChunkCount:    session.DeclaredChunkCount,
		Complete:      len(received) >= session.DeclaredChunkCount,
	}, nil
}

// Finish assembles the session's chunks in index order, verifies the declared
// totals and the optional whole-file hash, and resolves the result under the
// session's logical name. The session is destroyed whether or not assembly
// succeeds, so a failed finish means starting over.
func (m *ChunkManager) Finish(ctx context.Context, uploadID string, chunkCount int, totalSize int64, expectedHash string) (*Resolution, error) {
	session, err := m.sessions.GetByUploadID(ctx, uploadID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, Validationf("unknown upload session %q", uploadID)
		}
		return nil, err
	}
	defer m.destroySession(uploadID)

	if session.DeclaredChunkCount == 0 {
		return nil, Validationf("session has no uploaded chunks")
	}
	if chunkCount != session.DeclaredChunkCount || totalSize != session.DeclaredTotalSize {
		return nil, Validationf("finish totals %d chunks / %d bytes do not match session %d / %d",
			chunkCount, totalSize, session.DeclaredChunkCount, session.DeclaredTotalSize)
	}

	received, err := m.blobs.ReceivedIndices(ctx, uploadID)
	if err != nil {
		return nil, &StorageError{Op: "session list", Err: err}
	}
	have := make(map[int]bool, len(received))
	for _, idx := range received {
		have[idx] = true
	}
	for i := 0; i < chunkCount; i++ {
		if !have[i] {
			return nil, Validationf("missing chunk %d", i)
		}
	}
	sort.Ints(received)

	sp, err := m.assemble(ctx, uploadID, chunkCount)
	if err != nil {
		return nil, err
	}
	defer sp.cleanup()

	if sp.size != totalSize {
		return nil, Integrityf("assembled size %d does not match declared %d", sp.size, totalSize)
	}
	if expectedHash != "" && !strings.EqualFold(sp.hash, expectedHash) {
		return nil, Integrityf("assembled hash does not match declared hash")
	}

	return m.resolver.resolveSpooled(ctx, session.LogicalName, sp, session.UploadedBy)
}

// Abort discards a session and everything it staged.
func (m *ChunkManager) Abort(ctx context.Context, uploadID string) error {
	if _, err := m.sessions.GetByUploadID(ctx, uploadID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Validationf("unknown upload session %q", uploadID)
		}
		return err
	}
	m.destroySession(uploadID)
	return nil
}

// assemble concatenates chunks 0..count-1 into one spool, hashing as it goes.
func (m *ChunkManager) assemble(ctx context.Context, uploadID string, count int) (*spool, error) {
	sp, err := m.resolver.spoolSource(&chunkSequence{
		ctx:      ctx,
		blobs:    m.blobs,
		uploadID: uploadID,
		count:    count,
	})
	if err != nil {
		return nil, err
	}
	return sp, nil
}

// chunkSequence reads staged chunks back to back in index order.
type chunkSequence struct {
	ctx      context.Context
	blobs    storage.Store
	uploadID string
	count    int
	next     int
	current  io.ReadCloser
}

func (c *chunkSequence) Read(p []byte) (int, error) {
	for {
		if c.current == nil {
			if c.next >= c.count {
				return 0, io.EOF
			}
			rc, err := c.blobs.OpenChunk(c.ctx, c.uploadID, c.next)
			if err != nil {
				return 0, err
			}
			c.current = rc
			c.next++
		}
		n, err := c.current.Read(p)
		if err == io.EOF {
			closeErr := c.current.Close()
			c.current = nil
			if closeErr != nil {
				return n, closeErr
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// destroySession tears down all session state. Best effort on each piece so
// a failure in one store does not strand the others.
func (m *ChunkManager) destroySession(uploadID string) {
	ctx := context.Background()
	if err := m.blobs.RemoveSession(ctx, uploadID); err != nil {
		log.Printf("remove session storage %s failed: %v", uploadID, err)
	}
	if err := m.sessions.Delete(ctx, uploadID); err != nil {
		log.Printf("remove session row %s failed: %v", uploadID, err)
	}
	if err := repo.ClearSessionExpiry(ctx, m.rdb, uploadID); err != nil {
		log.Printf("clear session expiry %s failed: %v", uploadID, err)
	}
}
