package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/net/context"

	"GoCDN/internal/repo"
	"GoCDN/internal/storage"
	"GoCDN/model"
)

const resolveLockTTL = 30 * time.Second

// Outcome is the version-resolution decision for one candidate upload.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeUpdated
	OutcomeDuplicate
)

// Resolution carries the decision and the record it applies to.
type Resolution struct {
	Outcome Outcome
	Record  *model.FileRecord
}

// Resolver decides create / update / duplicate for a candidate blob under a
// logical name and commits storage plus metadata as a unit. Writers on the
// same logical name are serialized by a per-name lock, so a losing writer
// waits instead of orphaning its blob.
type Resolver struct {
	files      repo.FileStore
	blobs      storage.Store
	locks      repo.Locker
	scratchDir string
}

// NewResolver builds a Resolver. scratchDir holds spooled candidates while
// they are hashed; it must be writable.
func NewResolver(files repo.FileStore, blobs storage.Store, locks repo.Locker, scratchDir string) *Resolver {
	return &Resolver{
		files:      files,
		blobs:      blobs,
		locks:      locks,
		scratchDir: scratchDir,
	}
}

// spool is a candidate blob staged on local disk with its measured identity.
type spool struct {
	path string
	size int64
	hash string // lowercase hex sha-256
}

func (sp *spool) cleanup() {
	if sp != nil && sp.path != "" {
		_ = os.Remove(sp.path)
	}
}

// spoolSource drains the candidate once, hashing exactly the bytes that
// would be stored. The source is never re-read.
func (r *Resolver) spoolSource(src io.Reader) (*spool, error) {
	if err := os.MkdirAll(r.scratchDir, 0o755); err != nil {
		return nil, &StorageError{Op: "scratch", Err: err}
	}
	tmp, err := os.CreateTemp(r.scratchDir, "candidate-*")
	if err != nil {
		return nil, &StorageError{Op: "scratch", Err: err}
	}
	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return nil, &StorageError{Op: "spool", Err: err}
	}
	return &spool{
		path: tmp.Name(),
		size: size,
		hash: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// cleanLogicalName normalizes and validates the caller-supplied name.
func cleanLogicalName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", Validationf("logical name required")
	}
	// path traversal guard: the base name is the identity
	base := filepath.Base(filepath.ToSlash(name))
	if base == "" || base == "." || base == ".." || base != name {
		return "", Validationf("invalid logical name %q", name)
	}
	if len(name) > 255 {
		return "", Validationf("logical name too long")
	}
	return name, nil
}

func extensionOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// newStorageKey mints a fresh opaque key. The extension is carried for
// operator convenience only; lookups never parse it.
func newStorageKey(ext string) string {
	key := uuid.NewString()
	if ext != "" {
		key += "." + ext
	}
	return key
}

// Resolve streams the candidate once, then decides created / updated /
// duplicate against the current record for the logical name.
func (r *Resolver) Resolve(ctx context.Context, logicalName string, src io.Reader, uploadedBy string) (*Resolution, error) {
	name, err := cleanLogicalName(logicalName)
	if err != nil {
		return nil, err
	}
	sp, err := r.spoolSource(src)
	if err != nil {
		return nil, err
	}
	defer sp.cleanup()
	return r.resolveSpooled(ctx, name, sp, uploadedBy)
}

// resolveSpooled runs the decision for an already-spooled candidate. The
// caller keeps ownership of the spool file.
func (r *Resolver) resolveSpooled(ctx context.Context, name string, sp *spool, uploadedBy string) (*Resolution, error) {
	detected, err := mimetype.DetectFile(sp.path)
	mime := "application/octet-stream"
	if err == nil && detected != nil {
		mime = detected.String()
	}

	release, err := r.locks.Acquire(ctx, "file:"+name, resolveLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := r.files.GetByLogicalName(ctx, name)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		if existing.ContentHash == sp.hash {
			// identical content: the candidate never reaches the blob store
			return &Resolution{Outcome: OutcomeDuplicate, Record: existing}, nil
		}
		return r.commitUpdate(ctx, existing, sp, uploadedBy)
	}
	return r.commitCreate(ctx, name, sp, mime, uploadedBy)
}

func (r *Resolver) putSpool(ctx context.Context, key string, sp *spool) error {
	f, err := os.Open(sp.path)
	if err != nil {
		return &StorageError{Op: "open", Err: err}
	}
	defer f.Close()
	if err := r.blobs.Put(ctx, key, f, sp.size); err != nil {
		return &StorageError{Op: "write", Err: err}
	}
	return nil
}

func (r *Resolver) commitCreate(ctx context.Context, name string, sp *spool, mime, uploadedBy string) (*Resolution, error) {
	key := newStorageKey(extensionOf(name))
	if err := r.putSpool(ctx, key, sp); err != nil {
		return nil, err
	}
	record := &model.FileRecord{
		LogicalName: name,
		StorageKey:  key,
		ContentHash: sp.hash,
		Size:        sp.size,
		MimeType:    mime,
		Extension:   extensionOf(name),
		Version:     1,
		UploadedBy:  uploadedBy,
	}
	if err := r.files.Create(ctx, record); err != nil {
		_ = r.blobs.Remove(ctx, key)
		return nil, err
	}
	return &Resolution{Outcome: OutcomeCreated, Record: record}, nil
}

// commitUpdate writes the new blob, commits metadata, then deletes the old
// blob, in that order. Any crash in between leaves the record pointing at
// bytes that exist.
func (r *Resolver) commitUpdate(ctx context.Context, existing *model.FileRecord, sp *spool, uploadedBy string) (*Resolution, error) {
	detected, err := mimetype.DetectFile(sp.path)
	mime := "application/octet-stream"
	if err == nil && detected != nil {
		mime = detected.String()
	}

	oldKey := existing.StorageKey
	key := newStorageKey(existing.Extension)
	if err := r.putSpool(ctx, key, sp); err != nil {
		return nil, err
	}

	updated := *existing
	updated.StorageKey = key
	updated.ContentHash = sp.hash
	updated.Size = sp.size
	updated.MimeType = mime
	updated.Version = existing.Version + 1
	updated.UploadedBy = uploadedBy
	updated.UpdatedAt = time.Now()

	if err := r.files.UpdateContent(ctx, &updated); err != nil {
		_ = r.blobs.Remove(ctx, key)
		return nil, err
	}
	if err := r.blobs.Remove(ctx, oldKey); err != nil {
		// the record already points at the new blob; a stale old blob is
		// harmless and will surface in operator tooling
		log.Printf("remove superseded blob %s failed: %v", oldKey, err)
	}
	return &Resolution{Outcome: OutcomeUpdated, Record: &updated}, nil
}

// Delete removes a record and its blob, record first so readers cannot
// resolve a name whose bytes are already gone.
func (r *Resolver) Delete(ctx context.Context, logicalName string) error {
	name, err := cleanLogicalName(logicalName)
	if err != nil {
		return err
	}
	release, err := r.locks.Acquire(ctx, "file:"+name, resolveLockTTL)
	if err != nil {
		return err
	}
	defer release()

	record, err := r.files.GetByLogicalName(ctx, name)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := r.files.Delete(ctx, record.ID); err != nil {
		return err
	}
	if err := r.blobs.Remove(ctx, record.StorageKey); err != nil {
		log.Printf("remove blob %s failed: %v", record.StorageKey, err)
	}
	return nil
}
