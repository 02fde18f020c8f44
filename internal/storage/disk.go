package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DiskStore keeps blobs in a flat directory and chunk scratch in one
// directory per upload ID. Blob writes go through a temp file and rename so
// a crash never leaves a half-written blob under a live key.
type DiskStore struct {
	blobRoot    string
	sessionRoot string
}

// NewDiskStore creates the blob and session directories if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	blobRoot := filepath.Join(root, "blobs")
	sessionRoot := filepath.Join(root, "sessions")
	if err := os.MkdirAll(blobRoot, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(sessionRoot, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{blobRoot: blobRoot, sessionRoot: sessionRoot}, nil
}

// validName rejects anything that could escape the store directory. Keys and
// upload IDs are generated UUIDs, so the check only has to be strict, not
// permissive.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\")
}

func (s *DiskStore) blobPath(key string) (string, error) {
	if !validName(key) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.blobRoot, key), nil
}

func (s *DiskStore) sessionPath(uploadID string) (string, error) {
	if !validName(uploadID) {
		return "", fmt.Errorf("invalid upload id %q", uploadID)
	}
	return filepath.Join(s.sessionRoot, uploadID), nil
}

// Put writes a blob atomically: temp file in the same directory, then rename.
func (s *DiskStore) Put(ctx context.Context, key string, reader io.Reader, size int64) error {
	dest, err := s.blobPath(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.blobRoot, ".put-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	written, err := io.Copy(tmp, reader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("short write: got %d bytes, want %d", written, size)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Open returns a seekable reader over a blob.
func (s *DiskStore) Open(ctx context.Context, key string) (io.ReadSeekCloser, ObjectInfo, error) {
	path, err := s.blobPath(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ObjectInfo{}, err
	}
	return f, ObjectInfo{Key: key, Size: stat.Size()}, nil
}

// Stat reports a blob's size without opening it for reading.
func (s *DiskStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	path, err := s.blobPath(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectInfo{}, ErrNotFound
		}
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: stat.Size()}, nil
}

// Remove deletes a blob. Removing a missing blob is not an error.
func (s *DiskStore) Remove(ctx context.Context, key string) error {
	path, err := s.blobPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CreateSession materializes the scratch directory for an upload.
func (s *DiskStore) CreateSession(ctx context.Context, uploadID string) error {
	path, err := s.sessionPath(uploadID)
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0o755)
}

// PutChunk stores one chunk under its index. Re-submitting the same index
// overwrites cleanly via the same temp-and-rename sequence as blobs.
func (s *DiskStore) PutChunk(ctx context.Context, uploadID string, index int, reader io.Reader, size int64) error {
	dir, err := s.sessionPath(uploadID)
	if err != nil {
		return err
	}
	if index < 0 {
		return fmt.Errorf("invalid chunk index %d", index)
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	tmp, err := os.CreateTemp(dir, ".chunk-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	written, err := io.Copy(tmp, reader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("short write: got %d bytes, want %d", written, size)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(dir, strconv.Itoa(index))); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// OpenChunk opens one received chunk for reading.
func (s *DiskStore) OpenChunk(ctx context.Context, uploadID string, index int) (io.ReadCloser, error) {
	dir, err := s.sessionPath(uploadID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(dir, strconv.Itoa(index)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// ReceivedIndices derives the set of received chunks from the directory
// listing.
func (s *DiskStore) ReceivedIndices(ctx context.Context, uploadID string) ([]int, error) {
	dir, err := s.sessionPath(uploadID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	indices := make([]int, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		index, err := strconv.Atoi(entry.Name())
		if err != nil || index < 0 {
			// in-flight temp files and anything else that is not a chunk
			continue
		}
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices, nil
}

// RemoveSession deletes the whole scratch directory for an upload.
func (s *DiskStore) RemoveSession(ctx context.Context, uploadID string) error {
	dir, err := s.sessionPath(uploadID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}
