package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a blob or chunk does not exist in the store.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored blob.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Store abstracts blob storage plus the per-upload chunk scratch area.
// Blob keys are opaque storage keys; chunk scratch is keyed by upload ID and
// chunk index and has no relationship to any blob until assembly.
type Store interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadSeekCloser, ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Remove(ctx context.Context, key string) error

	CreateSession(ctx context.Context, uploadID string) error
	PutChunk(ctx context.Context, uploadID string, index int, reader io.Reader, size int64) error
	OpenChunk(ctx context.Context, uploadID string, index int) (io.ReadCloser, error)
	// ReceivedIndices reports which chunk indices exist in the scratch area,
	// sorted ascending. The scratch listing is the only source of truth for
	// receipt state.
	ReceivedIndices(ctx context.Context, uploadID string) ([]int, error)
	RemoveSession(ctx context.Context, uploadID string) error
}
