package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoCDN/internal/repo"
	"GoCDN/internal/storage"
)

func readBlob(t *testing.T, blobs *storage.DiskStore, key string) string {
	t.Helper()
	obj, _, err := blobs.Open(context.Background(), key)
	require.NoError(t, err)
	defer obj.Close()
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	return string(data)
}

func TestResolveCreatesNewRecord(t *testing.T) {
	resolver, files, blobs := newTestResolver(t)

	content := "hello world"
	res, err := resolver.Resolve(context.Background(), "greeting.txt", strings.NewReader(content), "alice")
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, 1, res.Record.Version)
	assert.Equal(t, int64(len(content)), res.Record.Size)
	assert.Equal(t, "txt", res.Record.Extension)
	assert.Equal(t, "alice", res.Record.UploadedBy)

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), res.Record.ContentHash)

	stored, err := files.GetByLogicalName(context.Background(), "greeting.txt")
	require.NoError(t, err)
	assert.NotEqual(t, "greeting.txt", stored.StorageKey)
	assert.Equal(t, content, readBlob(t, blobs, stored.StorageKey))
}

func TestResolveDuplicateContentIsNoop(t *testing.T) {
	resolver, files, _ := newTestResolver(t)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "doc.pdf", strings.NewReader("same bytes"), "alice")
	require.NoError(t, err)

	second, err := resolver.Resolve(ctx, "doc.pdf", strings.NewReader("same bytes"), "bob")
	require.NoError(t, err)

	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Equal(t, 1, second.Record.Version)

	// the duplicate upload must not change the stored record
	stored, err := files.GetByLogicalName(ctx, "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, first.Record.StorageKey, stored.StorageKey)
	assert.Equal(t, "alice", stored.UploadedBy)
}

func TestResolveUpdateBumpsVersionAndRemovesOldBlob(t *testing.T) {
	resolver, files, blobs := newTestResolver(t)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "report.csv", strings.NewReader("v1 content"), "alice")
	require.NoError(t, err)
	oldKey := first.Record.StorageKey

	second, err := resolver.Resolve(ctx, "report.csv", strings.NewReader("v2 content, different"), "alice")
	require.NoError(t, err)

	assert.Equal(t, OutcomeUpdated, second.Outcome)
	assert.Equal(t, 2, second.Record.Version)
	assert.NotEqual(t, oldKey, second.Record.StorageKey)

	stored, err := files.GetByLogicalName(ctx, "report.csv")
	require.NoError(t, err)
	assert.Equal(t, "v2 content, different", readBlob(t, blobs, stored.StorageKey))

	_, _, err = blobs.Open(ctx, oldKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestResolveCreateRollsBackBlobOnMetadataFailure(t *testing.T) {
	blobRoot := t.TempDir()
	blobs, err := storage.NewDiskStore(blobRoot)
	require.NoError(t, err)
	files := newMemFiles()
	files.failCreate = true
	resolver := NewResolver(files, blobs, repo.NewLocalLocker(), t.TempDir())

	_, err = resolver.Resolve(context.Background(), "fail.bin", strings.NewReader("data"), "")
	require.Error(t, err)

	// no orphan blob may survive the failed commit
	entries, err := os.ReadDir(filepath.Join(blobRoot, "blobs"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, getErr := files.GetByLogicalName(context.Background(), "fail.bin")
	assert.Error(t, getErr)
}

func TestResolveUpdateKeepsOldRecordOnMetadataFailure(t *testing.T) {
	resolver, files, blobs := newTestResolver(t)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "keep.txt", strings.NewReader("original"), "")
	require.NoError(t, err)

	files.failUpdate = true
	_, err = resolver.Resolve(ctx, "keep.txt", strings.NewReader("replacement"), "")
	require.Error(t, err)

	stored, err := files.GetByLogicalName(ctx, "keep.txt")
	require.NoError(t, err)
	assert.Equal(t, first.Record.StorageKey, stored.StorageKey)
	assert.Equal(t, "original", readBlob(t, blobs, stored.StorageKey))
}

func TestResolveRejectsBadLogicalNames(t *testing.T) {
	resolver, _, _ := newTestResolver(t)
	ctx := context.Background()

	for _, name := range []string{"", " ", "..", "a/b.txt", "../evil.txt", strings.Repeat("x", 300)} {
		_, err := resolver.Resolve(ctx, name, strings.NewReader("x"), "")
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, "name %q", name)
	}
}

func TestDeleteRemovesRecordAndBlob(t *testing.T) {
	resolver, files, blobs := newTestResolver(t)
	ctx := context.Background()

	res, err := resolver.Resolve(ctx, "gone.txt", strings.NewReader("bytes"), "")
	require.NoError(t, err)

	require.NoError(t, resolver.Delete(ctx, "gone.txt"))

	_, err = files.GetByLogicalName(ctx, "gone.txt")
	assert.Error(t, err)
	_, _, err = blobs.Open(ctx, res.Record.StorageKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, resolver.Delete(ctx, "gone.txt"), ErrNotFound)
}
