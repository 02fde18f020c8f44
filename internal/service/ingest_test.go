package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoCDN/internal/repo"
	"GoCDN/internal/storage"
)

func newTestIngester(t *testing.T, opts IngestOptions) (*Ingester, *memFiles) {
	t.Helper()
	blobs, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	files := newMemFiles()
	resolver := NewResolver(files, blobs, repo.NewLocalLocker(), t.TempDir())
	return NewIngester(resolver, opts), files
}

func TestValidateSourceURLBlocksUnsafeTargets(t *testing.T) {
	ingester, _ := newTestIngester(t, IngestOptions{})

	for _, raw := range []string{
		"ftp://example.com/file",
		"file:///etc/passwd",
		"http://",
		"http://localhost/secret",
		"http://foo.local/x",
		"http://127.0.0.1/x",
		"http://10.0.0.5/x",
		"http://192.168.1.1/x",
		"http://169.254.169.254/latest/meta-data",
		"http://[::1]/x",
		"not a url at all ://",
	} {
		err := ingester.ValidateSourceURL(raw)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, "url %q", raw)
	}
}

func TestValidateSourceURLAllowPrivateOverride(t *testing.T) {
	ingester, _ := newTestIngester(t, IngestOptions{AllowPrivate: true})
	assert.NoError(t, ingester.ValidateSourceURL("http://127.0.0.1:8080/file.bin"))
}

func TestValidateSourceURLHostAllowlist(t *testing.T) {
	ingester, _ := newTestIngester(t, IngestOptions{
		AllowPrivate: true,
		AllowedHosts: []string{"cdn.example.com", ".trusted.org"},
	})

	assert.NoError(t, ingester.ValidateSourceURL("https://cdn.example.com/a.zip"))
	assert.NoError(t, ingester.ValidateSourceURL("https://files.trusted.org/a.zip"))

	var verr *ValidationError
	assert.ErrorAs(t, ingester.ValidateSourceURL("https://evil.example.net/a.zip"), &verr)
}

func TestFetchStoresRemoteContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "remote payload")
	}))
	defer server.Close()

	ingester, files := newTestIngester(t, IngestOptions{AllowPrivate: true})

	res, err := ingester.Fetch(context.Background(), "remote.bin", server.URL, "worker")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, int64(len("remote payload")), res.Record.Size)

	_, err = files.GetByLogicalName(context.Background(), "remote.bin")
	assert.NoError(t, err)
}

func TestFetchPropagatesUpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	ingester, _ := newTestIngester(t, IngestOptions{AllowPrivate: true})

	_, err := ingester.Fetch(context.Background(), "missing.bin", server.URL, "")
	var httpErr *HTTPStatusError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestFetchEnforcesSizeCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 1024))
	}))
	defer server.Close()

	ingester, files := newTestIngester(t, IngestOptions{AllowPrivate: true, MaxBytes: 100})

	_, err := ingester.Fetch(context.Background(), "huge.bin", server.URL, "")
	require.Error(t, err)

	_, err = files.GetByLogicalName(context.Background(), "huge.bin")
	assert.Error(t, err)
}
