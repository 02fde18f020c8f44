package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoCDN/internal/repo"
	"GoCDN/internal/service"
	"GoCDN/internal/storage"
	"GoCDN/model"
	"GoCDN/utils"
)

const testSecret = "handler-test-secret"

// memFiles is an in-memory FileStore sufficient for the HTTP tests.
type memFiles struct {
	mu      sync.Mutex
	nextID  uint64
	records map[string]*model.FileRecord
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

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	blobs, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	files := newMemFiles()
	resolver := service.NewResolver(files, blobs, repo.NewLocalLocker(), t.TempDir())
	streamer := service.NewStreamer(files, blobs, 64, time.Hour)

	fileHandler := NewFileHandler(resolver, streamer, files, 1<<20)

	r := gin.New()
	api := r.Group("/api")
	api.GET("/files/metadata/:name", fileHandler.Metadata)
	api.GET("/files/download/:name", fileHandler.Download)
	api.HEAD("/files/download/:name", fileHandler.Download)

	auth := api.Group("")
	auth.Use(utils.AuthMiddleware(testSecret))
	upload := auth.Group("")
	upload.Use(utils.RequirePermission(utils.PermUpload))
	upload.POST("/upload", fileHandler.Upload)
	upload.DELETE("/files/:name", fileHandler.Delete)

	meta := auth.Group("")
	meta.Use(utils.RequirePermission(utils.PermMetadata))
	meta.GET("/files", fileHandler.List)

	return r
}

func uploadToken(t *testing.T, permissions ...string) string {
	t.Helper()
	token, err := utils.GenerateToken(testSecret, "tester", permissions, time.Hour)
	require.NoError(t, err)
	return token
}

func multipartUpload(t *testing.T, logicalName, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", logicalName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("logical_name", logicalName))
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func doUpload(t *testing.T, r *gin.Engine, token, logicalName, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, logicalName, content)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func envelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestUploadLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	token := uploadToken(t, utils.PermUpload)

	w := doUpload(t, r, token, "notes.txt", "first version")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := envelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "created", data["status"])
	file := data["file"].(map[string]interface{})
	assert.Equal(t, "notes.txt", file["logical_name"])
	assert.Equal(t, float64(1), file["version"])
	assert.Equal(t, "/api/files/download/notes.txt", file["download_url"])

	// identical content refuses with the existing record
	w = doUpload(t, r, token, "notes.txt", "first version")
	require.Equal(t, http.StatusConflict, w.Code)
	data = envelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "already_exists", data["status"])

	// changed content updates in place
	w = doUpload(t, r, token, "notes.txt", "second version")
	require.Equal(t, http.StatusOK, w.Code)
	data = envelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "updated", data["status"])
	file = data["file"].(map[string]interface{})
	assert.Equal(t, float64(2), file["version"])
}

func TestUploadRequiresTokenAndPermission(t *testing.T) {
	r := newTestRouter(t)

	body, contentType := multipartUpload(t, "x.txt", "data")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// token without the upload permission
	w = doUpload(t, r, uploadToken(t, utils.PermMetadata), "x.txt", "data")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMetadataAndDownloadOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	token := uploadToken(t, utils.PermUpload)

	w := doUpload(t, r, token, "pic.png", "not really a png")
	require.Equal(t, http.StatusCreated, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/files/metadata/pic.png", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	data := envelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "pic.png", data["logical_name"])
	assert.NotEmpty(t, data["content_hash"])
	assert.NotEmpty(t, data["size_human"])

	req = httptest.NewRequest(http.MethodGet, "/api/files/download/pic.png", nil)
	req.Header.Set("Range", "bytes=0-2")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "not", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/files/metadata/absent.png", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	token := uploadToken(t, utils.PermUpload)

	w := doUpload(t, r, token, "temp.bin", "bytes")
	require.Equal(t, http.StatusCreated, w.Code)

	req := httptest.NewRequest(http.MethodDelete, "/api/files/temp.bin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/files/metadata/temp.bin", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListFilesOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	uploader := uploadToken(t, utils.PermUpload)
	reader := uploadToken(t, utils.PermMetadata)

	for i := 0; i < 3; i++ {
		w := doUpload(t, r, uploader, fmt.Sprintf("file-%d.txt", i), fmt.Sprintf("content %d", i))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/files?per_page=10", nil)
	req.Header.Set("Authorization", "Bearer "+reader)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	data := envelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["total"])
	assert.Len(t, data["files"], 3)
}
