package dto

import (
	"time"

	"GoCDN/model"
	"GoCDN/utils"
)

// FileInfo is the public view of a file record.
type FileInfo struct {
	ID            uint64    `json:"id"`
	LogicalName   string    `json:"logical_name"`
	ContentHash   string    `json:"content_hash"`
	Size          int64     `json:"size"`
	SizeHuman     string    `json:"size_human"`
	MimeType      string    `json:"mime_type"`
	Extension     string    `json:"extension"`
	Version       int       `json:"version"`
	DownloadCount uint64    `json:"download_count"`
	UploadedBy    string    `json:"uploaded_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	MetadataURL   string    `json:"metadata_url"`
	DownloadURL   string    `json:"download_url"`
}

// NewFileInfo builds the public view of a record.
func NewFileInfo(record *model.FileRecord) FileInfo {
	return FileInfo{
		ID:            record.ID,
		LogicalName:   record.LogicalName,
		ContentHash:   record.ContentHash,
		Size:          record.Size,
		SizeHuman:     utils.FormatBytes(record.Size),
		MimeType:      record.MimeType,
		Extension:     record.Extension,
		Version:       record.Version,
		DownloadCount: record.DownloadCount,
		UploadedBy:    record.UploadedBy,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
		MetadataURL:   "/api/files/metadata/" + record.LogicalName,
		DownloadURL:   "/api/files/download/" + record.LogicalName,
	}
}

// UploadResponse is the answer to a direct or finished chunked upload.
type UploadResponse struct {
	Status string   `json:"status"` // created | updated | already_exists
	File   FileInfo `json:"file"`

	// set only for chunked uploads
	Chunked bool `json:"chunked,omitempty"`
	Chunks  int  `json:"chunks,omitempty"`
}

type ChunkStartResponse struct {
	UploadID string `json:"upload_id"`
}

type ChunkProgressResponse struct {
	UploadID      string `json:"upload_id"`
	ReceivedCount int    `json:"received_count"`
	ChunkCount    int    `json:"chunk_count"`
	Complete      bool   `json:"complete"`
}

type ListFilesResponse struct {
	Files   []FileInfo `json:"files"`
	Total   int64      `json:"total"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
}

type IngestTaskResponse struct {
	ID          uint64     `json:"id"`
	LogicalName string     `json:"logical_name"`
	Source      string     `json:"source"`
	Status      string     `json:"status"`
	ErrorMsg    string     `json:"error_msg,omitempty"`
	RetryCount  int        `json:"retry_count"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// NewIngestTaskResponse builds the public view of an ingest task.
func NewIngestTaskResponse(task *model.IngestTask) IngestTaskResponse {
	return IngestTaskResponse{
		ID:          task.ID,
		LogicalName: task.LogicalName,
		Source:      task.Source,
		Status:      task.Status,
		ErrorMsg:    task.ErrorMsg,
		RetryCount:  task.RetryCount,
		CreatedAt:   task.CreatedAt,
		FinishedAt:  task.FinishedAt,
	}
}
