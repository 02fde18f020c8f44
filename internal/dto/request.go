package dto

import "mime/multipart"

type ChunkStartRequest struct {
	LogicalName string `json:"logical_name" form:"logical_name" binding:"required"`
}

type ChunkUploadRequest struct {
	UploadID   string
	ChunkIndex int
	ChunkCount int
	TotalSize  int64
	ChunkHash  string
	File       *multipart.FileHeader
}

type ChunkFinishRequest struct {
	UploadID   string `json:"upload_id" form:"upload_id" binding:"required"`
	ChunkCount int    `json:"chunk_count" form:"chunk_count" binding:"required"`
	TotalSize  int64  `json:"total_size" form:"total_size"`
	FileHash   string `json:"file_hash" form:"file_hash"`
}

type URLUploadRequest struct {
	URL         string `json:"url" binding:"required"`
	LogicalName string `json:"logical_name" binding:"required"`
}

type ListFilesRequest struct {
	Page    int    `form:"page"`
	PerPage int    `form:"per_page"`
	Search  string `form:"search"`
}
