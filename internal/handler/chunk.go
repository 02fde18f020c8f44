package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"GoCDN/internal/dto"
	"GoCDN/internal/service"
	"GoCDN/utils"
)

// ChunkHandler serves the chunked upload session endpoints.
type ChunkHandler struct {
	chunks         *service.ChunkManager
	maxUploadBytes int64
}

// NewChunkHandler builds the chunk endpoints.
func NewChunkHandler(chunks *service.ChunkManager, maxUploadBytes int64) *ChunkHandler {
	return &ChunkHandler{chunks: chunks, maxUploadBytes: maxUploadBytes}
}

// Start opens a new upload session.
func (h *ChunkHandler) Start(c *gin.Context) {
	var req dto.ChunkStartRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, service.Validationf("logical_name required"))
		return
	}
	uploadID, err := h.chunks.Start(c.Request.Context(), req.LogicalName, utils.Identity(c))
	if err != nil {
		failWith(c, err)
		return
	}
	utils.SuccessStatus(c, http.StatusCreated, dto.ChunkStartResponse{UploadID: uploadID})
}

// Upload stages one chunk from a multipart form.
func (h *ChunkHandler) Upload(c *gin.Context) {
	req, err := h.bindUpload(c)
	if err != nil {
		utils.Fail(c, http.StatusBadRequest, err)
		return
	}
	if h.maxUploadBytes > 0 && req.File.Size > h.maxUploadBytes {
		utils.Fail(c, http.StatusRequestEntityTooLarge, service.Validationf("chunk exceeds upload limit"))
		return
	}

	src, err := req.File.Open()
	if err != nil {
		failWith(c, err)
		return
	}
	defer src.Close()

	progress, err := h.chunks.Upload(
		c.Request.Context(),
		req.UploadID,
		req.ChunkIndex,
		req.ChunkCount,
		req.TotalSize,
		req.ChunkHash,
		src,
		req.File.Size,
	)
	if err != nil {
		failWith(c, err)
		return
	}
	utils.Success(c, dto.ChunkProgressResponse{
		UploadID:      progress.UploadID,
		ReceivedCount: progress.ReceivedCount,
		ChunkCount:    progress.ChunkCount,
		Complete:      progress.Complete,
	})
}

func (h *ChunkHandler) bindUpload(c *gin.Context) (*dto.ChunkUploadRequest, error) {
	file, err := c.FormFile("chunk")
	if err != nil {
		return nil, service.Validationf("chunk field required")
	}
	uploadID := strings.TrimSpace(c.PostForm("upload_id"))
	if uploadID == "" {
		return nil, service.Validationf("upload_id required")
	}
	index, err := strconv.Atoi(c.PostForm("chunk_index"))
	if err != nil {
		return nil, service.Validationf("invalid chunk_index")
	}
	count, err := strconv.Atoi(c.PostForm("chunk_count"))
	if err != nil {
		return nil, service.Validationf("invalid chunk_count")
	}
	totalSize, err := strconv.ParseInt(c.PostForm("total_size"), 10, 64)
	if err != nil {
		return nil, service.Validationf("invalid total_size")
	}
	return &dto.ChunkUploadRequest{
		UploadID:   uploadID,
		ChunkIndex: index,
		ChunkCount: count,
		TotalSize:  totalSize,
		ChunkHash:  strings.TrimSpace(c.PostForm("chunk_hash")),
		File:       file,
	}, nil
}

// Finish assembles the session and resolves the result.
func (h *ChunkHandler) Finish(c *gin.Context) {
	var req dto.ChunkFinishRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, service.Validationf("invalid finish request: %v", err))
		return
	}
	res, err := h.chunks.Finish(
		c.Request.Context(),
		req.UploadID,
		req.ChunkCount,
		req.TotalSize,
		req.FileHash,
	)
	if err != nil {
		failWith(c, err)
		return
	}
	writeResolution(c, res, dto.UploadResponse{Chunked: true, Chunks: req.ChunkCount})
}

// Abort discards a session.
func (h *ChunkHandler) Abort(c *gin.Context) {
	if err := h.chunks.Abort(c.Request.Context(), c.Param("upload_id")); err != nil {
		failWith(c, err)
		return
	}
	utils.Success(c, gin.H{"aborted": true})
}
