package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"GoCDN/internal/dto"
	"GoCDN/internal/repo"
	"GoCDN/internal/service"
	"GoCDN/utils"
)

// FileHandler serves direct uploads, metadata, listing and deletion.
type FileHandler struct {
	resolver       *service.Resolver
	streamer       *service.Streamer
	lister         repo.FileStore
	maxUploadBytes int64
}

// NewFileHandler builds the file endpoints.
func NewFileHandler(resolver *service.Resolver, streamer *service.Streamer, lister repo.FileStore, maxUploadBytes int64) *FileHandler {
	return &FileHandler{
		resolver:       resolver,
		streamer:       streamer,
		lister:         lister,
		maxUploadBytes: maxUploadBytes,
	}
}

// Upload handles a whole-file multipart upload.
func (h *FileHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.Fail(c, http.StatusBadRequest, service.Validationf("file field required"))
		return
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		utils.Fail(c, http.StatusRequestEntityTooLarge, service.Validationf("file exceeds upload limit"))
		return
	}
	logicalName := strings.TrimSpace(c.PostForm("logical_name"))
	if logicalName == "" {
		logicalName = fileHeader.Filename
	}

	src, err := fileHeader.Open()
	if err != nil {
		failWith(c, err)
		return
	}
	defer src.Close()

	res, err := h.resolver.Resolve(c.Request.Context(), logicalName, src, utils.Identity(c))
	if err != nil {
		failWith(c, err)
		return
	}
	writeResolution(c, res, dto.UploadResponse{})
}

// writeResolution answers for a completed resolution: 201 for a new name,
// 200 for a content update, 409 when identical content already exists.
func writeResolution(c *gin.Context, res *service.Resolution, resp dto.UploadResponse) {
	resp.File = dto.NewFileInfo(res.Record)
	switch res.Outcome {
	case service.OutcomeCreated:
		resp.Status = "created"
		utils.SuccessStatus(c, http.StatusCreated, resp)
	case service.OutcomeUpdated:
		resp.Status = "updated"
		utils.Success(c, resp)
	default:
		resp.Status = "already_exists"
		utils.FailData(c, http.StatusConflict, "file already exists with identical content", resp)
	}
}

// Metadata returns the public record for a logical name.
func (h *FileHandler) Metadata(c *gin.Context) {
	record, err := h.lister.GetByLogicalName(c.Request.Context(), c.Param("name"))
	if err != nil {
		failWith(c, err)
		return
	}
	utils.Success(c, dto.NewFileInfo(record))
}

// Download streams blob bytes for GET and HEAD.
func (h *FileHandler) Download(c *gin.Context) {
	h.streamer.ServeBlob(c.Writer, c.Request, c.Param("name"))
}

// List returns a page of records.
func (h *FileHandler) List(c *gin.Context) {
	var req dto.ListFilesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, err)
		return
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PerPage <= 0 || req.PerPage > 100 {
		req.PerPage = 20
	}
	records, total, err := h.lister.List(c.Request.Context(), req.Page, req.PerPage, req.Search)
	if err != nil {
		failWith(c, err)
		return
	}
	files := make([]dto.FileInfo, 0, len(records))
	for i := range records {
		files = append(files, dto.NewFileInfo(&records[i]))
	}
	utils.Success(c, dto.ListFilesResponse{
		Files:   files,
		Total:   total,
		Page:    req.Page,
		PerPage: req.PerPage,
	})
}

// Delete removes a logical name and its blob.
func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.resolver.Delete(c.Request.Context(), c.Param("name")); err != nil {
		failWith(c, err)
		return
	}
	utils.Success(c, gin.H{"deleted": true})
}
