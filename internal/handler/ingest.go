package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"GoCDN/internal/dto"
	"GoCDN/internal/service"
	"GoCDN/internal/task"
	"GoCDN/utils"
)

// IngestHandler serves remote-fetch upload tasks.
type IngestHandler struct {
	manager *task.Manager
}

// NewIngestHandler builds the ingest endpoints.
func NewIngestHandler(manager *task.Manager) *IngestHandler {
	return &IngestHandler{manager: manager}
}

// CreateTask accepts a source URL and enqueues the fetch.
func (h *IngestHandler) CreateTask(c *gin.Context) {
	var req dto.URLUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, service.Validationf("invalid request: %v", err))
		return
	}
	t, err := h.manager.Create(c.Request.Context(), req.LogicalName, req.URL, utils.Identity(c))
	if err != nil {
		failWith(c, err)
		return
	}
	utils.SuccessStatus(c, http.StatusAccepted, dto.NewIngestTaskResponse(t))
}

// ListTasks returns recent tasks, newest first.
func (h *IngestHandler) ListTasks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	tasks, err := h.manager.List(c.Request.Context(), limit)
	if err != nil {
		failWith(c, err)
		return
	}
	out := make([]dto.IngestTaskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, dto.NewIngestTaskResponse(&tasks[i]))
	}
	utils.Success(c, out)
}
