package router

import (
	"github.com/gin-gonic/gin"

	"GoCDN/internal/handler"
	"GoCDN/utils"
)

// Handlers is everything the router wires.
type Handlers struct {
	Files     *handler.FileHandler
	Chunks    *handler.ChunkHandler
	Ingest    *handler.IngestHandler
	JWTSecret string
}

// InitRouter builds API routes. Download and metadata stay readable without
// a token; everything that writes requires one with the right permission.
func InitRouter(h Handlers) *gin.Engine {
	r := gin.Default()
	r.Use(utils.CORSMiddleware())

	api := r.Group("/api")
	{
		files := api.Group("/files")
		{
			files.GET("/metadata/:name", h.Files.Metadata)
			files.GET("/download/:name", h.Files.Download)
			files.HEAD("/download/:name", h.Files.Download)
		}

		auth := api.Group("")
		auth.Use(utils.AuthMiddleware(h.JWTSecret))

		upload := auth.Group("")
		upload.Use(utils.RequirePermission(utils.PermUpload))
		{
			upload.POST("/upload", h.Files.Upload)
			upload.POST("/upload/url", h.Ingest.CreateTask)
			upload.GET("/upload/tasks", h.Ingest.ListTasks)
			upload.DELETE("/files/:name", h.Files.Delete)

			chunk := upload.Group("/chunk")
			{
				chunk.POST("/start", h.Chunks.Start)
				chunk.POST("/upload", h.Chunks.Upload)
				chunk.POST("/finish", h.Chunks.Finish)
				chunk.DELETE("/:upload_id", h.Chunks.Abort)
			}
		}

		meta := auth.Group("")
		meta.Use(utils.RequirePermission(utils.PermMetadata))
		{
			meta.GET("/files", h.Files.List)
		}
	}
	return r
}
