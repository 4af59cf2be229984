package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sheetlens/internal"
	"sheetlens/internal/dataset"
)

// RouterConfig holds what the router needs from the container
type RouterConfig struct {
	Processor   *dataset.Processor
	Hub         *SSEHub
	MaxFileSize int64
	GinMode     string
	Logger      *internal.Logger
}

// NewRouter builds the gin engine with every route mounted
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))
	// multipart parts beyond this spill to temp files
	router.MaxMultipartMemory = cfg.MaxFileSize

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":             "ok",
			"pipelines_inflight": cfg.Processor.InFlight(),
		})
	})

	files := NewFileHandler(cfg.Processor, cfg.MaxFileSize, logger)
	api := router.Group("/api/files", RequireActor())
	{
		api.POST("/upload", files.Upload)
		api.GET("", files.List)
		api.GET("/stats", files.Stats)
		if cfg.Hub != nil {
			api.GET("/events", cfg.Hub.HandleSSE)
		}
		api.GET("/:id", files.Get)
		api.GET("/:id/data", files.Data)
		api.POST("/:id/insights", files.RegenerateInsight)
		api.DELETE("/:id", files.Delete)
	}

	return router
}
