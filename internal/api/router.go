package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/tieba-pipeline/config"
	"github.com/d60-Lab/tieba-pipeline/internal/api/handler"
	"github.com/d60-Lab/tieba-pipeline/internal/api/middleware"
)

// NewRouter 组装路由。/health 免鉴权，/api 下按配置启用守卫
func NewRouter(cfg *config.Config, h *handler.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(middleware.Auth(cfg.Server.APIKey, cfg.Server.JWTSecret))
	{
		api.GET("/settings", h.GetSettings)
		api.GET("/stats", h.GetStats)

		api.GET("/threads", h.ListThreads)
		api.POST("/threads/batch", h.BatchUpdateThreads)

		api.GET("/relay-tasks", h.ListRelayTasks)

		api.POST("/jobs/crawl-threads", h.SubmitCrawl)
		api.POST("/jobs/download-images", h.SubmitDownloadImages)
		api.POST("/jobs/sync-collections", h.SubmitBackfill)
		api.POST("/jobs/relay-labeled", h.SubmitRelay)
		api.GET("/jobs/:id", h.GetJob)
		api.GET("/jobs", h.ListJobs)
	}

	return r
}
