package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/storerouter/internal/api/admin"
	"github.com/liliang-cn/storerouter/internal/api/chat"
	"github.com/liliang-cn/storerouter/internal/api/middleware"
	"go.uber.org/zap"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string
	UploadDir    string
}

// SetupRouter sets up the Gin router
func SetupRouter(
	pipeline chat.Pipeline,
	adminService admin.Service,
	exports chat.ExportOpener,
	cfg RouterConfig,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger.Named("http")))
	r.Use(middleware.CORS(cfg.AllowOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Chat transport webhook (requires API key)
	chatHandler := chat.NewHandler(pipeline, exports, cfg.UploadDir, logger)
	chatGroup := r.Group("/api/chat")
	chatGroup.Use(middleware.Auth(cfg.APIKey))
	chatHandler.RegisterRoutes(chatGroup)

	// Admin API (requires API key)
	adminHandler := admin.NewHandler(adminService)
	adminGroup := r.Group("/api/admin")
	adminGroup.Use(middleware.Auth(cfg.APIKey))
	adminHandler.RegisterRoutes(adminGroup)

	return r
}
