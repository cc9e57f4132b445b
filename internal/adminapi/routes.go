package adminapi

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/wavecast/netio/internal/adminapi/handlers"
	"github.com/wavecast/netio/internal/adminapi/middleware"

	_ "github.com/wavecast/netio/internal/adminapi/docs" // swagger docs
)

// RegisterRoutes wires the admin API's routes onto engine.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, apiKey string) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	if apiKey != "" {
		api.Use(middleware.RequireAPIKey(apiKey))
	}

	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)
}
