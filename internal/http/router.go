package http

import (
	"net/http"

	"videogate-backend/internal/common/config"
	"videogate-backend/internal/common/middleware"
	adhttp "videogate-backend/internal/features/adsession/delivery/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the web surface: ad verification endpoints and health.
func NewRouter(cfg *config.Config, adHandler *adhttp.AdSessionHandler) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
	)
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.Server.Origin},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	adHandler.RegisterRoutes(router)

	return router
}
