package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/mossy-p/meet-signaling/config"
	"github.com/mossy-p/meet-signaling/internal/middleware"
)

// NewRouter wires every endpoint onto a gin engine.
func NewRouter(cfg *config.Config, h *Handlers) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Fresh meeting link; the page itself is served elsewhere
	router.GET("/new", h.NewRoom)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/auth/login", Login(cfg.JWTSecret))
		apiGroup.POST("/rooms", middleware.JWTAuth(cfg.JWTSecret), h.CreateRoom)
		apiGroup.GET("/rooms/:roomId", h.GetRoom)
		apiGroup.DELETE("/rooms/:roomId", middleware.JWTAuth(cfg.JWTSecret), h.DeleteRoom)
	}

	// One long-lived signaling connection per participant
	router.GET("/ws", h.HandleSignaling)

	return router
}
