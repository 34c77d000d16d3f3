package http

import (
	"github.com/gin-gonic/gin"

	"github.com/keyward/vouch/internal/metrics"
	"github.com/keyward/vouch/internal/origins"
	"github.com/keyward/vouch/ports"
	"github.com/keyward/vouch/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(anchors *service.AnchorService, authorize *service.AuthorizeService, authority ports.SigningAuthority, tracker *origins.Tracker, m *metrics.Metrics) *gin.Engine {
	router := gin.Default()

	// Create handlers
	handlers := NewHandlers(anchors, authorize, authority, tracker)

	router.GET("/healthz", handlers.Healthz)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	// Open routes
	v1 := router.Group("/v1")
	{
		v1.POST("/anchors", handlers.Register)
		v1.POST("/anchors/:anchor/login", handlers.Login)
		v1.GET("/stats", handlers.Stats)

		// The signing authority's service API, consumed by remote clients
		v1.POST("/delegation/prepare", handlers.PrepareDelegation)
		v1.POST("/delegation/get", handlers.GetDelegation)
	}

	// Session protected routes
	protected := router.Group("/v1")
	protected.Use(SessionMiddleware(anchors))
	{
		protected.POST("/authorize", handlers.Authorize)
		protected.GET("/anchors/:anchor", handlers.Info)
		protected.POST("/anchors/:anchor/devices", handlers.AddDevice)
		protected.PUT("/anchors/:anchor/devices", handlers.UpdateDevice)
		protected.DELETE("/anchors/:anchor/devices", handlers.RemoveDevice)
	}

	return router
}
