package rest

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler) {
	// Health check endpoint (no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Event ingestion, JSON channel
		v1.POST("/events", handler.SubmitEvent)

		// Event ingestion, image-beacon channel (email and other
		// JS-incapable contexts)
		v1.GET("/events/pixel.gif", handler.TrackPixel)

		// Aggregate read views for external dashboards
		v1.GET("/pitches/:pitch_id/supporters", handler.ListSupporterPerformance)
		v1.GET("/pitches/:pitch_id/chains", handler.ListAttributionChains)
	}
}
