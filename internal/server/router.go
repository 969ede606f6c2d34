package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"speech-presenter/internal/platform/logger"
	"speech-presenter/internal/platform/metrics"
)

// SetupRouter creates and configures the Gin router. m may be nil.
func SetupRouter(api *API, feed *Feed, log *slog.Logger, m *metrics.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	if log != nil {
		r.Use(logger.RequestLogger(log))
	}
	if m != nil {
		r.Use(metrics.RequestMiddleware(m))
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	r.GET("/status", api.Status)

	// Playback control endpoints
	playback := r.Group("/playback")
	{
		playback.POST("/toggle", api.Toggle)
		playback.POST("/next", api.Next)
		playback.POST("/prev", api.Prev)
	}

	// Keyboard events from the presenter UI
	r.POST("/keys", api.Keys)

	hub := r.Group("/hub")
	{
		hub.POST("/connect", api.HubConnect)
		hub.POST("/disconnect", api.HubDisconnect)
	}

	if feed != nil {
		r.GET("/events", feed.ServeWS)
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

// corsMiddleware handles CORS for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
