// Package api assembles the HTTP surface of the chat bridge.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/remote-agent-terminal/agentchat/api/handlers"
	"github.com/remote-agent-terminal/agentchat/internal/observability"
)

// Options wires the router to its collaborators. Transcripts and Bridge are
// optional; their routes are omitted when nil.
type Options struct {
	Session     handlers.LiveSession
	Transcripts handlers.TranscriptReader
	Bridge      http.Handler
	RecordDir   string
	Logger      zerolog.Logger
}

// NewRouter builds the gin engine.
func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(opts.Logger))
	r.Use(observability.RequestMetrics())

	// Enable CORS for development
	r.Use(corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"session": opts.Session.ID(),
		})
	})
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	api := r.Group("/api")
	{
		handlers.NewChatHandler(opts.Session).RegisterRoutes(api)
		if opts.Transcripts != nil {
			handlers.NewSessionHandler(opts.Transcripts, opts.RecordDir).RegisterRoutes(api)
		}
	}

	if opts.Bridge != nil {
		handlers.NewWebSocketHandler(opts.Bridge).RegisterRoutes(r.Group("/ws"))
	}

	return r
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
