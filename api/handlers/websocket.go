package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// WebSocketHandler attaches browser UI clients to the live session.
type WebSocketHandler struct {
	bridge http.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler around the UI bridge.
func NewWebSocketHandler(bridge http.Handler) *WebSocketHandler {
	return &WebSocketHandler{bridge: bridge}
}

// Attach handles GET /ws/ui - upgrades to a UI bridge connection.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	if !c.IsWebsocket() {
		sendError(c, http.StatusBadRequest, CodeValidation, "WebSocket upgrade required")
		return
	}
	h.bridge.ServeHTTP(c.Writer, c.Request)
}

// RegisterRoutes registers the WebSocket route on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ui", h.Attach)
}
