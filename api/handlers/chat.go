package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/agentchat/internal/buffer"
	"github.com/remote-agent-terminal/agentchat/internal/model"
	"github.com/remote-agent-terminal/agentchat/internal/session"
)

// LiveSession is the running chat session served by the API.
type LiveSession interface {
	ID() string
	Submit(text string) error
	State() session.State
	RecentFrames(n int) []buffer.Frame
}

// ChatHandler handles HTTP requests against the live session.
type ChatHandler struct {
	session LiveSession
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(sess LiveSession) *ChatHandler {
	return &ChatHandler{session: sess}
}

// SubmitResponse is returned for an accepted submission. MessageID is the
// assistant placeholder the reply streams into.
type SubmitResponse struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
	Accepted  bool   `json:"accepted"`
}

// State handles GET /api/state - returns the session snapshot.
func (h *ChatHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.State())
}

// Submit handles POST /api/messages - submits a user turn.
func (h *ChatHandler) Submit(c *gin.Context) {
	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}

	if err := h.session.Submit(req.Message); err != nil {
		switch {
		case errors.Is(err, model.ErrTurnInFlight):
			sendError(c, http.StatusConflict, CodeAgentBusy, "A response is still in progress")
		case errors.Is(err, model.ErrBlocked):
			sendError(c, http.StatusServiceUnavailable, CodeNotConnected, "Agent connection is not available")
		default:
			sendError(c, http.StatusInternalServerError, CodeInternal, "Failed to submit message: "+err.Error())
		}
		return
	}

	resp := SubmitResponse{
		SessionID: h.session.ID(),
		Accepted:  true,
	}
	if conv := h.session.State().Conversation; len(conv) > 0 {
		resp.MessageID = conv[len(conv)-1].ID
	}
	c.JSON(http.StatusAccepted, resp)
}

// Frames handles GET /api/debug/frames?n= - returns recent raw frames.
func (h *ChatHandler) Frames(c *gin.Context) {
	n := 0
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			sendError(c, http.StatusBadRequest, CodeValidation, "n must be a non-negative integer")
			return
		}
		n = v
	}

	frames := h.session.RecentFrames(n)
	if frames == nil {
		frames = []buffer.Frame{}
	}
	c.JSON(http.StatusOK, frames)
}

// RegisterRoutes registers the chat handler routes on a Gin router group.
func (h *ChatHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/state", h.State)
	rg.POST("/messages", h.Submit)
	rg.GET("/debug/frames", h.Frames)
}
