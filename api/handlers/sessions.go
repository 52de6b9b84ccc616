package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/agentchat/internal/model"
)

// TranscriptReader reads persisted sessions.
type TranscriptReader interface {
	ListSessions(ctx context.Context) ([]*model.ChatSession, error)
	GetSession(ctx context.Context, id string) (*model.ChatSession, error)
	ListMessages(ctx context.Context, sessionID string) ([]model.Message, error)
}

// SessionHandler serves the history of past and current sessions.
type SessionHandler struct {
	repo      TranscriptReader
	recordDir string
}

// NewSessionHandler creates a new SessionHandler. recordDir may be empty
// when recordings are disabled.
func NewSessionHandler(repo TranscriptReader, recordDir string) *SessionHandler {
	return &SessionHandler{
		repo:      repo,
		recordDir: recordDir,
	}
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID           string `json:"id"`
	Endpoint     string `json:"endpoint"`
	MessageCount int    `json:"messageCount"`
	Duration     string `json:"duration"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

// toSessionResponse converts a model.ChatSession to SessionResponse.
func toSessionResponse(s *model.ChatSession) *SessionResponse {
	return &SessionResponse{
		ID:           s.ID,
		Endpoint:     s.Endpoint,
		MessageCount: s.MessageCount,
		Duration:     formatDuration(s.Duration()),
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    s.UpdatedAt.Format(time.RFC3339),
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String()
}

// List handles GET /api/sessions - lists persisted sessions.
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.repo.ListSessions(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, CodeInternal, "Failed to list sessions: "+err.Error())
		return
	}

	response := make([]*SessionResponse, len(sessions))
	for i, sess := range sessions {
		response[i] = toSessionResponse(sess)
	}
	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/sessions/:id - gets a specific session.
func (h *SessionHandler) Get(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(sess))
}

// Messages handles GET /api/sessions/:id/messages - returns the persisted transcript.
func (h *SessionHandler) Messages(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}

	messages, err := h.repo.ListMessages(c.Request.Context(), sess.ID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, CodeInternal, "Failed to list messages: "+err.Error())
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

// Recording handles GET /api/sessions/:id/recording - downloads the wire recording.
func (h *SessionHandler) Recording(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}

	if h.recordDir == "" {
		sendError(c, http.StatusNotFound, CodeRecordingAbsent, "Recording is disabled")
		return
	}
	path := filepath.Join(h.recordDir, sess.ID+".jsonl")
	if _, err := os.Stat(path); err != nil {
		sendError(c, http.StatusNotFound, CodeRecordingAbsent, "Recording not found for session "+sess.ID)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Content-Disposition", "attachment; filename="+sess.ID+".jsonl")
	c.File(path)
}

func (h *SessionHandler) lookup(c *gin.Context) (*model.ChatSession, bool) {
	sessionID := c.Param("id")
	if sessionID == "" {
		sendError(c, http.StatusBadRequest, CodeValidation, "Session ID is required")
		return nil, false
	}

	sess, err := h.repo.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, CodeSessionNotFound, "Session "+sessionID+" not found")
			return nil, false
		}
		sendError(c, http.StatusInternalServerError, CodeInternal, "Failed to get session: "+err.Error())
		return nil, false
	}
	return sess, true
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.GET("", h.List)
		sessions.GET("/:id", h.Get)
		sessions.GET("/:id/messages", h.Messages)
		sessions.GET("/:id/recording", h.Recording)
	}
}
