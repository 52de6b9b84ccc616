package model

import (
	"strings"
	"time"
)

// ChatSession is the persisted record of one engine session.
type ChatSession struct {
	ID           string    `json:"id"`
	Endpoint     string    `json:"endpoint"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Duration returns the span between the session's creation and its last
// persisted turn.
func (s *ChatSession) Duration() time.Duration {
	return s.UpdatedAt.Sub(s.CreatedAt)
}

// SubmitRequest represents a request to submit a user turn.
type SubmitRequest struct {
	Message string `json:"message" binding:"required"`
}

// Validate rejects blank submissions.
func (r *SubmitRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}
