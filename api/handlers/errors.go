// Package handlers provides HTTP API request handlers.
package handlers

import (
	"github.com/gin-gonic/gin"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error codes.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeAgentBusy       = "AGENT_BUSY"
	CodeNotConnected    = "NOT_CONNECTED"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeRecordingAbsent = "RECORDING_NOT_FOUND"
	CodeInternal        = "INTERNAL_ERROR"
)

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
