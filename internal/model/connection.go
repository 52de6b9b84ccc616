package model

import "time"

// ConnectionState represents the state of the agent connection.
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
)

func (s ConnectionState) String() string {
	return string(s)
}

// NotificationLevel is the severity of a user-visible notification.
type NotificationLevel string

const (
	NotificationInfo  NotificationLevel = "info"
	NotificationError NotificationLevel = "error"
)

// Notification is a non-fatal, user-visible message raised by the engine.
type Notification struct {
	Level       NotificationLevel `json:"level"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Time        time.Time         `json:"time"`
}

// NewNotification creates an error-level notification stamped with the current time.
func NewNotification(title, description string) Notification {
	return Notification{
		Level:       NotificationError,
		Title:       title,
		Description: description,
		Time:        time.Now(),
	}
}
