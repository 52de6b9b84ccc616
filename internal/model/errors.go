package model

import "errors"

var (
	// ErrNotConnected is returned when an operation needs a live connection and there is none.
	ErrNotConnected = errors.New("not connected")

	// ErrBlocked is returned when a submission is rejected.
	ErrBlocked = errors.New("submission blocked")

	// ErrTurnInFlight is returned when a turn is already awaiting its terminal event.
	ErrTurnInFlight = errors.New("a turn is already in progress")

	// ErrTransportClosed is returned when the transport has been closed for good.
	ErrTransportClosed = errors.New("transport closed")

	// ErrSendQueueFull is returned when the outbound queue cannot take another frame.
	ErrSendQueueFull = errors.New("send queue full")

	// ErrSessionNotFound is returned when a persisted chat session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyMessage is returned by input surfaces for blank submissions.
	ErrEmptyMessage = errors.New("message is required")
)
