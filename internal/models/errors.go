package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredential is returned before any connection attempt when no
	// bearer credential is available.
	ErrNoCredential = errors.New("no credential available")
	// ErrAuthRejected means the server refused the credential. Never retried.
	ErrAuthRejected   = errors.New("credential rejected")
	ErrNotConnected   = errors.New("connection is not open")
	ErrRetryExhausted = errors.New("reconnect attempts exhausted")
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownFrame   = errors.New("unknown frame type")
	ErrEmptyContent   = errors.New("message content is empty")
	// ErrChannelSwitched is returned to callers whose channel selection was
	// superseded before it completed.
	ErrChannelSwitched = errors.New("channel switched")
	ErrSessionClosed   = errors.New("session closed")
	ErrNotFound        = errors.New("not found")
)

// APIError is a non-2xx reply from the chat REST API.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat api: status %d", e.Status)
	}
	return fmt.Sprintf("chat api: status %d: %s", e.Status, e.Message)
}
