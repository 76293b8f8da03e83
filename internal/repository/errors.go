package repository

import "errors"

// Common repository errors
var (
	// ErrEmptySessionID is returned when a store operation is called without a session id
	ErrEmptySessionID = errors.New("session id is empty")
)
