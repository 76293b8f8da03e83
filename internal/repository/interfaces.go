package repository

import (
	"context"
)

// SessionStore is the per-session key-value storage. It plays the role
// browser localStorage plays for a page: several keys jointly form a
// credential and there is no transaction across keys for readers.
type SessionStore interface {
	// Get returns every key stored for the session. Unknown sessions yield an empty map.
	Get(ctx context.Context, sessionID string) (map[string]string, error)
	// Set writes all values in one operation
	Set(ctx context.Context, sessionID string, values map[string]string) error
	// Delete removes the given keys; missing keys are ignored
	Delete(ctx context.Context, sessionID string, keys ...string) error
	Ping(ctx context.Context) error
}
