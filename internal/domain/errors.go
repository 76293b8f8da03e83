package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrDecode is returned when a token has no usable payload
	ErrDecode = errors.New("malformed token")

	// ErrInvalidCredential is returned when the identity backend rejected the credential
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrNetwork is returned when a backend could not be reached
	ErrNetwork = errors.New("backend unreachable")

	// ErrNotAuthenticated is returned when a call needs a complete, unexpired credential and the session has none
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrAmbiguousServer is returned for non-2xx answers other than 401/403/404
	ErrAmbiguousServer = errors.New("ambiguous identity backend response")

	// ErrIncompleteAuthResponse is returned when login yields neither token nor user id
	ErrIncompleteAuthResponse = errors.New("server returned no token or user id")

	// ErrNoRefreshToken is returned when refresh is requested without a stored refresh token
	ErrNoRefreshToken = errors.New("refresh token not found")

	// ErrUnknownProvider is returned for OAuth providers outside the allow-list
	ErrUnknownProvider = errors.New("unknown oauth provider")
)

// ValidationError carries per-field form errors
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
