package dto

// RegisterRequest represents the create-account form
type RegisterRequest struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SessionResponse describes the session after an operation
type SessionResponse struct {
	Authenticated       bool    `json:"authenticated"`
	UserID              string  `json:"user_id,omitempty"`
	PendingVerification bool    `json:"pending_verification"`
	ExpiresAt           *string `json:"expires_at,omitempty"`
	BackgroundRetry     bool    `json:"background_retry"`
	Redirect            string  `json:"redirect,omitempty"`
	Message             string  `json:"message,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	// Redirect is where the page should send the browser, if anywhere
	Redirect string `json:"redirect,omitempty"`
}
