package service

import (
	"context"
	"time"

	"github.com/prperemyshlev/session-gateway/internal/domain"
	"github.com/prperemyshlev/session-gateway/internal/dto"
	"github.com/prperemyshlev/session-gateway/internal/utils"
)

// SessionAuthenticator decides whether a page load may proceed and keeps
// stored credentials consistent with the identity backend.
type SessionAuthenticator interface {
	// IsAuthenticated is true iff token and user id are both stored and the token is not known to be expired. No network access.
	IsAuthenticated(ctx context.Context, sessionID string) (bool, error)
	DecodeToken(token string) (*domain.TokenPayload, error)
	// VerifyToken asks the identity backend about the stored token. The error is reserved for storage failures.
	VerifyToken(ctx context.Context, sessionID string) (domain.VerificationResult, error)
	RequireAuth(ctx context.Context, page domain.SessionContext, opts RequireAuthOptions) (domain.GateDecision, error)
	// SetAuth writes every present field of cred under every alias. Absent fields keep their stored value.
	SetAuth(ctx context.Context, sessionID string, cred domain.Credential) error
	ClearAuth(ctx context.Context, sessionID string) error
	Reconcile(ctx context.Context, sessionID string) (domain.Credential, error)
	Credential(ctx context.Context, sessionID string) (domain.Credential, error)
	StartBackgroundRetry(sessionID string, interval time.Duration, maxAttempts int) bool
	IsLoginPage(path string) bool
}

// SessionService implements the login, registration, refresh and logout flows
type SessionService interface {
	Login(ctx context.Context, sessionID string, req *dto.LoginRequest) (*dto.SessionResponse, error)
	Register(ctx context.Context, sessionID string, form utils.RegistrationForm) (*dto.SessionResponse, error)
	Refresh(ctx context.Context, sessionID string) (*dto.SessionResponse, error)
	Logout(ctx context.Context, sessionID string) (*dto.SessionResponse, error)
	Status(ctx context.Context, sessionID string) (*dto.SessionResponse, error)
	OAuthRedirect(provider string) (string, error)
}

// RequireAuthOptions overrides authenticator defaults for one call. Zero values keep the defaults.
type RequireAuthOptions struct {
	LoginURL string
	// DisableBackgroundRetry skips scheduling re-verification after a network error
	DisableBackgroundRetry bool
}
