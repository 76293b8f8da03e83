package service

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/prperemyshlev/session-gateway/internal/domain"
	"github.com/prperemyshlev/session-gateway/internal/identity"
	"github.com/prperemyshlev/session-gateway/internal/repository"
	"github.com/prperemyshlev/session-gateway/internal/utils"
	"github.com/prperemyshlev/session-gateway/pkg/observability"
	"go.uber.org/zap"
)

const (
	DefaultLoginURL         = "../login/index.html"
	DefaultRetryInterval    = 5 * time.Second
	DefaultRetryMaxAttempts = 6
)

// DefaultLoginPatterns match login, registration and verification pages
var DefaultLoginPatterns = []string{"login", "register", "create-account", "create account", "callback.html", "verify"}

// AuthenticatorOptions configures SessionAuthenticator defaults
type AuthenticatorOptions struct {
	LoginURL         string
	LoginPatterns    []string
	RetryInterval    time.Duration
	RetryMaxAttempts int
}

// sessionAuthenticator implements SessionAuthenticator
type sessionAuthenticator struct {
	store    repository.SessionStore
	identity identity.Client
	retrier  *BackgroundRetrier
	metrics  *observability.SessionMetrics
	logger   *zap.Logger
	opts     AuthenticatorOptions
	now      func() time.Time
}

// NewSessionAuthenticator creates a new session authenticator
func NewSessionAuthenticator(
	store repository.SessionStore,
	identityClient identity.Client,
	retrier *BackgroundRetrier,
	metrics *observability.SessionMetrics,
	logger *zap.Logger,
	opts AuthenticatorOptions,
) SessionAuthenticator {
	if opts.LoginURL == "" {
		opts.LoginURL = DefaultLoginURL
	}
	if len(opts.LoginPatterns) == 0 {
		opts.LoginPatterns = DefaultLoginPatterns
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.RetryMaxAttempts <= 0 {
		opts.RetryMaxAttempts = DefaultRetryMaxAttempts
	}

	return &sessionAuthenticator{
		store:    store,
		identity: identityClient,
		retrier:  retrier,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

func (a *sessionAuthenticator) Credential(ctx context.Context, sessionID string) (domain.Credential, error) {
	values, err := a.store.Get(ctx, sessionID)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to read credential: %w", err)
	}
	return domain.CredentialFromValues(values), nil
}

func (a *sessionAuthenticator) IsAuthenticated(ctx context.Context, sessionID string) (bool, error) {
	cred, err := a.Credential(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return a.authenticated(cred), nil
}

// authenticated only judges tokens it can decode; opaque tokens are left to the backend
func (a *sessionAuthenticator) authenticated(cred domain.Credential) bool {
	if !cred.Complete() {
		return false
	}

	payload, err := utils.DecodeToken(cred.Token)
	if utils.IsDecodeError(err) {
		return true
	}
	return err == nil && !payload.IsExpired(a.now())
}

func (a *sessionAuthenticator) DecodeToken(token string) (*domain.TokenPayload, error) {
	return utils.DecodeToken(token)
}

func (a *sessionAuthenticator) SetAuth(ctx context.Context, sessionID string, cred domain.Credential) error {
	values := cred.Values()
	if len(values) == 0 {
		return nil
	}
	if err := a.store.Set(ctx, sessionID, values); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (a *sessionAuthenticator) ClearAuth(ctx context.Context, sessionID string) error {
	if err := a.store.Delete(ctx, sessionID, domain.CredentialKeys...); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

func (a *sessionAuthenticator) Reconcile(ctx context.Context, sessionID string) (domain.Credential, error) {
	values, err := a.store.Get(ctx, sessionID)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to read credential: %w", err)
	}
	cred := domain.CredentialFromValues(values)

	if cred.Token != "" {
		payload, err := utils.DecodeToken(cred.Token)
		switch {
		case err != nil:
			a.logger.Debug("Stored token has no usable payload", zap.String("session_id", sessionID), zap.Error(err))
		case payload.IsExpired(a.now()):
			a.logger.Info("Stored token expired, discarding credential",
				zap.String("session_id", sessionID),
				zap.Timep("expired_at", payload.ExpiresAt),
			)
			if err := a.ClearAuth(ctx, sessionID); err != nil {
				return domain.Credential{}, err
			}
			return domain.Credential{}, nil
		case cred.UserID == "" && payload.Subject != "":
			a.logger.Info("Derived user id from token payload", zap.String("session_id", sessionID))
			cred.UserID = payload.Subject
		}
	}

	if !cred.Empty() && !cred.InSync(values) {
		if err := a.store.Set(ctx, sessionID, cred.Values()); err != nil {
			return domain.Credential{}, fmt.Errorf("failed to sync credential aliases: %w", err)
		}
	}

	return cred, nil
}

func (a *sessionAuthenticator) VerifyToken(ctx context.Context, sessionID string) (domain.VerificationResult, error) {
	cred, err := a.Credential(ctx, sessionID)
	if err != nil {
		return domain.VerificationResult{}, err
	}

	result := a.verify(ctx, sessionID, cred)
	a.metrics.RecordVerification(ctx, result.Outcome.String())
	return result, nil
}

func (a *sessionAuthenticator) verify(ctx context.Context, sessionID string, cred domain.Credential) domain.VerificationResult {
	if cred.Token == "" {
		return domain.VerificationResult{
			Outcome: domain.OutcomeInvalidCredential,
			Err:     fmt.Errorf("%w: no token stored", domain.ErrInvalidCredential),
		}
	}

	resp, err := a.identity.Me(ctx, cred.Token)
	if err != nil {
		return domain.VerificationResult{
			Outcome: domain.OutcomeNetworkError,
			Err:     err,
		}
	}

	switch {
	case resp.Success():
		userID := utils.LookupString(resp.Body, domain.MeUserIDFields)
		a.applyIdentity(ctx, sessionID, cred, userID, utils.LookupString(resp.Body, domain.MeTokenFields))
		if userID == "" {
			userID = cred.UserID
		}
		return domain.VerificationResult{
			Outcome:    domain.OutcomeValid,
			StatusCode: resp.StatusCode,
			UserID:     userID,
			User:       resp.Body,
		}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		a.clearIfCurrent(ctx, sessionID, cred.Token)
		return domain.VerificationResult{
			Outcome:    domain.OutcomeInvalidCredential,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: identity backend answered %d", domain.ErrInvalidCredential, resp.StatusCode),
		}

	case resp.StatusCode == http.StatusNotFound && cred.UserID != "":
		a.logger.Warn("Identity endpoint not found, trusting local session",
			zap.String("session_id", sessionID),
		)
		return domain.VerificationResult{
			Outcome:    domain.OutcomeValid,
			StatusCode: resp.StatusCode,
			UserID:     cred.UserID,
			Degraded:   true,
		}

	default:
		return domain.VerificationResult{
			Outcome:    domain.OutcomeInvalidCredential,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: identity backend answered %d", domain.ErrAmbiguousServer, resp.StatusCode),
		}
	}
}

// applyIdentity persists what /auth/me returned, unless the session moved on to another token meanwhile
func (a *sessionAuthenticator) applyIdentity(ctx context.Context, sessionID string, verified domain.Credential, userID, newToken string) {
	update := domain.Credential{UserID: userID}
	if newToken != "" && newToken != verified.Token {
		update.Token = newToken
	}
	values := update.Values()
	if len(values) == 0 {
		return
	}

	current, err := a.Credential(ctx, sessionID)
	if err != nil {
		a.logger.Warn("Failed to re-read credential after verification", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if current.Token != verified.Token {
		a.logger.Debug("Dropping stale verification result", zap.String("session_id", sessionID))
		return
	}

	if err := a.store.Set(ctx, sessionID, values); err != nil {
		a.logger.Warn("Failed to persist verified identity", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// clearIfCurrent clears the credential only if it still holds the rejected token
func (a *sessionAuthenticator) clearIfCurrent(ctx context.Context, sessionID, rejected string) {
	current, err := a.Credential(ctx, sessionID)
	if err != nil {
		a.logger.Warn("Failed to re-read credential after rejection", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if current.Token != rejected {
		a.logger.Debug("Rejected token already replaced, keeping credential", zap.String("session_id", sessionID))
		return
	}

	if err := a.ClearAuth(ctx, sessionID); err != nil {
		a.logger.Warn("Failed to clear rejected credential", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (a *sessionAuthenticator) RequireAuth(ctx context.Context, page domain.SessionContext, opts RequireAuthOptions) (domain.GateDecision, error) {
	decision, err := a.requireAuth(ctx, page, opts)
	if err != nil {
		return domain.GateDecision{}, err
	}

	a.metrics.RecordDecision(ctx, string(decision.State))
	return decision, nil
}

func (a *sessionAuthenticator) requireAuth(ctx context.Context, page domain.SessionContext, opts RequireAuthOptions) (domain.GateDecision, error) {
	loginURL := opts.LoginURL
	if loginURL == "" {
		loginURL = a.opts.LoginURL
	}
	redirect := domain.GateDecision{State: domain.GateRedirect, RedirectURL: loginURL}

	if a.IsLoginPage(page.Path) {
		return domain.GateDecision{State: domain.GateSkip}, nil
	}

	cred, err := a.Reconcile(ctx, page.SessionID)
	if err != nil {
		return domain.GateDecision{}, err
	}
	if !a.authenticated(cred) {
		a.logger.Debug("No stored credentials, redirecting to login",
			zap.String("session_id", page.SessionID),
			zap.String("path", page.Path),
		)
		return redirect, nil
	}

	result, err := a.VerifyToken(ctx, page.SessionID)
	if err != nil {
		return domain.GateDecision{}, err
	}

	switch {
	case result.Valid():
		return domain.GateDecision{State: domain.GateProceed, Verification: &result}, nil

	case result.NetworkError():
		a.logger.Warn("Token verification could not complete, allowing session",
			zap.String("session_id", page.SessionID),
			zap.String("path", page.Path),
			zap.Error(result.Err),
		)
		if !opts.DisableBackgroundRetry {
			a.StartBackgroundRetry(page.SessionID, a.opts.RetryInterval, a.opts.RetryMaxAttempts)
		}
		return domain.GateDecision{State: domain.GateProceed, Verification: &result}, nil

	default:
		a.logger.Info("Token invalid or verification failed, redirecting to login",
			zap.String("session_id", page.SessionID),
			zap.Int("status", result.StatusCode),
			zap.Error(result.Err),
		)
		redirect.Verification = &result
		return redirect, nil
	}
}

func (a *sessionAuthenticator) StartBackgroundRetry(sessionID string, interval time.Duration, maxAttempts int) bool {
	if a.retrier == nil {
		return false
	}

	return a.retrier.Start(sessionID, interval, maxAttempts, func(ctx context.Context) (domain.VerificationResult, error) {
		return a.VerifyToken(ctx, sessionID)
	})
}

// IsLoginPage matches the patterns against the page's top-level section and its file name.
// Deeper directories are ignored so that a protected page cannot become a login page by its location.
func (a *sessionAuthenticator) IsLoginPage(pagePath string) bool {
	trimmed := strings.Trim(strings.ToLower(path.Clean("/"+pagePath)), "/")
	if trimmed == "" {
		return false
	}

	section, _, _ := strings.Cut(trimmed, "/")
	file := path.Base(trimmed)
	for _, pattern := range a.opts.LoginPatterns {
		pattern = strings.ToLower(pattern)
		if pattern == "" {
			continue
		}
		if strings.Contains(section, pattern) || strings.Contains(file, pattern) {
			return true
		}
	}
	return false
}
