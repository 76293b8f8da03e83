package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prperemyshlev/session-gateway/internal/domain"
	"github.com/prperemyshlev/session-gateway/internal/dto"
	"github.com/prperemyshlev/session-gateway/internal/identity"
	"github.com/prperemyshlev/session-gateway/internal/repository"
	"github.com/prperemyshlev/session-gateway/internal/utils"
	"go.uber.org/zap"
)

const (
	DefaultHomeURL        = "../Dashboard/index.html"
	DefaultVerifyEmailURL = "../Verify Email/index.html"
	DefaultLogoutURL      = "../index.html"
	DefaultOAuthProvider  = "google"
)

// FlowOptions configures the pages the flows send the browser to
type FlowOptions struct {
	HomeURL        string
	VerifyEmailURL string
	LogoutURL      string
	OAuthProviders []string
}

// sessionService implements SessionService
type sessionService struct {
	auth     SessionAuthenticator
	store    repository.SessionStore
	identity identity.Client
	retrier  *BackgroundRetrier
	logger   *zap.Logger
	opts     FlowOptions
}

// NewSessionService creates a new session service
func NewSessionService(
	auth SessionAuthenticator,
	store repository.SessionStore,
	identityClient identity.Client,
	retrier *BackgroundRetrier,
	logger *zap.Logger,
	opts FlowOptions,
) SessionService {
	if opts.HomeURL == "" {
		opts.HomeURL = DefaultHomeURL
	}
	if opts.VerifyEmailURL == "" {
		opts.VerifyEmailURL = DefaultVerifyEmailURL
	}
	if opts.LogoutURL == "" {
		opts.LogoutURL = DefaultLogoutURL
	}
	if len(opts.OAuthProviders) == 0 {
		opts.OAuthProviders = []string{DefaultOAuthProvider}
	}

	return &sessionService{
		auth:     auth,
		store:    store,
		identity: identityClient,
		retrier:  retrier,
		logger:   logger,
		opts:     opts,
	}
}

// Login authenticates against the identity backend and stores whatever credential it returned
func (s *sessionService) Login(ctx context.Context, sessionID string, req *dto.LoginRequest) (*dto.SessionResponse, error) {
	email := utils.SanitizeEmail(req.Email)

	body, err := s.identity.Login(ctx, email, req.Password)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	cred := credentialFromAuthResponse(body)
	if cred.Empty() {
		s.logger.Warn("Login response carried neither token nor user id", zap.String("session_id", sessionID))
		return nil, domain.ErrIncompleteAuthResponse
	}

	if cred.UserID == "" {
		cred.UserID = s.resolveUserID(ctx, sessionID, cred.Token)
	}

	s.stopRetry(sessionID)
	if err := s.auth.ClearAuth(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := s.auth.SetAuth(ctx, sessionID, cred); err != nil {
		return nil, err
	}

	s.logger.Info("User logged in",
		zap.String("session_id", sessionID),
		zap.String("user_id", cred.UserID),
		zap.Bool("complete", cred.Complete()),
	)

	resp := s.response(cred, false)
	if cred.Complete() {
		resp.Redirect = s.opts.HomeURL
	} else {
		resp.Message = "Login succeeded but the server did not identify the user"
	}
	return resp, nil
}

// resolveUserID falls back to the token payload, then to /auth/me
func (s *sessionService) resolveUserID(ctx context.Context, sessionID, token string) string {
	if token == "" {
		return ""
	}

	if payload, err := utils.DecodeToken(token); err == nil && payload.Subject != "" {
		return payload.Subject
	}

	resp, err := s.identity.Me(ctx, token)
	if err != nil {
		s.logger.Warn("Could not ask identity backend for user id", zap.String("session_id", sessionID), zap.Error(err))
		return ""
	}
	if !resp.Success() {
		s.logger.Warn("Identity backend did not return user id",
			zap.String("session_id", sessionID),
			zap.Int("status", resp.StatusCode),
		)
		return ""
	}
	return utils.LookupString(resp.Body, domain.MeUserIDFields)
}

// Register validates the form, creates the account and marks the session as awaiting email confirmation
func (s *sessionService) Register(ctx context.Context, sessionID string, form utils.RegistrationForm) (*dto.SessionResponse, error) {
	if err := utils.ValidateRegistration(form); err != nil {
		return nil, err
	}

	body, err := s.identity.Register(ctx, form.FullName(), utils.SanitizeEmail(form.Email), strings.TrimSpace(form.Password))
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}

	cred := credentialFromAuthResponse(body)
	if !cred.Empty() {
		s.stopRetry(sessionID)
		if err := s.auth.ClearAuth(ctx, sessionID); err != nil {
			return nil, err
		}
		if err := s.auth.SetAuth(ctx, sessionID, cred); err != nil {
			return nil, err
		}
	}
	if err := s.store.Set(ctx, sessionID, map[string]string{domain.KeyPendingVerification: "true"}); err != nil {
		return nil, fmt.Errorf("failed to store registration state: %w", err)
	}

	s.logger.Info("User registered", zap.String("session_id", sessionID), zap.String("user_id", cred.UserID))

	resp := s.response(cred, true)
	resp.Redirect = s.opts.VerifyEmailURL
	resp.Message = "Account created! Please check your email to verify your account."
	return resp, nil
}

// Refresh exchanges the stored refresh token for a new access token
func (s *sessionService) Refresh(ctx context.Context, sessionID string) (*dto.SessionResponse, error) {
	cred, err := s.auth.Credential(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cred.RefreshToken == "" {
		return nil, domain.ErrNoRefreshToken
	}

	body, err := s.identity.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh failed: %w", err)
	}

	token := utils.LookupString(body, domain.LoginTokenFields)
	if token == "" {
		return nil, domain.ErrIncompleteAuthResponse
	}

	refreshed := domain.Credential{
		Token:        token,
		UserID:       cred.UserID,
		RefreshToken: utils.LookupString(body, domain.RefreshTokenFields),
	}
	if refreshed.UserID == "" {
		if payload, err := utils.DecodeToken(token); err == nil {
			refreshed.UserID = payload.Subject
		}
	}

	if err := s.auth.SetAuth(ctx, sessionID, refreshed); err != nil {
		return nil, err
	}
	s.stopRetry(sessionID)

	s.logger.Info("Token refreshed", zap.String("session_id", sessionID))

	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}
	return s.response(refreshed, false), nil
}

// Logout forgets everything the session knows
func (s *sessionService) Logout(ctx context.Context, sessionID string) (*dto.SessionResponse, error) {
	s.stopRetry(sessionID)

	if err := s.auth.ClearAuth(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, sessionID, domain.KeyPendingVerification); err != nil {
		return nil, fmt.Errorf("failed to clear pending verification: %w", err)
	}

	s.logger.Info("User logged out", zap.String("session_id", sessionID))

	return &dto.SessionResponse{Redirect: s.opts.LogoutURL}, nil
}

// Status reconciles the stored credential and reports it without calling the backend
func (s *sessionService) Status(ctx context.Context, sessionID string) (*dto.SessionResponse, error) {
	cred, err := s.auth.Reconcile(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	values, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	resp := s.response(cred, values[domain.KeyPendingVerification] == "true")
	resp.BackgroundRetry = s.retrier != nil && s.retrier.Running(sessionID)
	return resp, nil
}

func (s *sessionService) OAuthRedirect(provider string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = DefaultOAuthProvider
	}

	for _, allowed := range s.opts.OAuthProviders {
		if strings.EqualFold(allowed, provider) {
			return s.identity.OAuthURL(provider), nil
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrUnknownProvider, provider)
}

func (s *sessionService) response(cred domain.Credential, pending bool) *dto.SessionResponse {
	resp := &dto.SessionResponse{
		UserID:              cred.UserID,
		PendingVerification: pending,
	}

	if payload, err := s.auth.DecodeToken(cred.Token); err == nil && payload.ExpiresAt != nil {
		expiresAt := payload.ExpiresAt.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &expiresAt
		resp.Authenticated = cred.Complete() && !payload.IsExpired(time.Now())
	} else {
		resp.Authenticated = cred.Complete()
	}

	return resp
}

func (s *sessionService) stopRetry(sessionID string) {
	if s.retrier != nil {
		s.retrier.Stop(sessionID)
	}
}

// credentialFromAuthResponse reads a login or registration answer, including a nested user object
func credentialFromAuthResponse(body map[string]any) domain.Credential {
	cred := domain.Credential{
		Token:        utils.LookupString(body, domain.LoginTokenFields),
		UserID:       utils.LookupString(body, domain.LoginUserIDFields),
		RefreshToken: utils.LookupString(body, domain.RefreshTokenFields),
	}
	if cred.UserID == "" {
		if user := utils.LookupObject(body, "user"); user != nil {
			cred.UserID = utils.LookupString(user, domain.LoginUserIDFields)
		}
	}
	return cred
}
