package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prperemyshlev/session-gateway/internal/appbackend"
	"github.com/prperemyshlev/session-gateway/internal/domain"
	"go.uber.org/zap"
)

// BackendProxy forwards page script calls with the session's bearer token
type BackendProxy struct {
	name     string
	auth     SessionAuthenticator
	upstream appbackend.Client
	retrier  *BackgroundRetrier
	logger   *zap.Logger
}

// NewBackendProxy creates a proxy to one backend. name only labels logs.
func NewBackendProxy(name string, auth SessionAuthenticator, upstream appbackend.Client, retrier *BackgroundRetrier, logger *zap.Logger) *BackendProxy {
	return &BackendProxy{
		name:     name,
		auth:     auth,
		upstream: upstream,
		retrier:  retrier,
		logger:   logger,
	}
}

// Forward sends req upstream. A session without a usable credential gets ErrNotAuthenticated
// and nothing is sent. An upstream 401 clears the credential it was sent with and yields
// ErrInvalidCredential. Every other answer is returned as-is.
func (p *BackendProxy) Forward(ctx context.Context, sessionID string, req appbackend.Request) (*appbackend.Response, error) {
	cred, err := p.auth.Reconcile(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	authenticated, err := p.auth.IsAuthenticated(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !authenticated {
		return nil, domain.ErrNotAuthenticated
	}

	resp, err := p.upstream.Do(ctx, cred.Token, req)
	if err != nil {
		p.logger.Warn("Backend call failed",
			zap.String("backend", p.name),
			zap.String("session_id", sessionID),
			zap.String("path", req.Path),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		p.logger.Info("Backend rejected token, clearing credential",
			zap.String("backend", p.name),
			zap.String("session_id", sessionID),
			zap.String("path", req.Path),
		)
		if err := p.clearIfCurrent(ctx, sessionID, cred.Token); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s backend answered 401", domain.ErrInvalidCredential, p.name)
	}

	return resp, nil
}

// clearIfCurrent leaves a credential alone that was replaced while the call was in flight
func (p *BackendProxy) clearIfCurrent(ctx context.Context, sessionID, rejected string) error {
	current, err := p.auth.Credential(ctx, sessionID)
	if err != nil {
		return err
	}
	if current.Token != rejected {
		return nil
	}

	if p.retrier != nil {
		p.retrier.Stop(sessionID)
	}
	return p.auth.ClearAuth(ctx, sessionID)
}
