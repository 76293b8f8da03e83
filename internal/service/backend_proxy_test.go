package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/session-gateway/internal/appbackend"
	"github.com/prperemyshlev/session-gateway/internal/domain"
	"github.com/prperemyshlev/session-gateway/internal/identity"
	"github.com/prperemyshlev/session-gateway/internal/identity/identitytest"
	"github.com/prperemyshlev/session-gateway/internal/repository"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
)

type BackendProxySuite struct {
	suite.Suite
	ctx      context.Context
	backend  *identitytest.Backend
	store    repository.SessionStore
	retrier  *BackgroundRetrier
	auth     SessionAuthenticator
	upstream appbackend.Client
	proxy    *BackendProxy
}

func TestBackendProxySuite(t *testing.T) {
	suite.Run(t, new(BackendProxySuite))
}

func (s *BackendProxySuite) SetupTest() {
	s.ctx = context.Background()
	s.backend = identitytest.NewBackend(s.T())
	s.store = repository.NewMemoryStore()
	s.retrier = NewBackgroundRetrier(nil, zaptest.NewLogger(s.T()))

	logger := zaptest.NewLogger(s.T())
	client := identity.NewClient(identity.Options{BaseURL: s.backend.URL(), Timeout: 2 * time.Second, Logger: logger})
	s.auth = NewSessionAuthenticator(s.store, client, s.retrier, nil, logger, AuthenticatorOptions{})
	s.upstream = appbackend.NewClient(appbackend.Options{BaseURL: s.backend.URL(), Timeout: 2 * time.Second, Logger: logger})
	s.proxy = NewBackendProxy("app", s.auth, s.upstream, s.retrier, logger)
}

func (s *BackendProxySuite) TearDownTest() {
	s.retrier.Close()
}

func (s *BackendProxySuite) login(token string) {
	s.Require().NoError(s.auth.SetAuth(s.ctx, testSessionID, domain.Credential{Token: token, UserID: "u1", RefreshToken: "r1"}))
}

func (s *BackendProxySuite) roadmap() appbackend.Request {
	return appbackend.Request{Method: http.MethodGet, Path: "/api/roadmap", RawQuery: "week=1"}
}

func (s *BackendProxySuite) TestForward_InjectsStoredToken() {
	token := identitytest.Token(s.T(), "u1", time.Hour)
	s.login(token)
	s.backend.On("/api/roadmap", identitytest.Reply{Body: gin.H{"weeks": 12}})

	resp, err := s.proxy.Forward(s.ctx, testSessionID, s.roadmap())
	s.Require().NoError(err)

	s.Equal(http.StatusOK, resp.StatusCode)
	s.JSONEq(`{"weeks":12}`, string(resp.Body))
	s.Equal(token, s.backend.LastBearer("/api/roadmap"))

	seen, ok := s.backend.LastRequest("/api/roadmap")
	s.Require().True(ok)
	s.Equal("week=1", seen.RawQuery)
}

func (s *BackendProxySuite) TestForward_WithoutCredentialSendsNothing() {
	_, err := s.proxy.Forward(s.ctx, testSessionID, s.roadmap())

	s.ErrorIs(err, domain.ErrNotAuthenticated)
	_, called := s.backend.LastRequest("/api/roadmap")
	s.False(called)
}

func (s *BackendProxySuite) TestForward_ExpiredTokenSendsNothing() {
	s.login(identitytest.Token(s.T(), "u1", -time.Minute))

	_, err := s.proxy.Forward(s.ctx, testSessionID, s.roadmap())

	s.ErrorIs(err, domain.ErrNotAuthenticated)
	_, called := s.backend.LastRequest("/api/roadmap")
	s.False(called)
}

func (s *BackendProxySuite) TestForward_UpstreamRejectionClearsCredential() {
	s.login("tok")
	s.Require().True(s.retrier.Start(testSessionID, time.Minute, 3, func(context.Context) (domain.VerificationResult, error) {
		return domain.VerificationResult{}, nil
	}))
	s.backend.On("/api/roadmap", identitytest.Reply{Status: http.StatusUnauthorized, Body: gin.H{"error": "expired"}})

	_, err := s.proxy.Forward(s.ctx, testSessionID, s.roadmap())

	s.ErrorIs(err, domain.ErrInvalidCredential)
	cred, err := s.auth.Credential(s.ctx, testSessionID)
	s.Require().NoError(err)
	s.True(cred.Empty())
	s.Empty(cred.RefreshToken)
	s.False(s.retrier.Running(testSessionID))
}

func (s *BackendProxySuite) TestForward_RejectionKeepsReplacedCredential() {
	s.login("old")
	s.backend.On("/api/roadmap", identitytest.Reply{Status: http.StatusUnauthorized})

	// a login lands while the call is in flight
	proxy := NewBackendProxy("app", s.auth, upstreamFunc(func(ctx context.Context, token string, req appbackend.Request) (*appbackend.Response, error) {
		s.Require().NoError(s.auth.SetAuth(ctx, testSessionID, domain.Credential{Token: "new", UserID: "u2"}))
		return s.upstream.Do(ctx, token, req)
	}), s.retrier, zaptest.NewLogger(s.T()))

	_, err := proxy.Forward(s.ctx, testSessionID, s.roadmap())

	s.ErrorIs(err, domain.ErrInvalidCredential)
	cred, err := s.auth.Credential(s.ctx, testSessionID)
	s.Require().NoError(err)
	s.Equal("new", cred.Token)
	s.Equal("u2", cred.UserID)
	s.Equal("old", s.backend.LastBearer("/api/roadmap"))
}

func (s *BackendProxySuite) TestForward_OtherErrorsRelayed() {
	s.login("tok")
	s.backend.On("/api/roadmap", identitytest.Reply{Status: http.StatusForbidden, Body: gin.H{"error": "plan required"}})

	resp, err := s.proxy.Forward(s.ctx, testSessionID, s.roadmap())
	s.Require().NoError(err)

	s.Equal(http.StatusForbidden, resp.StatusCode)
	cred, err := s.auth.Credential(s.ctx, testSessionID)
	s.Require().NoError(err)
	s.Equal("tok", cred.Token)
}

type upstreamFunc func(ctx context.Context, token string, req appbackend.Request) (*appbackend.Response, error)

func (f upstreamFunc) Do(ctx context.Context, token string, req appbackend.Request) (*appbackend.Response, error) {
	return f(ctx, token, req)
}
