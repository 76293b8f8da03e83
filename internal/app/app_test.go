package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/session-gateway/internal/config"
	"github.com/prperemyshlev/session-gateway/internal/dto"
	"github.com/prperemyshlev/session-gateway/internal/identity/identitytest"
	"github.com/prperemyshlev/session-gateway/internal/repository"
	"github.com/prperemyshlev/session-gateway/pkg/database"
	"github.com/prperemyshlev/session-gateway/pkg/observability"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type Suite struct {
	suite.Suite
	backend    *identitytest.Backend
	appBackend *identitytest.Backend
	infra   *testInfrastructure
	app     *App
	server  *httptest.Server
	client  *http.Client
}

func TestSuite(t *testing.T) {
	suite.Run(t, new(Suite))
}

func (s *Suite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.backend = identitytest.NewBackend(s.T())
	s.appBackend = identitytest.NewBackend(s.T())

	meterProvider, metricsHandler, err := observability.InitTelemetry("session-gateway-test")
	s.Require().NoError(err)

	s.infra = &testInfrastructure{
		store:          repository.NewMemoryStore(),
		logger:         zaptest.NewLogger(s.T()),
		metricsHandler: metricsHandler,
		meterProvider:  meterProvider,
	}

	application, err := NewApp(s.infra, s.createTestConfig())
	s.Require().NoError(err)
	s.app = application

	s.server = httptest.NewServer(application.Router())

	jar, err := cookiejar.New(nil)
	s.Require().NoError(err)
	s.client = &http.Client{
		Jar:     jar,
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (s *Suite) TearDownTest() {
	s.server.Close()
	s.Require().NoError(s.app.Shutdown())
}

func (s *Suite) createTestConfig() *config.Config {
	root := s.T().TempDir()
	for _, page := range []string{
		"index.html",
		"login/index.html",
		"Dashboard/index.html",
		"Dashboard/secret.html",
		"Dashboard/verify/secret.html",
		"Verify Email/index.html",
		"assets/logo.txt",
	} {
		path := filepath.Join(root, filepath.FromSlash(page))
		s.Require().NoError(os.MkdirAll(filepath.Dir(path), 0o755))
		s.Require().NoError(os.WriteFile(path, []byte("<html>"+page+"</html>"), 0o644))
	}

	return &config.Config{
		Server: config.ServerConfig{
			Host:         "localhost",
			Port:         "0",
			ReadTimeout:  config.Duration{Duration: 15 * time.Second},
			WriteTimeout: config.Duration{Duration: 15 * time.Second},
		},
		Identity: config.IdentityConfig{
			BaseURL: s.backend.URL(),
			Timeout: config.Duration{Duration: 2 * time.Second},
		},
		Backend: config.BackendConfig{
			BaseURL: s.appBackend.URL(),
			Timeout: config.Duration{Duration: 2 * time.Second},
		},
		Session: config.SessionConfig{
			Secret:     "test-secret-key-that-is-at-least-32-characters-long",
			CookieName: "navi_session",
			TTL:        config.Duration{Duration: time.Hour},
			Store:      repository.DriverMemory,
		},
		Retry: config.RetryConfig{
			Interval:    config.Duration{Duration: time.Minute},
			MaxAttempts: 3,
		},
		Pages: config.PagesConfig{
			Root:           root,
			LoginURL:       "../login/index.html",
			HomeURL:        "../Dashboard/index.html",
			LogoutURL:      "../index.html",
			VerifyEmailURL: "../Verify Email/index.html",
			Protected:      []string{"/Dashboard/", "/roadmap/"},
			LoginPatterns:  []string{"login", "register", "verify"},
		},
		OAuth: config.OAuthConfig{Providers: []string{"google"}},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		},
		Env: "test",
	}
}

func (s *Suite) get(path string) *http.Response {
	resp, err := s.client.Get(s.server.URL + path)
	s.Require().NoError(err)
	s.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *Suite) post(path string, body any) *http.Response {
	payload, err := json.Marshal(body)
	s.Require().NoError(err)

	resp, err := s.client.Post(s.server.URL+path, "application/json", bytes.NewReader(payload))
	s.Require().NoError(err)
	s.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *Suite) decode(resp *http.Response, v any) {
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(v))
}

func (s *Suite) status() dto.SessionResponse {
	var status dto.SessionResponse
	resp := s.get("/api/v1/session")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &status)
	return status
}

func (s *Suite) loginAs(userID string) string {
	token := identitytest.Token(s.T(), userID, time.Hour)
	s.backend.On("/auth/login", identitytest.Reply{Body: gin.H{
		"access_token":  token,
		"user_id":       userID,
		"refresh_token": "refresh-" + userID,
	}})

	resp := s.post("/api/v1/session/login", dto.LoginRequest{Email: "ada@example.com", Password: "Password123"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	return token
}

func (s *Suite) TestHealthEndpoint() {
	resp := s.get("/health")
	s.Equal(http.StatusOK, resp.StatusCode, "Expected status 200")
}

func (s *Suite) TestProtectedPageRedirectsWithoutSession() {
	resp := s.get("/Dashboard/index.html")

	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("/login/index.html", resp.Header.Get("Location"))
	s.Zero(s.backend.MeCalls())
}

func (s *Suite) TestUncleanPathsCannotReachProtectedPages() {
	for _, path := range []string{
		"//Dashboard/secret.html",
		"/x/../Dashboard/secret.html",
		"/Dashboard/verify/../secret.html",
	} {
		s.Run(path, func() {
			resp := s.get(path)
			s.Equal(http.StatusMovedPermanently, resp.StatusCode)
			s.Equal("/Dashboard/secret.html", resp.Header.Get("Location"))

			body, err := io.ReadAll(resp.Body)
			s.Require().NoError(err)
			s.NotContains(string(body), "<html>Dashboard/secret.html</html>")

			resp = s.get(resp.Header.Get("Location"))
			s.Equal(http.StatusFound, resp.StatusCode)
			s.Equal("/login/index.html", resp.Header.Get("Location"))
		})
	}
}

func (s *Suite) TestLoginPatternInsideProtectedSectionIsGated() {
	resp := s.get("/Dashboard/verify/secret.html")

	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("/login/index.html", resp.Header.Get("Location"))
}

func (s *Suite) TestDirectoriesAreNotListed() {
	s.Equal(http.StatusNotFound, s.get("/assets/").StatusCode)
	s.Equal(http.StatusOK, s.get("/assets/logo.txt").StatusCode)
}

func (s *Suite) TestAppBackendRequiresLogin() {
	resp := s.get("/api/v1/app/api/roadmap")
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)

	var body dto.ErrorResponse
	s.decode(resp, &body)
	s.Equal("../login/index.html", body.Redirect)
	_, called := s.appBackend.LastRequest("/api/roadmap")
	s.False(called)
}

func (s *Suite) TestAppBackendForwardsWithBearer() {
	token := s.loginAs("u1")
	s.appBackend.On("/api/roadmap", identitytest.Reply{Body: gin.H{"weeks": 12}})

	resp := s.post("/api/v1/app/api/roadmap?week=3", gin.H{"goal": "backend"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.JSONEq(`{"weeks":12}`, string(body))

	s.Equal(token, s.appBackend.LastBearer("/api/roadmap"))
	seen, ok := s.appBackend.LastRequest("/api/roadmap")
	s.Require().True(ok)
	s.Equal(http.MethodPost, seen.Method)
	s.Equal("week=3", seen.RawQuery)
	s.JSONEq(`{"goal":"backend"}`, string(seen.Body))
	s.Empty(seen.Header.Get("Cookie"))
}

func (s *Suite) TestAppBackendRejectionLogsOut() {
	s.loginAs("u1")
	s.appBackend.On("/api/roadmap", identitytest.Reply{Status: http.StatusUnauthorized})

	resp := s.get("/api/v1/app/api/roadmap")
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)

	var body dto.ErrorResponse
	s.decode(resp, &body)
	s.Equal("../login/index.html", body.Redirect)
	s.False(s.status().Authenticated)
}

func (s *Suite) TestIdentityBackendPassThrough() {
	token := s.loginAs("u1")
	s.backend.On("/auth/profile", identitytest.Reply{Body: gin.H{"name": "Ada"}})

	resp := s.get("/api/v1/identity/auth/profile")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(token, s.backend.LastBearer("/auth/profile"))
}

func (s *Suite) TestLoginPageNeverRedirects() {
	resp := s.get("/login/index.html")

	s.Equal(http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(body), "login/index.html")
}

func (s *Suite) TestLoginThenDashboard() {
	s.loginAs("u1")
	s.backend.On("/auth/me", identitytest.Reply{Body: gin.H{"id": "u1"}})

	resp := s.get("/Dashboard/index.html")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(1, s.backend.MeCalls())

	status := s.status()
	s.True(status.Authenticated)
	s.Equal("u1", status.UserID)
	s.NotNil(status.ExpiresAt)
}

func (s *Suite) TestRevokedTokenRedirects() {
	s.loginAs("u1")
	s.backend.On("/auth/me", identitytest.Reply{Status: http.StatusUnauthorized})

	resp := s.get("/Dashboard/index.html")
	s.Equal(http.StatusFound, resp.StatusCode)

	status := s.status()
	s.False(status.Authenticated)
	s.Empty(status.UserID)
}

func (s *Suite) TestBackendOutageFailsOpen() {
	s.loginAs("u1")
	s.backend.On("/auth/me", identitytest.Reply{Drop: true})

	resp := s.get("/Dashboard/index.html")
	s.Equal(http.StatusOK, resp.StatusCode)

	status := s.status()
	s.True(status.Authenticated)
	s.True(status.BackgroundRetry)

	// a second page load does not start another loop
	s.get("/Dashboard/index.html")
	s.Equal(1, s.app.retrier.Active())
}

func (s *Suite) TestLogout() {
	s.loginAs("u1")

	resp := s.post("/api/v1/session/logout", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var body dto.SessionResponse
	s.decode(resp, &body)
	s.Equal("../index.html", body.Redirect)

	s.Equal(http.StatusFound, s.get("/Dashboard/index.html").StatusCode)
}

func (s *Suite) TestRegisterValidation() {
	resp := s.post("/api/v1/session/register", dto.RegisterRequest{Email: "bad"})
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)

	var body dto.ErrorResponse
	s.decode(resp, &body)
	s.Contains(body.Details, "first_name")
	s.Contains(body.Details, "email")
}

func (s *Suite) TestRegisterSetsPendingVerification() {
	s.backend.On("/auth/register", identitytest.Reply{Status: http.StatusCreated, Body: gin.H{"message": "created"}})

	resp := s.post("/api/v1/session/register", dto.RegisterRequest{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           "ada@example.com",
		Password:        "Password123",
		ConfirmPassword: "Password123",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var body dto.SessionResponse
	s.decode(resp, &body)
	s.Equal("../Verify Email/index.html", body.Redirect)
	s.True(s.status().PendingVerification)
}

func (s *Suite) TestOAuthRedirect() {
	resp := s.get("/api/v1/session/oauth/google")
	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal(s.backend.URL()+"/auth/google", resp.Header.Get("Location"))

	s.Equal(http.StatusNotFound, s.get("/api/v1/session/oauth/myspace").StatusCode)
}

func (s *Suite) TestMetricsEndpoint() {
	s.get("/Dashboard/index.html")

	resp := s.get("/metrics")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(body), "session_gate_decisions")
}

type testInfrastructure struct {
	store          repository.SessionStore
	logger         *zap.Logger
	metricsHandler http.Handler
	meterProvider  *metric.MeterProvider
}

func (i *testInfrastructure) Redis() *database.Redis {
	return nil
}

func (i *testInfrastructure) Store() repository.SessionStore {
	return i.store
}

func (i *testInfrastructure) Logger() *zap.Logger {
	return i.logger
}

func (i *testInfrastructure) MetricsHandler() http.Handler {
	return i.metricsHandler
}

func (i *testInfrastructure) MeterProvider() *metric.MeterProvider {
	return i.meterProvider
}

func (i *testInfrastructure) Shutdown(ctx context.Context) error {
	return observability.Shutdown(ctx, i.meterProvider, i.logger)
}
