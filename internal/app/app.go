package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/session-gateway/internal/appbackend"
	"github.com/prperemyshlev/session-gateway/internal/config"
	"github.com/prperemyshlev/session-gateway/internal/handler"
	"github.com/prperemyshlev/session-gateway/internal/identity"
	"github.com/prperemyshlev/session-gateway/internal/service"
	"github.com/prperemyshlev/session-gateway/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	infra   Infrastructure
	config  *config.Config
	router  *gin.Engine
	server  *http.Server
	retrier *service.BackgroundRetrier
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	logger := infra.Logger()

	metrics, err := observability.NewSessionMetrics(infra.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to register session metrics: %w", err)
	}

	identityClient := identity.NewClient(identity.Options{
		BaseURL: cfg.Identity.BaseURL,
		Timeout: cfg.Identity.Timeout.Duration,
		Logger:  logger.Named("identity"),
	})

	retrier := service.NewBackgroundRetrier(metrics, logger.Named("retry"))

	authenticator := service.NewSessionAuthenticator(
		infra.Store(),
		identityClient,
		retrier,
		metrics,
		logger.Named("auth"),
		service.AuthenticatorOptions{
			LoginURL:         cfg.Pages.LoginURL,
			LoginPatterns:    cfg.Pages.LoginPatterns,
			RetryInterval:    cfg.Retry.Interval.Duration,
			RetryMaxAttempts: cfg.Retry.MaxAttempts,
		},
	)

	sessionService := service.NewSessionService(
		authenticator,
		infra.Store(),
		identityClient,
		retrier,
		logger.Named("session"),
		service.FlowOptions{
			HomeURL:        cfg.Pages.HomeURL,
			VerifyEmailURL: cfg.Pages.VerifyEmailURL,
			LogoutURL:      cfg.Pages.LogoutURL,
			OAuthProviders: cfg.OAuth.Providers,
		},
	)

	sessionHandler := handler.NewSessionHandler(sessionService, logger)

	appBackend := service.NewBackendProxy("app", authenticator, appbackend.NewClient(appbackend.Options{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout.Duration,
		Logger:  logger.Named("app_backend"),
	}), retrier, logger.Named("proxy"))
	identityBackend := service.NewBackendProxy("identity", authenticator, appbackend.NewClient(appbackend.Options{
		BaseURL: cfg.Identity.BaseURL,
		Timeout: cfg.Identity.Timeout.Duration,
		Logger:  logger.Named("identity_backend"),
	}), retrier, logger.Named("proxy"))
	healthChecker := NewHealthChecker(infra.Store())

	var rateLimiter *service.RateLimiter
	if infra.Redis() != nil {
		rateLimiter = service.NewRateLimiter(infra.Redis(), cfg.RateLimit.Requests, cfg.RateLimit.Window.Duration)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.LoggerMiddleware(logger))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	cookies := handler.NewCookieStore(handler.CookieOptions{
		Name:   cfg.Session.CookieName,
		Secret: cfg.Session.Secret,
		MaxAge: cfg.Session.TTL.Duration,
		Secure: cfg.Session.Secure,
	})
	sessionMiddleware := handler.SessionMiddleware(cookies, cfg.Session.CookieName, logger)

	setupRoutes(router, routeDeps{
		cfg:               cfg,
		sessionHandler:    sessionHandler,
		appHandler:        handler.NewBackendHandler(appBackend, cfg.Pages.LoginURL, logger),
		identityHandler:   handler.NewBackendHandler(identityBackend, cfg.Pages.LoginURL, logger),
		authenticator:     authenticator,
		sessionMiddleware: sessionMiddleware,
		rateLimiter:       rateLimiter,
		healthChecker:     healthChecker,
		metricsHandler:    infra.MetricsHandler(),
		logger:            logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:   infra,
		config:  cfg,
		router:  router,
		server:  srv,
		retrier: retrier,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

type routeDeps struct {
	cfg               *config.Config
	sessionHandler    *handler.SessionHandler
	appHandler        *handler.BackendHandler
	identityHandler   *handler.BackendHandler
	authenticator     service.SessionAuthenticator
	sessionMiddleware gin.HandlerFunc
	rateLimiter       *service.RateLimiter
	healthChecker     *HealthChecker
	metricsHandler    http.Handler
	logger            *zap.Logger
}

func setupRoutes(router *gin.Engine, deps routeDeps) {
	router.GET("/metrics", observability.PrometheusHandler(deps.metricsHandler))
	router.GET("/health", deps.healthChecker.Handler)

	limited := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if deps.rateLimiter == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{
			handler.RateLimitMiddleware(deps.rateLimiter, deps.cfg.RateLimit.Requests, handler.PathAndIPKey, deps.logger),
			h,
		}
	}

	api := router.Group("/api/v1")
	{
		session := api.Group("/session", deps.sessionMiddleware)
		{
			session.GET("", deps.sessionHandler.Status)
			session.POST("/login", limited(deps.sessionHandler.Login)...)
			session.POST("/register", limited(deps.sessionHandler.Register)...)
			session.POST("/refresh", deps.sessionHandler.Refresh)
			session.POST("/logout", deps.sessionHandler.Logout)
			session.GET("/oauth/:provider", deps.sessionHandler.OAuth)
		}

		api.Any("/app/*path", deps.sessionMiddleware, deps.appHandler.Forward)
		api.Any("/identity/*path", deps.sessionMiddleware, deps.identityHandler.Forward)
	}

	// Everything else is a page load
	router.NoRoute(
		deps.sessionMiddleware,
		handler.PageGateMiddleware(deps.authenticator, deps.cfg.Pages.Protected, deps.logger),
		handler.PagesHandler(deps.cfg.Pages.Root),
	)
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
			zap.String("session_store", a.config.Session.Store),
			zap.String("identity_url", a.config.Identity.BaseURL),
		)

		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	serverErr := a.server.Shutdown(ctx)

	// Retry loops write to the store, so they stop before it closes
	a.retrier.Close()

	err := errors.Join(serverErr, a.infra.Shutdown(ctx))
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
