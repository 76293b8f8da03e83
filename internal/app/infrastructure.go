package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prperemyshlev/session-gateway/internal/config"
	"github.com/prperemyshlev/session-gateway/internal/repository"
	"github.com/prperemyshlev/session-gateway/pkg/database"
	"github.com/prperemyshlev/session-gateway/pkg/observability"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

const serviceName = "session-gateway"

type Infrastructure interface {
	// Redis is nil when sessions are kept in memory
	Redis() *database.Redis
	Store() repository.SessionStore
	Logger() *zap.Logger
	MetricsHandler() http.Handler
	MeterProvider() *metric.MeterProvider

	Shutdown(ctx context.Context) error
}

type infrastructure struct {
	redis          *database.Redis
	store          repository.SessionStore
	logger         *zap.Logger
	metricsHandler http.Handler
	meterProvider  *metric.MeterProvider
}

var _ Infrastructure = &infrastructure{}

func NewInfrastructure(ctx context.Context, cfg config.Config) (*infrastructure, error) {
	i := &infrastructure{}

	logger, err := observability.InitLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	i.logger = logger

	if cfg.Session.Store == repository.DriverRedis {
		redis, err := database.NewRedis(ctx, database.RedisOptions{
			Addr:     cfg.Redis.Address(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		i.redis = redis
	} else {
		logger.Warn("Sessions are kept in memory and will not survive a restart")
	}

	store, err := repository.NewSessionStore(cfg.Session.Store, i.redis, cfg.Session.TTL.Duration)
	if err != nil {
		i.closeRedis()
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}
	i.store = store

	meterProvider, metricsHandler, err := observability.InitTelemetry(serviceName)
	if err != nil {
		i.closeRedis()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	i.meterProvider = meterProvider
	i.metricsHandler = metricsHandler

	return i, nil
}

func (i *infrastructure) Redis() *database.Redis {
	return i.redis
}

func (i *infrastructure) Store() repository.SessionStore {
	return i.store
}

func (i *infrastructure) Logger() *zap.Logger {
	return i.logger
}

func (i *infrastructure) MetricsHandler() http.Handler {
	return i.metricsHandler
}

func (i *infrastructure) MeterProvider() *metric.MeterProvider {
	return i.meterProvider
}

func (i *infrastructure) closeRedis() error {
	if i.redis == nil {
		return nil
	}
	return i.redis.Close()
}

func (i *infrastructure) Shutdown(ctx context.Context) error {
	errs := make(chan error, 2)

	go func() { errs <- i.closeRedis() }()
	go func() { errs <- observability.Shutdown(ctx, i.meterProvider, i.logger) }()

	err := errors.Join(<-errs, <-errs)

	// Sync on a console logger fails with EINVAL on some platforms
	_ = i.logger.Sync()

	return err
}
