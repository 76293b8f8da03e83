package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server    ServerConfig    `env:",prefix=SERVER_"`
	Redis     RedisConfig     `env:",prefix=REDIS_"`
	Identity  IdentityConfig  `env:",prefix=IDENTITY_"`
	Backend   BackendConfig   `env:",prefix=APP_BACKEND_"`
	Session   SessionConfig   `env:",prefix=SESSION_"`
	Retry     RetryConfig     `env:",prefix=RETRY_"`
	Pages     PagesConfig     `env:",prefix=PAGES_"`
	OAuth     OAuthConfig     `env:",prefix=OAUTH_"`
	RateLimit RateLimitConfig `env:",prefix=RATE_LIMIT_"`
	CORS      CORSConfig      `env:",prefix=CORS_"`
	Env       string          `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
	// TrustedProxies may set X-Forwarded-For; empty means the peer address is the client
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
	PoolSize int    `env:"POOL_SIZE,default=10"`
}

type IdentityConfig struct {
	BaseURL string   `env:"BASE_URL,default=https://naviproai-1.onrender.com"`
	Timeout Duration `env:"TIMEOUT,default=10s"`
}

// BackendConfig is the resource backend reached through /api/v1/app
type BackendConfig struct {
	BaseURL string   `env:"URL,default=https://backend-b7ak.onrender.com"`
	Timeout Duration `env:"TIMEOUT,default=30s"`
}

type SessionConfig struct {
	Secret     string   `env:"SECRET,required"`
	CookieName string   `env:"COOKIE_NAME,default=navi_session"`
	TTL        Duration `env:"TTL,default=7d"`
	// Store is "redis" or "memory"
	Store  string `env:"STORE,default=redis"`
	Secure bool   `env:"SECURE,default=true"`
}

type RetryConfig struct {
	Interval    Duration `env:"INTERVAL,default=5s"`
	MaxAttempts int      `env:"MAX_ATTEMPTS,default=6"`
}

type PagesConfig struct {
	Root           string   `env:"ROOT,default=./web"`
	LoginURL       string   `env:"LOGIN_URL,default=../login/index.html"`
	HomeURL        string   `env:"HOME_URL,default=../Dashboard/index.html"`
	LogoutURL      string   `env:"LOGOUT_URL,default=../index.html"`
	VerifyEmailURL string   `env:"VERIFY_EMAIL_URL,default=../Verify Email/index.html"`
	Protected      []string `env:"PROTECTED,default=/Dashboard/,/roadmap/,/Course Recommendation/,/onboarding/,/Navi/"`
	LoginPatterns  []string `env:"LOGIN_PATTERNS,default=login,register,create-account,create account,callback.html,verify"`
}

type OAuthConfig struct {
	Providers []string `env:"PROVIDERS,default=google"`
}

type RateLimitConfig struct {
	Requests int      `env:"REQUESTS,default=10"`
	Window   Duration `env:"WINDOW,default=1m"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom loads configuration from the given lookuper
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var config Config

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &config,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	// Cookie signing key
	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 characters long")
	}

	switch c.Session.Store {
	case "redis", "memory":
	default:
		return fmt.Errorf("SESSION_STORE must be redis or memory, got %q", c.Session.Store)
	}

	if c.Retry.MaxAttempts <= 0 || c.Retry.Interval.Duration <= 0 {
		return fmt.Errorf("RETRY_INTERVAL and RETRY_MAX_ATTEMPTS must be positive")
	}

	if !strings.HasPrefix(c.Identity.BaseURL, "http://") && !strings.HasPrefix(c.Identity.BaseURL, "https://") {
		return fmt.Errorf("IDENTITY_BASE_URL must be an http(s) URL, got %q", c.Identity.BaseURL)
	}

	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("APP_BACKEND_URL must be an http(s) URL, got %q", c.Backend.BaseURL)
	}

	return nil
}
