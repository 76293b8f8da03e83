// Package identity is the HTTP client of the identity backend.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prperemyshlev/session-gateway/internal/domain"
	"github.com/prperemyshlev/session-gateway/internal/utils"
	"go.uber.org/zap"
)

const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
	mePath       = "/auth/me"
	refreshPath  = "/auth/refresh"
)

// Client defines the identity backend endpoints consumed by the gateway
type Client interface {
	Login(ctx context.Context, email, password string) (map[string]any, error)
	Register(ctx context.Context, name, email, password string) (map[string]any, error)
	// Me never turns an HTTP status into an error; only transport failures are returned.
	Me(ctx context.Context, token string) (*Response, error)
	Refresh(ctx context.Context, refreshToken string) (map[string]any, error)
	// OAuthURL is the full-page redirect target of a provider entry point
	OAuthURL(provider string) string
}

// Response is a raw identity backend answer
type Response struct {
	StatusCode int
	// Body is nil unless the backend answered with a JSON object
	Body map[string]any
}

// Success reports a 2xx status
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// APIError is returned by Login, Register and Refresh for non-2xx answers
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity backend returned %d: %s", e.StatusCode, e.Message)
}

// Options configures the client
type Options struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

type client struct {
	baseURL string
	rest    *resty.Client
}

// NewClient creates a new identity backend client
func NewClient(opts Options) Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")

	rest := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		rest.SetTimeout(opts.Timeout)
	}

	rest.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		fields := []zap.Field{
			zap.String("method", resp.Request.Method),
			zap.String("url", resp.Request.URL),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("latency", resp.Time()),
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			logger.Warn("identity call completed with server error", fields...)
		} else {
			logger.Debug("identity call completed", fields...)
		}
		return nil
	})
	rest.OnError(func(req *resty.Request, err error) {
		logger.Warn("identity call failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Error(err),
		)
	})

	return &client{baseURL: baseURL, rest: rest}
}

func (c *client) Login(ctx context.Context, email, password string) (map[string]any, error) {
	return c.post(ctx, loginPath, map[string]string{
		"email":    email,
		"password": password,
	}, "Login failed")
}

func (c *client) Register(ctx context.Context, name, email, password string) (map[string]any, error) {
	return c.post(ctx, registerPath, map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, "Registration failed")
}

func (c *client) Refresh(ctx context.Context, refreshToken string) (map[string]any, error) {
	return c.post(ctx, refreshPath, map[string]string{
		"refresh_token": refreshToken,
	}, "Token refresh failed")
}

func (c *client) Me(ctx context.Context, token string) (*Response, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get(mePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Body:       decodeObject(resp.Body()),
	}, nil
}

func (c *client) OAuthURL(provider string) string {
	return c.baseURL + "/auth/" + url.PathEscape(provider)
}

func (c *client) post(ctx context.Context, path string, body any, failure string) (map[string]any, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}

	payload := decodeObject(resp.Body())
	if !resp.IsSuccess() {
		message := utils.LookupString(payload, []string{"message", "error"})
		if message == "" {
			message = fmt.Sprintf("%s (status %d)", failure, resp.StatusCode())
		}
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: message}
	}

	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

func decodeObject(raw []byte) map[string]any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var body map[string]any
	if err := decoder.Decode(&body); err != nil {
		return nil
	}
	return body
}
