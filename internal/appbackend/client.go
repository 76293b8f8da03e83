// Package appbackend forwards authenticated calls of the page scripts to a resource backend.
package appbackend

import (
	"context"
	"fmt"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prperemyshlev/session-gateway/internal/domain"
	"go.uber.org/zap"
)

// Request is one call forwarded on behalf of a session
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// Response is the upstream answer, relayed as-is
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client sends requests to one backend with a bearer token
type Client interface {
	Do(ctx context.Context, token string, req Request) (*Response, error)
}

// Options configures the client
type Options struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Headers that belong to a single connection or to the gateway session are never relayed
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Host":                {},
	"Content-Length":      {},
	"Authorization":       {},
	"Cookie":              {},
	"Set-Cookie":          {},
}

type client struct {
	rest   *resty.Client
	logger *zap.Logger
}

// NewClient creates a client for the backend at opts.BaseURL
func NewClient(opts Options) Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rest := resty.New().SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	if opts.Timeout > 0 {
		rest.SetTimeout(opts.Timeout)
	}
	// Redirects are relayed to the browser instead of being followed here
	rest.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}))

	rest.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug("backend call completed",
			zap.String("method", resp.Request.Method),
			zap.String("url", resp.Request.URL),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("latency", resp.Time()),
		)
		return nil
	})

	return &client{rest: rest, logger: logger}
}

func (c *client) Do(ctx context.Context, token string, req Request) (*Response, error) {
	r := c.rest.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryString(req.RawQuery)

	for name, values := range req.Header {
		if relayed(name) {
			for _, v := range values {
				r.Header.Add(name, v)
			}
		}
	}
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, "/"+strings.TrimLeft(req.Path, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}

	header := make(http.Header, len(resp.Header()))
	for name, values := range resp.Header() {
		if relayed(name) {
			header[name] = append([]string(nil), values...)
		}
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Header:     header,
		Body:       resp.Body(),
	}, nil
}

func relayed(name string) bool {
	_, hop := hopHeaders[textproto.CanonicalMIMEHeaderKey(name)]
	return !hop
}
