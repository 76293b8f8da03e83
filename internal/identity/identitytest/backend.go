// Package identitytest provides a scriptable identity backend for tests.
package identitytest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var signingKey = []byte("identitytest-signing-key")

// Reply is a scripted answer of one endpoint
type Reply struct {
	Status int
	Body   gin.H
	// Drop closes the connection without answering
	Drop bool
}

// Backend is an httptest identity backend. Every endpoint answers 404 until scripted.
// Paths outside /auth answer to any method, so it also stands in for a resource backend.
type Backend struct {
	server *httptest.Server

	mu       sync.Mutex
	replies  map[string]Reply
	tokens   map[string]string
	requests map[string]Request

	meCalls atomic.Int64
}

// NewBackend starts a backend that is closed when the test ends
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &Backend{
		replies:  make(map[string]Reply),
		tokens:   make(map[string]string),
		requests: make(map[string]Request),
	}

	router := gin.New()
	router.POST("/auth/login", b.handle("/auth/login"))
	router.POST("/auth/register", b.handle("/auth/register"))
	router.POST("/auth/refresh", b.handle("/auth/refresh"))
	router.GET("/auth/me", func(c *gin.Context) {
		b.meCalls.Add(1)
		b.handle("/auth/me")(c)
	})
	router.NoRoute(func(c *gin.Context) {
		b.handle(c.Request.URL.Path)(c)
	})

	b.server = httptest.NewServer(router)
	t.Cleanup(b.server.Close)
	return b
}

// URL is the base URL of the backend
func (b *Backend) URL() string {
	return b.server.URL
}

// On scripts the reply of an endpoint path such as /auth/me
func (b *Backend) On(path string, reply Reply) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies[path] = reply
}

// MeCalls returns how many times /auth/me was called
func (b *Backend) MeCalls() int {
	return int(b.meCalls.Load())
}

// Request is what the backend saw of one call
type Request struct {
	Method   string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// LastRequest returns the latest request to path
func (b *Backend) LastRequest(path string) (Request, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.requests[path]
	return req, ok
}

// LastBearer returns the bearer token of the latest call to path
func (b *Backend) LastBearer(path string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens[path]
}

func (b *Backend) handle(path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)

		b.mu.Lock()
		reply, ok := b.replies[path]
		b.tokens[path] = bearer(c.GetHeader("Authorization"))
		b.requests[path] = Request{
			Method:   c.Request.Method,
			RawQuery: c.Request.URL.RawQuery,
			Header:   c.Request.Header.Clone(),
			Body:     body,
		}
		b.mu.Unlock()

		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
			return
		}

		if reply.Drop {
			conn, _, err := c.Writer.Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}

		status := reply.Status
		if status == 0 {
			status = http.StatusOK
		}
		c.JSON(status, reply.Body)
	}
}

func bearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

// Token issues a signed JWT with the given subject and lifetime. An empty subject omits the claim.
func Token(t testing.TB, subject string, ttl time.Duration) string {
	t.Helper()

	claims := jwt.MapClaims{
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	}
	if subject != "" {
		claims["sub"] = subject
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}
