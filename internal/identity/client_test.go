package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/session-gateway/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newBackend(t *testing.T, setup func(r *gin.Engine)) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	setup(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string) Client {
	return NewClient(Options{BaseURL: baseURL, Timeout: 2 * time.Second, Logger: zaptest.NewLogger(t)})
}

func TestClient_Login_SendsCredentials(t *testing.T) {
	srv := newBackend(t, func(r *gin.Engine) {
		r.POST("/auth/login", func(c *gin.Context) {
			var req map[string]string
			require.NoError(t, c.ShouldBindJSON(&req))
			assert.Equal(t, "ada@example.com", req["email"])
			assert.Equal(t, "Password123", req["password"])
			c.JSON(http.StatusOK, gin.H{"access_token": "tok", "user": gin.H{"id": 7}})
		})
	})

	body, err := newTestClient(t, srv.URL).Login(context.Background(), "ada@example.com", "Password123")
	require.NoError(t, err)
	assert.Equal(t, "tok", body["access_token"])
	assert.IsType(t, map[string]any{}, body["user"])
}

func TestClient_Login_APIErrorCarriesMessage(t *testing.T) {
	srv := newBackend(t, func(r *gin.Engine) {
		r.POST("/auth/login", func(c *gin.Context) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": "invalid email or password"})
		})
	})

	_, err := newTestClient(t, srv.URL).Login(context.Background(), "a@b.co", "x")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid email or password", apiErr.Message)
}

func TestClient_Register_FallbackMessage(t *testing.T) {
	srv := newBackend(t, func(r *gin.Engine) {
		r.POST("/auth/register", func(c *gin.Context) {
			var req map[string]string
			require.NoError(t, c.ShouldBindJSON(&req))
			assert.Equal(t, "Ada Lovelace", req["name"])
			c.String(http.StatusInternalServerError, "boom")
		})
	})

	_, err := newTestClient(t, srv.URL).Register(context.Background(), "Ada Lovelace", "a@b.co", "Password123")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Registration failed (status 500)", apiErr.Message)
}

func TestClient_Me_SendsBearerAndNeverFailsOnStatus(t *testing.T) {
	srv := newBackend(t, func(r *gin.Engine) {
		r.GET("/auth/me", func(c *gin.Context) {
			if c.GetHeader("Authorization") != "Bearer good" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"id": "u1"})
		})
	})
	client := newTestClient(t, srv.URL)

	resp, err := client.Me(context.Background(), "good")
	require.NoError(t, err)
	assert.True(t, resp.Success())
	assert.Equal(t, "u1", resp.Body["id"])

	resp, err = client.Me(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, resp.Success())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestClient_Me_NonJSONBody(t *testing.T) {
	srv := newBackend(t, func(r *gin.Engine) {
		r.GET("/auth/me", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
	})

	resp, err := newTestClient(t, srv.URL).Me(context.Background(), "t")
	require.NoError(t, err)
	assert.Nil(t, resp.Body)
}

func TestClient_Me_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url).Me(context.Background(), "t")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestClient_Refresh(t *testing.T) {
	srv := newBackend(t, func(r *gin.Engine) {
		r.POST("/auth/refresh", func(c *gin.Context) {
			var req map[string]string
			require.NoError(t, c.ShouldBindJSON(&req))
			assert.Equal(t, "r1", req["refresh_token"])
			c.JSON(http.StatusOK, gin.H{"access_token": "new"})
		})
	})

	body, err := newTestClient(t, srv.URL).Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "new", body["access_token"])
}

func TestClient_OAuthURL(t *testing.T) {
	client := NewClient(Options{BaseURL: "https://id.example.com/"})
	assert.Equal(t, "https://id.example.com/auth/google", client.OAuthURL("google"))
}
