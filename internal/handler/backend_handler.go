package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/session-gateway/internal/appbackend"
	"github.com/prperemyshlev/session-gateway/internal/domain"
	"github.com/prperemyshlev/session-gateway/internal/dto"
	"github.com/prperemyshlev/session-gateway/internal/service"
	"go.uber.org/zap"
)

const maxForwardBody = 10 << 20

// BackendHandler relays page script calls to a backend on behalf of the session
type BackendHandler struct {
	proxy    *service.BackendProxy
	loginURL string
	logger   *zap.Logger
}

// NewBackendHandler creates a new backend handler. loginURL is returned to the page when the session must log in again.
func NewBackendHandler(proxy *service.BackendProxy, loginURL string, logger *zap.Logger) *BackendHandler {
	return &BackendHandler{
		proxy:    proxy,
		loginURL: loginURL,
		logger:   logger,
	}
}

// Forward relays the request below the route's *path parameter
// @Summary Authenticated backend call
// @Tags backend
// @Success 200
// @Failure 401 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /app/{path} [get]
func (h *BackendHandler) Forward(c *gin.Context) {
	sid, err := currentSessionID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxForwardBody))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{
			Error:   "Request entity too large",
			Message: err.Error(),
		})
		return
	}

	resp, err := h.proxy.Forward(c.Request.Context(), sid, appbackend.Request{
		Method:   c.Request.Method,
		Path:     c.Param("path"),
		RawQuery: c.Request.URL.RawQuery,
		Header:   c.Request.Header,
		Body:     body,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	for name, values := range resp.Header {
		for _, v := range values {
			c.Writer.Header().Add(name, v)
		}
	}
	c.Status(resp.StatusCode)
	if _, err := c.Writer.Write(resp.Body); err != nil {
		h.logger.Debug("Failed to relay backend response", zap.Error(err))
	}
}

func (h *BackendHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated), errors.Is(err, domain.ErrInvalidCredential):
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:    "Unauthorized",
			Message:  "Authentication required",
			Redirect: h.loginURL,
		})

	case errors.Is(err, domain.ErrNetwork):
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{
			Error:   "Bad gateway",
			Message: err.Error(),
		})

	default:
		h.logger.Error("Backend request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:   "Service unavailable",
			Message: "Session storage is unavailable",
		})
	}
}
