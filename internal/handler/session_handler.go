package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/session-gateway/internal/domain"
	"github.com/prperemyshlev/session-gateway/internal/dto"
	"github.com/prperemyshlev/session-gateway/internal/identity"
	"github.com/prperemyshlev/session-gateway/internal/service"
	"github.com/prperemyshlev/session-gateway/internal/utils"
	"go.uber.org/zap"
)

// SessionHandler handles the session JSON API used by the page scripts
type SessionHandler struct {
	sessionService service.SessionService
	logger         *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService service.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		logger:         logger,
	}
}

// Status reports the state of the current session
// @Summary Session status
// @Tags session
// @Produce json
// @Success 200 {object} dto.SessionResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /session [get]
func (h *SessionHandler) Status(c *gin.Context) {
	sid, err := currentSessionID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response, err := h.sessionService.Status(c.Request.Context(), sid)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// Login handles user login
// @Summary Login
// @Description Authenticate against the identity backend and bind the credential to the session
// @Tags session
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login request"
// @Success 200 {object} dto.SessionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /session/login [post]
func (h *SessionHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	sid, err := currentSessionID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response, err := h.sessionService.Login(c.Request.Context(), sid, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// Register handles account creation
// @Summary Register
// @Tags session
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Registration form"
// @Success 201 {object} dto.SessionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /session/register [post]
func (h *SessionHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	sid, err := currentSessionID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response, err := h.sessionService.Register(c.Request.Context(), sid, utils.RegistrationForm{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// Refresh exchanges the stored refresh token for a new access token
// @Summary Refresh
// @Tags session
// @Produce json
// @Success 200 {object} dto.SessionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /session/refresh [post]
func (h *SessionHandler) Refresh(c *gin.Context) {
	sid, err := currentSessionID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response, err := h.sessionService.Refresh(c.Request.Context(), sid)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// Logout clears the session
// @Summary Logout
// @Tags session
// @Produce json
// @Success 200 {object} dto.SessionResponse
// @Router /session/logout [post]
func (h *SessionHandler) Logout(c *gin.Context) {
	sid, err := currentSessionID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response, err := h.sessionService.Logout(c.Request.Context(), sid)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// OAuth redirects the browser to the identity backend entry point of a provider
// @Summary OAuth entry
// @Tags session
// @Param provider path string true "Provider name"
// @Success 302
// @Failure 404 {object} dto.ErrorResponse
// @Router /session/oauth/{provider} [get]
func (h *SessionHandler) OAuth(c *gin.Context) {
	target, err := h.sessionService.OAuthRedirect(c.Param("provider"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Redirect(http.StatusFound, target)
}

func (h *SessionHandler) writeError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	var apiErr *identity.APIError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: "Please correct the highlighted fields",
			Details: validationErr.Fields,
		})

	case errors.As(err, &apiErr):
		status := apiErr.StatusCode
		if status < http.StatusBadRequest || status >= http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		c.JSON(status, dto.ErrorResponse{
			Error:   http.StatusText(status),
			Message: apiErr.Message,
		})

	case errors.Is(err, domain.ErrNoRefreshToken):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: err.Error(),
		})

	case errors.Is(err, domain.ErrUnknownProvider):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "Not found",
			Message: err.Error(),
		})

	case errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrIncompleteAuthResponse):
		h.logger.Warn("Identity backend call failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{
			Error:   "Bad gateway",
			Message: err.Error(),
		})

	default:
		h.logger.Error("Session request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:   "Service unavailable",
			Message: "Session storage is unavailable",
		})
	}
}
