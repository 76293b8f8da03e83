package handler

import (
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/prperemyshlev/session-gateway/internal/domain"
	"github.com/prperemyshlev/session-gateway/internal/dto"
	"github.com/prperemyshlev/session-gateway/internal/service"
	"go.uber.org/zap"
)

const (
	// SessionIDKey is the gin context key holding the session id
	SessionIDKey = "session_id"
	// GateDecisionKey is the gin context key holding the page gate decision
	GateDecisionKey = "gate_decision"

	sessionIDValue = "sid"
)

// CookieOptions configures the session cookie
type CookieOptions struct {
	Name   string
	Secret string
	MaxAge time.Duration
	Secure bool
}

// NewCookieStore creates the signed cookie store that carries the session id
func NewCookieStore(opts CookieOptions) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(opts.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// SessionMiddleware makes sure every request carries a session id, issuing one when needed
func SessionMiddleware(store sessions.Store, cookieName string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := store.Get(c.Request, cookieName)
		if err != nil {
			// Tampered or rotated-key cookie; a fresh session is issued below
			logger.Debug("Discarding unreadable session cookie", zap.Error(err))
		}

		sessionID, _ := sess.Values[sessionIDValue].(string)
		if _, parseErr := uuid.Parse(sessionID); parseErr != nil {
			sessionID = uuid.NewString()
			sess.Values[sessionIDValue] = sessionID
			if err := sess.Save(c.Request, c.Writer); err != nil {
				logger.Error("Failed to save session cookie", zap.Error(err))
				c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
					Error:   "Internal server error",
					Message: "Failed to start session",
				})
				c.Abort()
				return
			}
		}

		c.Set(SessionIDKey, sessionID)
		c.Next()
	}
}

// PageGateMiddleware runs RequireAuth for pages under the protected prefixes.
// Unclean paths are redirected to their clean form first, so the gate always
// judges the same path the file server would serve.
func PageGateMiddleware(auth service.SessionAuthenticator, protected []string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Request.URL.Path
		clean := cleanPagePath(raw)
		if clean != raw {
			target := url.URL{Path: clean, RawQuery: c.Request.URL.RawQuery}
			c.Redirect(http.StatusMovedPermanently, target.String())
			c.Abort()
			return
		}

		if !isProtected(clean, protected) {
			c.Next()
			return
		}

		page := domain.SessionContext{
			SessionID: c.GetString(SessionIDKey),
			Path:      clean,
		}

		decision, err := auth.RequireAuth(c.Request.Context(), page, service.RequireAuthOptions{})
		if err != nil {
			logger.Error("Page gate failed", zap.String("path", clean), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
				Error:   "Service unavailable",
				Message: "Session storage is unavailable",
			})
			c.Abort()
			return
		}

		c.Set(GateDecisionKey, decision)

		if decision.State == domain.GateRedirect {
			c.Redirect(http.StatusFound, resolveRedirect(clean, decision.RedirectURL))
			c.Abort()
			return
		}

		c.Next()
	}
}

// cleanPagePath collapses duplicate slashes and dot segments, keeping a trailing slash
func cleanPagePath(p string) string {
	clean := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && clean != "/" {
		clean += "/"
	}
	return clean
}

// isProtected matches prefixes case-insensitively
func isProtected(p string, protected []string) bool {
	lower := strings.ToLower(p)
	for _, prefix := range protected {
		if prefix != "" && strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

// resolveRedirect resolves a page-relative target such as ../login/index.html.
// Pages live one directory deep, so the target resolves against the top-level
// section of the current path.
func resolveRedirect(current, target string) string {
	if strings.HasPrefix(target, "/") || strings.Contains(target, "://") {
		return target
	}

	parts := []string{""}
	trimmed := strings.TrimPrefix(current, "/")
	if section, _, nested := strings.Cut(trimmed, "/"); nested {
		parts = append(parts, section)
	}
	for _, segment := range strings.Split(target, "/") {
		switch segment {
		case ".", "":
		case "..":
			if len(parts) > 1 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, segment)
		}
	}

	resolved := strings.Join(parts, "/")
	if !strings.HasPrefix(resolved, "/") {
		resolved = "/" + resolved
	}
	return (&url.URL{Path: resolved}).String()
}

// currentSessionID reads the id set by SessionMiddleware
func currentSessionID(c *gin.Context) (string, error) {
	id := c.GetString(SessionIDKey)
	if id == "" {
		return "", errors.New("session id not found in context")
	}
	return id, nil
}
