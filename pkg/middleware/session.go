package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/fgcbrasil/fgcbrasil/gateway/internal/config"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/identity"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/session"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/logger"
	"github.com/gin-gonic/gin"
)

// gin context keys
const (
	keySessionID = "sid"
	keyEntry     = "session"
)

// Sessions is the part of the session registry the middleware depends on.
type Sessions interface {
	Get(ctx context.Context, sid string) (*session.Entry, error)
}

var sessionLog = logger.Named("middleware.session")

// SessionID extracts the browser session id from the cookie, or from an
// "Authorization: Bearer <sid>" header for non-browser clients.
func SessionID(c *gin.Context, cookieName string) string {
	if v, err := c.Cookie(cookieName); err == nil && v != "" {
		return v
	}
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// SetSessionCookie writes the session cookie. A negative maxAge clears it.
func SetSessionCookie(c *gin.Context, cfg config.SessionConfig, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.CookieName, value, maxAge, "/", "", cfg.CookieSecure, true)
}

// SessionMiddleware attaches the live session entry to the request when the
// request carries a known session id. Unknown ids and sessions whose refresh
// token was revoked continue as anonymous requests and the stale cookie is
// dropped. Any other failure, provider outages included, answers 503 and
// leaves the cookie alone.
func SessionMiddleware(reg Sessions, cfg config.SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := SessionID(c, cfg.CookieName)
		if sid == "" {
			c.Next()
			return
		}

		entry, err := reg.Get(c.Request.Context(), sid)
		switch {
		case err == nil:
			c.Set(keySessionID, sid)
			c.Set(keyEntry, entry)
		case errors.Is(err, session.ErrNotFound), identity.Revoked(err):
			sessionLog.Debugf("dropping session: %v", err)
			SetSessionCookie(c, cfg, "", -1)
		default:
			sessionLog.Errorf("session lookup failed: %v", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
			return
		}
		c.Next()
	}
}

// RequireSession rejects requests that SessionMiddleware left anonymous.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := EntryFrom(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
			return
		}
		c.Next()
	}
}

// EntryFrom returns the session entry attached by SessionMiddleware.
func EntryFrom(c *gin.Context) (*session.Entry, bool) {
	v, ok := c.Get(keyEntry)
	if !ok {
		return nil, false
	}
	e, ok := v.(*session.Entry)
	return e, ok && e != nil
}

// SessionIDFrom returns the session id attached by SessionMiddleware.
func SessionIDFrom(c *gin.Context) string {
	return c.GetString(keySessionID)
}

// rateKey is the client IP. The limiters run before session resolution,
// so nobody is signed in yet.
func rateKey(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
