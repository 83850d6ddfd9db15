package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fgcbrasil/fgcbrasil/gateway/internal/config"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/gate"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/identity"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/session"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/sessions"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/views"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// LoginRequest is the email/password sign-in form.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         config.SessionConfig
	registry    *session.Registry
	sessionsSvc *sessions.Service
	actions     *views.Actions
	// how long sign-in waits for the first profile before answering
	settle time.Duration
}

func NewAuthHandler(cfg config.SessionConfig, reg *session.Registry, s *sessions.Service, a *views.Actions) *AuthHandler {
	return &AuthHandler{cfg: cfg, registry: reg, sessionsSvc: s, actions: a, settle: 3 * time.Second}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/register", h.SignUp)
	a.POST("/logout", middleware.RequireSession(), h.Logout)
}

// Login signs in with email and password and opens a browser session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	client := h.registry.NewClient()
	id, err := client.SignIn(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		log.Infof("sign-in failed: %v", err)
		writeError(c, err)
		return
	}
	entry, err := h.open(c, client, id)
	if err != nil {
		writeError(c, err)
		return
	}
	h.respond(c, http.StatusOK, entry)
}

// SignUp creates the account and its profile record, then opens a session.
// When only the profile record fails the session is still opened and stays
// in finishing-registration.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var form views.RegisterForm
	if !bind(c, &form) {
		return
	}
	client := h.registry.NewClient()
	id, regErr := h.actions.Register(c.Request.Context(), client, form)
	if id == nil {
		writeError(c, regErr)
		return
	}
	entry, err := h.open(c, client, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if regErr != nil {
		writeError(c, regErr)
		return
	}
	h.respond(c, http.StatusCreated, entry)
}

// Logout signs the session out and forgets it.
func (h *AuthHandler) Logout(c *gin.Context) {
	entry, _ := middleware.EntryFrom(c)
	ctx := c.Request.Context()
	if entry.Client != nil {
		if err := entry.Client.SignOut(ctx); err != nil {
			log.Warnf("sign-out: %v", err)
		}
	}
	if err := h.sessionsSvc.Delete(ctx, entry.ID); err != nil {
		log.Errorf("failed to remove session: %v", err)
	}
	h.registry.Close(entry.ID)
	h.setCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Sessão encerrada."})
}

func (h *AuthHandler) open(c *gin.Context, client session.Client, id *identity.Identity) (*session.Entry, error) {
	ctx := c.Request.Context()
	sess, err := h.sessionsSvc.CreateSession(ctx, id.UID, id.Email, client.RefreshToken())
	if err != nil {
		log.Errorf("failed to create session: %v", err)
		_ = client.SignOut(context.WithoutCancel(ctx))
		return nil, err
	}
	entry := h.registry.Open(sess.ID, client)
	h.setCookie(c, sess.ID, int(h.sessionsSvc.TTL().Seconds()))
	return entry, nil
}

func (h *AuthHandler) setCookie(c *gin.Context, value string, maxAge int) {
	middleware.SetSessionCookie(c, h.cfg, value, maxAge)
}

// respond answers with the settled snapshot and the view the session lands on.
func (h *AuthHandler) respond(c *gin.Context, status int, entry *session.Entry) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.settle)
	defer cancel()
	snap, err := entry.Store.Settled(ctx)
	if err != nil {
		log.Debugf("session %s not settled: %v", entry.ID, err)
	}
	c.JSON(status, gin.H{
		"sessionId": entry.ID,
		"session":   snapshotJSON(snap),
		"view":      gate.Resolve(snap, gate.ViewDashboard),
	})
}
