package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// HealthHandler serves liveness and readiness.
type HealthHandler struct {
	started time.Time
	timeout time.Duration
	checks  map[string]Check
}

func NewHealthHandler(started time.Time) *HealthHandler {
	return &HealthHandler{started: started, timeout: 2 * time.Second, checks: map[string]Check{}}
}

// AddCheck makes readiness depend on name.
func (h *HealthHandler) AddCheck(name string, fn Check) {
	h.checks[name] = fn
}

func (h *HealthHandler) Register(r gin.IRoutes) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", h.Ready)
}

// Ready returns 200 only when every registered dependency answers.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for n := range h.checks {
		names = append(names, n)
	}
	sort.Strings(names)

	ready := true
	deps := map[string]bool{}
	for _, n := range names {
		err := h.checks[n](ctx)
		deps[n] = err == nil
		if err != nil {
			log.Warnf("readiness: %s: %v", n, err)
			ready = false
		}
	}

	body := gin.H{"status": "ready", "deps": deps, "uptime": time.Since(h.started).String()}
	if !ready {
		body["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
