package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fgcbrasil/fgcbrasil/gateway/internal/gate"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/session"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/views"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/metrics"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// SessionHandler serves the session snapshot, its live stream, the menu and
// the gated views.
type SessionHandler struct {
	loader    *views.Loader
	keepAlive time.Duration
}

func NewSessionHandler(l *views.Loader) *SessionHandler {
	return &SessionHandler{loader: l, keepAlive: 25 * time.Second}
}

func (h *SessionHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/session", h.Get)
	rg.GET("/session/events", middleware.RequireSession(), h.Events)
	rg.GET("/nav", h.Nav)
	rg.GET("/views/:name", h.View)
}

// Get returns the current snapshot; anonymous callers are signed out.
func (h *SessionHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, snapshotJSON(snapshotOf(c)))
}

// Nav returns the menu for the current snapshot.
func (h *SessionHandler) Nav(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": gate.Menu(snapshotOf(c))})
}

// View resolves the requested view through the gate and loads its data.
func (h *SessionHandler) View(c *gin.Context) {
	snap := snapshotOf(c)
	requested := gate.ParseView(c.Param("name"))
	v := gate.Resolve(snap, requested)
	metrics.ViewResolutions.WithLabelValues(string(v), strconv.FormatBool(v != requested)).Inc()

	caller := callerOf(c)
	caller.Snapshot = snap
	data, err := h.loader.Load(c.Request.Context(), caller, v, views.Params{Org: c.Query("org")})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requested": requested, "view": v, "data": data})
}

// Events streams every snapshot change as server-sent events until the
// client goes away or the session store stops.
func (h *SessionHandler) Events(c *gin.Context) {
	entry, _ := middleware.EntryFrom(c)
	updates := make(chan session.Snapshot, 1)
	unsub := entry.Store.Subscribe(func(s session.Snapshot) { keepLatest(updates, s) })
	defer unsub()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("snapshot", snapshotJSON(entry.Store.Snapshot()))
	c.Writer.Flush()

	ping := time.NewTicker(h.keepAlive)
	defer ping.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case s := <-updates:
			c.SSEvent("snapshot", snapshotJSON(s))
			return true
		case <-ping.C:
			c.SSEvent("ping", strconv.FormatInt(time.Now().Unix(), 10))
			return true
		case <-entry.Store.Done():
			c.SSEvent("closed", "")
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// keepLatest replaces any unsent snapshot with s; snapshots are whole states
// so only the newest matters. Only the store goroutine sends.
func keepLatest(ch chan session.Snapshot, s session.Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
