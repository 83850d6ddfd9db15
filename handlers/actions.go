package handlers

import (
	"context"
	"net/http"

	"github.com/fgcbrasil/fgcbrasil/gateway/internal/backend"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/views"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// ActionsHandler exposes the view forms as POST /actions/... endpoints.
type ActionsHandler struct {
	actions *views.Actions
}

func NewActionsHandler(a *views.Actions) *ActionsHandler {
	return &ActionsHandler{actions: a}
}

type confirmRequest struct {
	Confirm bool `json:"confirm"`
}

type raffleEntryRequest struct {
	PlayerID string `json:"jogadorId"`
}

type missionRequest struct {
	MissionID string `json:"missionId" binding:"required"`
}

type contributionRequest struct {
	Amount float64 `json:"valor"`
}

// Register routes under /actions; every action needs a session.
func (h *ActionsHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/actions", middleware.RequireSession())
	a.POST("/profile", action(h.actions.UpdateProfile))
	a.POST("/championships", action(h.actions.CreateChampionship))
	a.POST("/championships/finalize", action(h.actions.FinalizeChampionship))
	a.POST("/championships/finalize-custom", action(h.actions.FinalizeChampionshipCustom))
	a.POST("/organizations", action(h.actions.CreateOrganization))
	a.POST("/organizations/:id", h.UpdateOrganization)
	a.POST("/donations", action(h.actions.RegisterDonation))
	a.POST("/ranking/thresholds", action(h.actions.SetRankingThresholds))
	a.POST("/ranking/reset", action(func(ctx context.Context, c views.Caller, r confirmRequest) (backend.Ack, error) {
		return h.actions.ResetRanking(ctx, c, r.Confirm)
	}))
	a.POST("/rifa/entries", action(func(ctx context.Context, c views.Caller, r raffleEntryRequest) (backend.Ack, error) {
		return h.actions.AddRaffleEntry(ctx, c, r.PlayerID)
	}))
	a.POST("/rifa/reset", action(func(ctx context.Context, c views.Caller, r confirmRequest) (backend.Ack, error) {
		return h.actions.ResetRaffle(ctx, c, r.Confirm)
	}))
	a.POST("/missions/open", h.OpenMission)
	a.POST("/missions/complete", action(func(ctx context.Context, c views.Caller, r missionRequest) (backend.Ack, error) {
		return h.actions.CompleteMission(ctx, c, r.MissionID)
	}))
	a.POST("/contributions", action(func(ctx context.Context, c views.Caller, r contributionRequest) (backend.Ack, error) {
		return h.actions.Contribute(ctx, c, r.Amount)
	}))
	a.POST("/support", action(h.actions.SendSupportTicket))
}

// action binds the JSON body into F, runs fn for the calling session and
// answers with the backend acknowledgement.
func action[F any](fn func(context.Context, views.Caller, F) (backend.Ack, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var form F
		if !bind(c, &form) {
			return
		}
		ack, err := fn(c.Request.Context(), callerOf(c), form)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ack)
	}
}

// UpdateOrganization edits the organization named in the path.
func (h *ActionsHandler) UpdateOrganization(c *gin.Context) {
	var o backend.Organization
	if !bind(c, &o) {
		return
	}
	o.ID = c.Param("id")
	ack, err := h.actions.UpdateOrganization(c.Request.Context(), callerOf(c), o)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// OpenMission records the opened link and returns the mission to follow.
func (h *ActionsHandler) OpenMission(c *gin.Context) {
	var r missionRequest
	if !bind(c, &r) {
		return
	}
	m, err := h.actions.OpenMission(c.Request.Context(), callerOf(c), r.MissionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mission": m, "url": m.URL})
}
