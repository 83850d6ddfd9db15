package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/fgcbrasil/fgcbrasil/gateway/internal/autherr"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/backend"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/identity"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/profile"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/session"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/views"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/logger"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/middleware"
	"github.com/gin-gonic/gin"
)

var log = logger.Named("handlers")

const msgForbidden = "Você não tem permissão para esta ação."

// SnapshotJSON is the wire form of a session snapshot.
type SnapshotJSON struct {
	State     session.State      `json:"state"`
	Identity  *identity.Identity `json:"identity"`
	Profile   *profile.Profile   `json:"profile"`
	Resolving bool               `json:"resolving"`
}

func snapshotJSON(s session.Snapshot) SnapshotJSON {
	return SnapshotJSON{State: s.State(), Identity: s.Identity, Profile: s.Profile, Resolving: s.Resolving}
}

// snapshotOf returns the snapshot of the request's session; anonymous
// requests are signed out.
func snapshotOf(c *gin.Context) session.Snapshot {
	if e, ok := middleware.EntryFrom(c); ok {
		return e.Store.Snapshot()
	}
	return session.Snapshot{}
}

func callerOf(c *gin.Context) views.Caller {
	e, ok := middleware.EntryFrom(c)
	if !ok {
		return views.Caller{}
	}
	return views.Caller{SessionID: e.ID, Snapshot: e.Store.Snapshot(), Tokens: e.Client}
}

// writeError maps an error to a status and a message the user can read.
func writeError(c *gin.Context, err error) {
	var (
		ve *views.ValidationError
		ae *backend.APIError
		pe *identity.AuthError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message})
	case errors.Is(err, views.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": msgForbidden})
	case errors.As(err, &pe):
		c.JSON(authStatus(pe.Code), gin.H{"error": autherr.Translate(pe.Code), "code": pe.Code})
	case errors.Is(err, identity.ErrSignedOut):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sua sessão expirou. Faça login novamente."})
	case errors.As(err, &ae):
		status := ae.Status
		if status < 400 || status > 499 {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": backend.Message(err)})
	case errors.Is(err, backend.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": backend.GenericMessage})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": backend.GenericMessage})
	default:
		log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": backend.GenericMessage})
	}
}

func authStatus(code string) int {
	switch code {
	case identity.CodeEmailInUse, identity.CodeWeakPassword, identity.CodeInvalidEmail:
		return http.StatusBadRequest
	case identity.CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusUnauthorized
	}
}

// bind decodes the JSON body into v, answering 400 on failure.
func bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Requisição inválida."})
		return false
	}
	return true
}
