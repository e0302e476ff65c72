package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/VoiceHub/internal/app/orch"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	orch   *orch.Orchestrator
	health HealthChecker
}

type SessionRequest struct {
	Token string `json:"token" binding:"required"`
}

type SessionResponse struct {
	UserID domain.UserID `json:"userId"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

func statusOf(k domain.Kind) int {
	switch k {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindPermissionDenied, domain.KindBlocked:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	e := domain.Normalize("http", err)
	status := statusOf(e.Kind)
	if e.Kind == domain.KindPermissionDenied && e.Reason == "unauthenticated" {
		status = http.StatusUnauthorized
	}
	msg := e.Message
	if e.Kind == domain.KindInternal {
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{Kind: e.Kind.String(), Reason: e.Reason, Message: msg}})
}

func (h *handlers) healthz(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": h.orch.Registry.Count()})
}

// createSession verifies a token and keeps it in the cookie session so
// the WebSocket upgrade can authenticate without a connectUser frame.
func (h *handlers) createSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.Validation("http.session", "missing_token", "token is required"))
		return
	}
	uid, err := h.orch.Auth.Resolve(c.Request.Context(), req.Token)
	if err != nil {
		abortWithError(c, domain.Denied("http.session", "unauthenticated", "invalid session token"))
		return
	}
	sess := sessions.Default(c)
	sess.Set(sessionTokenKey, req.Token)
	if err := sess.Save(); err != nil {
		abortWithError(c, domain.Internal("http.session", err))
		return
	}
	c.JSON(http.StatusOK, SessionResponse{UserID: uid})
}

func (h *handlers) deleteSession(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	if err := sess.Save(); err != nil {
		abortWithError(c, domain.Internal("http.session", err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) serverSnapshot(c *gin.Context) {
	uid := domain.UserID(c.GetString("user_id"))
	snap, err := h.orch.ServerSnapshot(c.Request.Context(), uid, domain.ServerID(c.Param("id")))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) onlineServers(c *gin.Context) {
	list, err := h.orch.OnlineServers(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"servers": list})
}
