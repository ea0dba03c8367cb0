// Presence HTTP handlers.
//
//   - PUT  /presence            (set role state)
//   - POST /presence/heartbeat  (refresh liveness)
//   - GET  /presence            (own presence snapshot)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quietline/go-support-backend/internal/http/middleware"
	"github.com/quietline/go-support-backend/internal/services"
)

// SetPresenceRequest is the JSON payload for a role-state transition.
type SetPresenceRequest struct {
	// State is one of offline, available, requesting.
	State string `json:"state" binding:"required" example:"available"`
}

// SetPresence godoc
// @ID          setPresence
// @Summary     Set role state
// @Description Transitions the caller between offline, available, and requesting.
// @Description Going offline ends all of the caller's active sessions.
// @Tags        Presence
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.SetPresenceRequest  true  "Target state"
// @Success     200  {object}  domain.Profile
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /presence [put]
func (h *Handlers) SetPresence(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	var req SetPresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "state required")
		return
	}

	if err := h.presence.SetRoleState(ctx, uid, req.State); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRoleState):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "state must be offline, available, or requesting")
		case errors.Is(err, services.ErrProfileNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "profile not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	p, err := h.presence.Profile(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, p)
}

// Heartbeat godoc
// @ID          heartbeat
// @Summary     Refresh presence
// @Description Stamps the caller's heartbeat. Only takes effect in a live
// @Description state; a beat racing an offline transition is a no-op.
// @Tags        Presence
// @Success     204
// @Router      /presence/heartbeat [post]
func (h *Handlers) Heartbeat(c *gin.Context) {
	// The refresh result is deliberately not surfaced: clients beat on a
	// timer and must not branch on whether the stamp landed.
	if _, err := h.presence.Heartbeat(c.Request.Context(), middleware.UserID(c)); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// GetPresence godoc
// @ID          getPresence
// @Summary     Own presence snapshot
// @Tags        Presence
// @Produce     json
// @Success     200  {object}  domain.Profile
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /presence [get]
func (h *Handlers) GetPresence(c *gin.Context) {
	p, err := h.presence.Profile(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "profile not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, p)
}
