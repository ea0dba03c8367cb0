// Notification dispatch HTTP handler.
//
//   - POST /dispatch  (fan a seeker's request out to reachable listeners)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quietline/go-support-backend/internal/http/middleware"
	"github.com/quietline/go-support-backend/internal/notify"
)

// DispatchRequest triggers a notification fan-out for the calling seeker.
//
// FavoriteListenerIDs is the client's claimed favorites list; the dispatcher
// re-verifies it against stored rows before granting priority, so a
// tampering client cannot promote arbitrary listeners.
type DispatchRequest struct {
	SeekerID            string   `json:"seeker_id" binding:"required" example:"4f7f24a1-9e2a-4d9b-b7a3-1f2a33c00a10"`
	IsRenotification    bool     `json:"is_renotification"`
	FavoriteListenerIDs []string `json:"favorite_listener_ids"`
}

// Dispatch godoc
// @ID          dispatch
// @Summary     Notify reachable listeners
// @Description Sends the favorites wave, then the general wave, push first
// @Description with email fallback. Renotifications are paced and capped.
// @Tags        Dispatch
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.DispatchRequest  true  "Dispatch parameters"
// @Success     200  {object}  notify.DispatchResult
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     429  {object}  handlers.ErrorResponse
// @Router      /dispatch [post]
func (h *Handlers) Dispatch(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "seeker_id required")
		return
	}

	// Only the seeker can trigger their own fan-out.
	if req.SeekerID != middleware.UserID(c) {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "cannot dispatch for another user")
		return
	}

	res, err := h.dispatch.Dispatch(c.Request.Context(), req.SeekerID, req.IsRenotification, req.FavoriteListenerIDs)
	if err != nil {
		switch {
		case errors.Is(err, notify.ErrSeekerNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "seeker not found")
		case errors.Is(err, notify.ErrRateLimited):
			fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, "dispatch rate limit exceeded")
		case errors.Is(err, notify.ErrRenotifyTooSoon):
			fail(c, http.StatusTooManyRequests, ErrCodeRenotifyTooSoon, "renotification too soon")
		case errors.Is(err, notify.ErrRenotifyExhausted):
			fail(c, http.StatusConflict, ErrCodeRenotifyExceeded, "renotification limit reached")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeDispatchFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, res)
}
