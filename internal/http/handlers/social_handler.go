// Favorites and push-endpoint HTTP handlers.
//
//   - POST   /listeners/{id}/favorite  (toggle the priority edge)
//   - GET    /favorites                (list favorited listener IDs)
//   - POST   /push-endpoints           (register a delivery target)
//   - DELETE /push-endpoints           (drop all own delivery targets)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quietline/go-support-backend/internal/domain"
	"github.com/quietline/go-support-backend/internal/http/middleware"
	"github.com/quietline/go-support-backend/internal/services"
)

// ToggleFavoriteResponse reports whether the edge exists after the toggle.
type ToggleFavoriteResponse struct {
	Favorited bool `json:"favorited"`
}

// FavoritesResponse lists the caller's favorited listener IDs.
type FavoritesResponse struct {
	ListenerIDs []string `json:"listener_ids"`
}

// RegisterPushEndpointRequest registers a push delivery target.
type RegisterPushEndpointRequest struct {
	Endpoint string `json:"endpoint" binding:"required,min=1" example:"https://push.example.net/send/abc123"`
}

// RegisterPushEndpointResponse wraps the stored endpoint row.
type RegisterPushEndpointResponse struct {
	PushEndpoint *domain.PushEndpoint `json:"push_endpoint"`
}

// ToggleFavorite godoc
// @ID          toggleFavorite
// @Summary     Toggle a favorite listener
// @Tags        Social
// @Produce     json
// @Param       id  path  string  true  "Listener ID"  format(uuid)
// @Success     200  {object}  handlers.ToggleFavoriteResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /listeners/{id}/favorite [post]
func (h *Handlers) ToggleFavorite(c *gin.Context) {
	favorited, err := h.social.ToggleFavorite(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProfileNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "listener not found")
		case errors.Is(err, services.ErrSelfSession):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot favorite yourself")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, ToggleFavoriteResponse{Favorited: favorited})
}

// ListFavorites godoc
// @ID          listFavorites
// @Summary     List favorited listeners
// @Tags        Social
// @Produce     json
// @Success     200  {object}  handlers.FavoritesResponse
// @Router      /favorites [get]
func (h *Handlers) ListFavorites(c *gin.Context) {
	ids, err := h.social.Favorites(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, FavoritesResponse{ListenerIDs: ids})
}

// RegisterPushEndpoint godoc
// @ID          registerPushEndpoint
// @Summary     Register a push delivery target
// @Description Re-registering an existing endpoint is a no-op.
// @Tags        Social
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.RegisterPushEndpointRequest  true  "Endpoint URL"
// @Success     201  {object}  handlers.RegisterPushEndpointResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /push-endpoints [post]
func (h *Handlers) RegisterPushEndpoint(c *gin.Context) {
	var req RegisterPushEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "endpoint required")
		return
	}

	e, err := h.social.RegisterPushEndpoint(c.Request.Context(), middleware.UserID(c), req.Endpoint)
	if err != nil {
		if errors.Is(err, services.ErrInvalidEndpoint) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid endpoint")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusCreated, RegisterPushEndpointResponse{PushEndpoint: e})
}

// UnregisterPushEndpoints godoc
// @ID          unregisterPushEndpoints
// @Summary     Remove all own push delivery targets
// @Tags        Social
// @Success     204
// @Router      /push-endpoints [delete]
func (h *Handlers) UnregisterPushEndpoints(c *gin.Context) {
	if err := h.social.UnregisterPushEndpoints(c.Request.Context(), middleware.UserID(c)); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
