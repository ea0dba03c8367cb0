// Cleanup HTTP handler.
//
//   - POST /internal/cleanup  (run one staleness sweep)
//
// Cleanup is opportunistic: any authenticated client may trigger a pass on
// app foregrounding, and an external scheduler may call it with the shared
// secret. A pass is idempotent, so overlapping triggers are harmless.
package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quietline/go-support-backend/internal/http/middleware"
)

// cleanupSecretHeader carries the scheduler's shared secret.
const cleanupSecretHeader = "X-Cleanup-Secret"

// Cleanup godoc
// @ID          cleanup
// @Summary     Run a cleanup pass
// @Description Ends stale sessions and resets seekers whose requesting state
// @Description outlived their heartbeats. Callable by any authenticated user
// @Description or by a scheduler presenting X-Cleanup-Secret.
// @Tags        Internal
// @Produce     json
// @Param       X-Cleanup-Secret  header  string  false  "Scheduler shared secret"
// @Success     200  {object}  services.CleanupStats
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /internal/cleanup [post]
func (h *Handlers) Cleanup(c *gin.Context) {
	if middleware.UserID(c) == "" && !h.schedulerAuthorized(c) {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing credentials")
		return
	}

	stats, err := h.cleaner.RunOnce(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, stats)
}

func (h *Handlers) schedulerAuthorized(c *gin.Context) bool {
	if h.cleanupSecret == "" {
		return false
	}
	presented := c.GetHeader(cleanupSecretHeader)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.cleanupSecret)) == 1
}
