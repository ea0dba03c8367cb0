// Session HTTP handlers.
//
//   - POST /sessions          (open a seeker/listener pairing)
//   - GET  /sessions          (list own active sessions)
//   - GET  /sessions/{id}     (fetch one session)
//   - POST /sessions/{id}/end (end; idempotent)
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quietline/go-support-backend/internal/domain"
	"github.com/quietline/go-support-backend/internal/http/middleware"
	"github.com/quietline/go-support-backend/internal/repo"
	"github.com/quietline/go-support-backend/internal/services"
)

// CreateSessionRequest is the JSON payload for opening a session. The caller
// takes the seeker seat unless AsListener is set (a listener accepting a
// seeker's request).
type CreateSessionRequest struct {
	CounterpartID string `json:"counterpart_id" binding:"required" example:"4f7f24a1-9e2a-4d9b-b7a3-1f2a33c00a10"`
	AsListener    bool   `json:"as_listener"`
}

// SessionResponse wraps a single session.
type SessionResponse struct {
	Session *domain.Session `json:"session"`
}

// ListSessionsResponse contains the caller's active sessions, newest first.
type ListSessionsResponse struct {
	Sessions []domain.Session `json:"sessions"`
}

// CreateSession godoc
// @ID          createSession
// @Summary     Open a support session
// @Description Pairs the caller with a counterpart. Blocks in either
// @Description direction refuse the request; an existing active pairing is
// @Description returned with 409 so double-clicks converge on one session.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Safe-retry key"
// @Param       body  body  handlers.CreateSessionRequest  true  "Counterpart"
// @Success     201  {object}  handlers.SessionResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "counterpart_id required")
		return
	}

	// Replay path: a stored result for this (user, route, key) short-circuits.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	scope := c.FullPath()
	if idemKey != "" && h.db != nil {
		if rec, err := repo.GetIdempotency(ctx, h.db, uid, scope, idemKey, time.Now().UTC()); err == nil && rec != nil {
			if sess, err2 := repo.GetSession(ctx, h.db, rec.ResultID); err2 == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, rec.Status, SessionResponse{Session: sess})
				return
			}
		}
	}

	sess, err := h.sessions.Create(ctx, uid, req.CounterpartID, req.AsListener)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrDuplicateSession):
		// The existing session rides along so the client can just open it.
		c.JSON(http.StatusConflict, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       ErrCodeConflict,
			"message":    "active session already exists",
			"session":    sess,
		})
		return
	case errors.Is(err, services.ErrBlocked):
		fail(c, http.StatusForbidden, ErrCodeBlocked, "session creation blocked")
		return
	case errors.Is(err, services.ErrSelfSession):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot open a session with yourself")
		return
	case errors.Is(err, services.ErrProfileNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "counterpart not found")
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	if idemKey != "" && h.db != nil {
		_, _ = repo.CreateIdempotency(ctx, h.db, uid, scope, idemKey, sess.ID, http.StatusCreated, h.idemTTL)
	}

	ok(c, http.StatusCreated, SessionResponse{Session: sess})
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List own active sessions
// @Tags        Sessions
// @Produce     json
// @Success     200  {object}  handlers.ListSessionsResponse
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.ListForUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{Sessions: sessions})
}

// GetSession godoc
// @ID          getSession
// @Summary     Fetch a session
// @Tags        Sessions
// @Produce     json
// @Param       id  path  string  true  "Session ID"  format(uuid)
// @Success     200  {object}  handlers.SessionResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		failSessionErr(c, err)
		return
	}
	ok(c, http.StatusOK, SessionResponse{Session: sess})
}

// EndSession godoc
// @ID          endSession
// @Summary     End a session
// @Description Terminal and idempotent: repeating the call succeeds without
// @Description moving ended_at. The transition is pushed to the peer.
// @Tags        Sessions
// @Produce     json
// @Param       id  path  string  true  "Session ID"  format(uuid)
// @Success     200  {object}  handlers.SessionResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /sessions/{id}/end [post]
func (h *Handlers) EndSession(c *gin.Context) {
	sess, err := h.sessions.End(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		failSessionErr(c, err)
		return
	}
	ok(c, http.StatusOK, SessionResponse{Session: sess})
}

// failSessionErr maps the session sentinel errors shared by several handlers.
func failSessionErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
	case errors.Is(err, services.ErrNotParticipant):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "not a session participant")
	case errors.Is(err, services.ErrSessionEnded):
		fail(c, http.StatusConflict, ErrCodeSessionEnded, "session already ended")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
