// Message HTTP handlers.
//
//   - POST /sessions/{id}/messages   (send; idempotent via Idempotency-Key)
//   - GET  /sessions/{id}/messages   (paginated list)
//   - POST /sessions/{id}/read       (batched read receipt)
//   - POST /messages/{id}/reactions  (toggle a reaction)
package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quietline/go-support-backend/internal/domain"
	"github.com/quietline/go-support-backend/internal/http/middleware"
	"github.com/quietline/go-support-backend/internal/repo"
	"github.com/quietline/go-support-backend/internal/services"
	"github.com/quietline/go-support-backend/internal/utils"
)

// PostMessageRequest is the JSON payload for sending a message. Content is
// normalized (line endings, excessive blank lines) before hitting the
// service, which enforces the rune cap.
type PostMessageRequest struct {
	Content string `json:"content" binding:"required,min=1" example:"I'm here if you want to talk."`
}

// PostMessageResponse wraps a newly stored message.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// Pagination carries list-response paging metadata.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListMessagesResponse contains a page of session messages.
type ListMessagesResponse struct {
	Messages   []domain.Message  `json:"messages"`
	Reactions  []domain.Reaction `json:"reactions"`
	Pagination Pagination        `json:"pagination"`
}

// MarkReadRequest selects which counterpart messages to mark read. An empty
// list means everything unread in the session.
type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

// MarkReadResponse reports how many messages the receipt actually marked.
type MarkReadResponse struct {
	Marked int64 `json:"marked"`
}

// ToggleReactionRequest is the JSON payload for toggling a reaction.
type ToggleReactionRequest struct {
	Key string `json:"key" binding:"required,min=1" example:"heart"`
}

// ToggleReactionResponse reports the direction of the toggle.
type ToggleReactionResponse struct {
	Reaction *domain.Reaction `json:"reaction"`
	Removed  bool             `json:"removed"`
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text: CRLF/CR to LF, collapsed blank runs,
// trimmed surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message
// @Description Appends a message to an active session and pushes it to the
// @Description peer's realtime channel. Supports Idempotency-Key replays.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Safe-retry key"
// @Param       id    path  string  true  "Session ID"  format(uuid)
// @Param       body  body  handlers.PostMessageRequest  true  "Message payload"
// @Success     201  {object}  handlers.PostMessageResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /sessions/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)
	sessionID := c.Param("id")

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	content := sanitizeContent(req.Content)

	idemKey, _ := middleware.GetIdempotencyKey(c)
	scope := c.FullPath()
	if idemKey != "" && h.db != nil {
		if rec, err := repo.GetIdempotency(ctx, h.db, uid, scope, idemKey, time.Now().UTC()); err == nil && rec != nil {
			if prev, err2 := repo.GetMessage(ctx, h.db, rec.ResultID); err2 == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, rec.Status, PostMessageResponse{Message: prev})
				return
			}
		}
	}

	m, err := h.messages.Send(ctx, sessionID, uid, content)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		case errors.Is(err, services.ErrMessageTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content too long")
		default:
			failSessionErr(c, err)
		}
		return
	}

	if idemKey != "" && h.db != nil {
		_, _ = repo.CreateIdempotency(ctx, h.db, uid, scope, idemKey, m.ID, http.StatusCreated, h.idemTTL)
	}

	ok(c, http.StatusCreated, PostMessageResponse{Message: m})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List session messages
// @Description Paginated, ordered by store-assigned created_at ascending.
// @Description Ended sessions remain readable.
// @Tags        Messages
// @Produce     json
// @Param       id         path   string  true   "Session ID"  format(uuid)
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(50)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /sessions/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	page, pageSize := utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), 50),
		100,
	)

	msgs, reactions, total, err := h.messages.List(c.Request.Context(), c.Param("id"), middleware.UserID(c), (page-1)*pageSize, pageSize)
	if err != nil {
		failSessionErr(c, err)
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:  msgs,
		Reactions: reactions,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// MarkRead godoc
// @ID          markRead
// @Summary     Mark messages read
// @Description Stamps read_at on the counterpart's messages in one batch;
// @Description already-read messages are untouched. An empty list marks
// @Description everything unread.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Session ID"  format(uuid)
// @Param       body  body  handlers.MarkReadRequest  true  "Message IDs"
// @Success     200  {object}  handlers.MarkReadResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /sessions/{id}/read [post]
func (h *Handlers) MarkRead(c *gin.Context) {
	// An absent or malformed body degrades to "mark everything unread".
	var req MarkReadRequest
	_ = c.ShouldBindJSON(&req)

	marked, err := h.messages.MarkRead(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.MessageIDs)
	if err != nil {
		failSessionErr(c, err)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Marked: marked})
}

// ToggleReaction godoc
// @ID          toggleReaction
// @Summary     Toggle a reaction
// @Description Adds the caller's reaction if absent, removes it if present.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Message ID"  format(uuid)
// @Param       body  body  handlers.ToggleReactionRequest  true  "Reaction key"
// @Success     200  {object}  handlers.ToggleReactionResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /messages/{id}/reactions [post]
func (h *Handlers) ToggleReaction(c *gin.Context) {
	var req ToggleReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "key required")
		return
	}

	r, added, err := h.messages.ToggleReaction(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.Key)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidReactionKey):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid reaction key")
		case errors.Is(err, services.ErrMessageNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		default:
			failSessionErr(c, err)
		}
		return
	}
	ok(c, http.StatusOK, ToggleReactionResponse{Reaction: r, Removed: !added})
}
