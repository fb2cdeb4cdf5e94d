// Public (requester-facing) issue endpoints:
//   - GET  /public/issues/{chat_id}        (active issue of a chat)
//   - POST /public/issues                  (open an issue)
//   - POST /public/issues/{id}/messages    (user message + optional AI reply)
//   - PUT  /public/issues/{id}/manual      (escalate to a human)
//   - POST /public/issues/{id}/close       (requester closes the issue)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-desk/internal/domain"
	"github.com/tbourn/go-support-desk/internal/http/middleware"
	"github.com/tbourn/go-support-desk/internal/services"
)

// CreateIssueRequest opens an issue for a chat.
type CreateIssueRequest struct {
	ChatID   string `json:"chat_id" binding:"required" example:"123456789"`
	Username string `json:"username" binding:"required" example:"alice"`
}

// PostMessageRequest carries one chat message.
type PostMessageRequest struct {
	Message string `json:"message" binding:"required" example:"My order has not arrived"`
}

// PostUserMessageResponse is the appended user message and the automatic
// reply, which is null while the issue is in manual mode.
type PostUserMessageResponse struct {
	Message *domain.Message `json:"message"`
	Reply   *domain.Message `json:"reply"`
}

// GetActiveIssue godoc
// @ID          getActiveIssue
// @Summary     Current issue of a chat
// @Description Returns the chat's open or manual issue.
// @Tags        Public
// @Produce     json
// @Param       chat_id  path  string  true  "Requester chat id"  example(123456789)
// @Success     200  {object}  domain.Issue
// @Failure     404  {object}  handlers.ErrorResponse  "No active issue"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /public/issues/{chat_id} [get]
func (h *Handlers) GetActiveIssue(c *gin.Context) {
	// The route shares the :id wildcard with the issue routes; here it is a chat id.
	is, err := h.issues.ActiveByChat(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, closedIsBadRequest)
		return
	}
	ok(c, http.StatusOK, is)
}

// CreateIssue godoc
// @ID          createIssue
// @Summary     Open an issue
// @Description Opens an issue in automatic mode. A chat may hold one non-closed issue at a time.
// @Tags        Public
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CreateIssueRequest  true  "Requester"
// @Success     201  {object}  domain.Issue
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid body, reserved username or issue already open"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /public/issues [post]
func (h *Handlers) CreateIssue(c *gin.Context) {
	var req CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat_id and username are required")
		return
	}
	is, err := h.issues.Create(c.Request.Context(), req.ChatID, req.Username)
	if err != nil {
		writeError(c, err, closedIsBadRequest)
		return
	}
	ok(c, http.StatusCreated, is)
}

// PostUserMessage godoc
// @ID          postUserMessage
// @Summary     Send a requester message
// @Description Appends the message. While the issue is open the AI responder answers it and the reply is returned;
// @Description in manual mode reply is null and admins are notified instead.
// @Description Idempotency-Key replays the stored result instead of generating a second reply.
// @Tags        Public
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Key for safe retries"  example(tg-42-1001)
// @Param       id    path  string                         true  "Issue id"  format(uuid)
// @Param       body  body  handlers.PostMessageRequest    true  "Message"
// @Success     200  {object}  handlers.PostUserMessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or oversized message"
// @Failure     403  {object}  handlers.ErrorResponse  "Issue is closed"
// @Failure     404  {object}  handlers.ErrorResponse  "Issue not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Responder or store failure"
// @Router      /public/issues/{id}/messages [post]
func (h *Handlers) PostUserMessage(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message is required")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	res, err := h.issues.PostUserMessage(c.Request.Context(), c.Param("id"), req.Message, key)
	if err != nil {
		if res != nil && errors.Is(err, services.ErrResponderUnavailable) {
			middleware.LoggerFrom(c).Warn().Err(err).Str("message_id", res.Message.ID).Msg("user message stored without reply")
		}
		writeError(c, err, closedIsForbidden)
		return
	}
	if res.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	ok(c, http.StatusOK, PostUserMessageResponse{Message: res.Message, Reply: res.Reply})
}

// EscalateIssue godoc
// @ID          escalateIssue
// @Summary     Request a human
// @Description Moves an open issue to manual mode; registered admins are notified.
// @Tags        Public
// @Produce     json
// @Param       id  path  string  true  "Issue id"  format(uuid)
// @Success     200  {object}  domain.Issue
// @Failure     400  {object}  handlers.ErrorResponse  "Issue is not open"
// @Failure     404  {object}  handlers.ErrorResponse  "Issue not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /public/issues/{id}/manual [put]
func (h *Handlers) EscalateIssue(c *gin.Context) {
	is, err := h.issues.Escalate(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, closedIsBadRequest)
		return
	}
	ok(c, http.StatusOK, is)
}

// CloseIssue godoc
// @ID          closeIssue
// @Summary     Close an issue
// @Description Closes an open or manual issue. Mounted in both namespaces.
// @Tags        Public, Private
// @Produce     json
// @Param       id  path  string  true  "Issue id"  format(uuid)
// @Success     200  {object}  domain.Issue
// @Failure     400  {object}  handlers.ErrorResponse  "Issue already closed"
// @Failure     404  {object}  handlers.ErrorResponse  "Issue not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /public/issues/{id}/close [post]
// @Router      /private/issues/{id}/close [post]
func (h *Handlers) CloseIssue(c *gin.Context) {
	is, err := h.issues.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, closedIsBadRequest)
		return
	}
	ok(c, http.StatusOK, is)
}
