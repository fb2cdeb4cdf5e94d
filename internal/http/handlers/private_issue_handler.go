// Private (admin-facing) issue endpoints:
//   - GET  /private/issues                 (all, or ?status=)
//   - GET  /private/issues/manual          (issues waiting for a human)
//   - GET  /private/issues/{id}
//   - GET  /private/issues/{id}/messages
//   - POST /private/issues/{id}/messages   (admin reply, forces manual mode)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-desk/internal/domain"
)

// ListIssues godoc
// @ID          listIssues
// @Summary     List issues
// @Description Newest first. Filter with status=open|manual|closed.
// @Tags        Private
// @Produce     json
// @Param       status  query  string  false  "Status filter"  Enums(open, manual, closed)
// @Success     200  {array}   domain.Issue
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown status"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /private/issues [get]
func (h *Handlers) ListIssues(c *gin.Context) {
	status := domain.IssueStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))
	if status != "" && !status.Valid() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be open, manual or closed")
		return
	}
	h.listByStatus(c, status)
}

// ListManualIssues godoc
// @ID          listManualIssues
// @Summary     Issues waiting for a human
// @Tags        Private
// @Produce     json
// @Success     200  {array}   domain.Issue
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /private/issues/manual [get]
func (h *Handlers) ListManualIssues(c *gin.Context) {
	h.listByStatus(c, domain.StatusManual)
}

func (h *Handlers) listByStatus(c *gin.Context, status domain.IssueStatus) {
	items, err := h.issues.List(c.Request.Context(), status)
	if err != nil {
		writeError(c, err, closedIsBadRequest)
		return
	}
	ok(c, http.StatusOK, items)
}

// GetIssue godoc
// @ID          getIssue
// @Summary     Get an issue
// @Tags        Private
// @Produce     json
// @Param       id  path  string  true  "Issue id"  format(uuid)
// @Success     200  {object}  domain.Issue
// @Failure     404  {object}  handlers.ErrorResponse  "Issue not found"
// @Router      /private/issues/{id} [get]
func (h *Handlers) GetIssue(c *gin.Context) {
	is, err := h.issues.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, closedIsBadRequest)
		return
	}
	ok(c, http.StatusOK, is)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Issue thread
// @Description Messages in timestamp order.
// @Tags        Private
// @Produce     json
// @Param       id  path  string  true  "Issue id"  format(uuid)
// @Success     200  {array}   domain.Message
// @Failure     404  {object}  handlers.ErrorResponse  "Issue not found"
// @Router      /private/issues/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	msgs, err := h.issues.Messages(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, closedIsBadRequest)
		return
	}
	ok(c, http.StatusOK, msgs)
}

// PostAdminMessage godoc
// @ID          postAdminMessage
// @Summary     Reply as admin
// @Description Appends an Admin message. An open issue switches to manual mode in the same step; the requester is notified.
// @Tags        Private
// @Accept      json
// @Produce     json
// @Param       id    path  string                       true  "Issue id"  format(uuid)
// @Param       body  body  handlers.PostMessageRequest  true  "Reply"
// @Success     201  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Empty message or issue closed"
// @Failure     404  {object}  handlers.ErrorResponse  "Issue not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /private/issues/{id}/messages [post]
func (h *Handlers) PostAdminMessage(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message is required")
		return
	}
	m, _, err := h.issues.PostAdminMessage(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		writeError(c, err, closedIsBadRequest)
		return
	}
	ok(c, http.StatusCreated, m)
}
