package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-desk/internal/services"
)

// Error codes. Generic codes mirror HTTP semantics; the rest name the
// support-desk precondition that failed.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	ErrCodeIssueClosed     = "issue_closed"
	ErrCodeAlreadyManual   = "already_manual"
	ErrCodeNotOpen         = "not_open"
	ErrCodeIssueExists     = "issue_exists"
	ErrCodeAdminExists     = "admin_exists"
	ErrCodeReservedName    = "reserved_username"
	ErrCodeResponderFailed = "responder_failed"
)

// closedPolicy selects the status for ErrIssueClosed: posting as the
// requester into a closed issue is forbidden, every other operation on it is
// a failed precondition.
type closedPolicy int

const (
	closedIsBadRequest closedPolicy = iota
	closedIsForbidden
)

type errMapping struct {
	target error
	status int
	code   string
}

var errTable = []errMapping{
	{services.ErrIssueNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrFAQNotFound, http.StatusNotFound, ErrCodeNotFound},

	{services.ErrIssueAlreadyOpen, http.StatusBadRequest, ErrCodeIssueExists},
	{services.ErrAdminExists, http.StatusBadRequest, ErrCodeAdminExists},
	{services.ErrAlreadyManual, http.StatusBadRequest, ErrCodeAlreadyManual},
	{services.ErrNotOpen, http.StatusBadRequest, ErrCodeNotOpen},
	{services.ErrConcurrentUpdate, http.StatusBadRequest, ErrCodeConflict},
	{services.ErrReservedUsername, http.StatusBadRequest, ErrCodeReservedName},

	{services.ErrEmptyMessage, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrMessageTooLong, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidChatID, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidUsername, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrEmptyFAQ, http.StatusBadRequest, ErrCodeBadRequest},

	{services.ErrResponderUnavailable, http.StatusInternalServerError, ErrCodeResponderFailed},
}

// writeError maps a service error onto the response taxonomy. Unknown errors
// become 500 internal_error.
func writeError(c *gin.Context, err error, closed closedPolicy) {
	if errors.Is(err, services.ErrIssueClosed) {
		if closed == closedIsForbidden {
			fail(c, http.StatusForbidden, ErrCodeIssueClosed, err.Error())
		} else {
			fail(c, http.StatusBadRequest, ErrCodeIssueClosed, err.Error())
		}
		return
	}
	for _, m := range errTable {
		if errors.Is(err, m.target) {
			fail(c, m.status, m.code, err.Error())
			return
		}
	}
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}
