package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterAdminRequest adds a chat to the admin allow-list.
type RegisterAdminRequest struct {
	ChatID   string `json:"chat_id" binding:"required" example:"987654321"`
	Username string `json:"username" binding:"required" example:"support-bob"`
}

// ListAdmins godoc
// @ID          listAdmins
// @Summary     Registered admins
// @Tags        Private
// @Produce     json
// @Success     200  {array}   domain.Admin
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /private/admins [get]
func (h *Handlers) ListAdmins(c *gin.Context) {
	admins, err := h.admins.List(c.Request.Context())
	if err != nil {
		writeError(c, err, closedIsBadRequest)
		return
	}
	ok(c, http.StatusOK, admins)
}

// RegisterAdmin godoc
// @ID          registerAdmin
// @Summary     Register an admin
// @Description Registered admins receive manual-mode notifications.
// @Tags        Private
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.RegisterAdminRequest  true  "Admin"
// @Success     201  {object}  domain.Admin
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid body or already registered"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /private/admins [post]
func (h *Handlers) RegisterAdmin(c *gin.Context) {
	var req RegisterAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat_id and username are required")
		return
	}
	a, err := h.admins.Register(c.Request.Context(), req.ChatID, req.Username)
	if err != nil {
		writeError(c, err, closedIsBadRequest)
		return
	}
	ok(c, http.StatusCreated, a)
}
