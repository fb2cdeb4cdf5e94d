package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-desk/internal/domain"
)

// FAQRequest creates or replaces an entry.
type FAQRequest struct {
	Question string `json:"question" binding:"required" example:"How do I reset my password?"`
	Answer   string `json:"answer" binding:"required" example:"Use the 'Forgot password' link on the sign-in page."`
}

// FAQResponse is an entry without its vector. Searchable is false until an
// embedding has been stored.
type FAQResponse struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Searchable bool      `json:"searchable"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toFAQResponse(f domain.FAQ) FAQResponse {
	return FAQResponse{
		ID:         f.ID,
		Question:   f.Question,
		Answer:     f.Answer,
		Searchable: f.Searchable(),
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

// ListFAQ godoc
// @ID          listFAQ
// @Summary     FAQ entries
// @Tags        FAQ
// @Produce     json
// @Success     200  {array}   handlers.FAQResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /private/faq [get]
func (h *Handlers) ListFAQ(c *gin.Context) {
	items, err := h.faqs.List(c.Request.Context())
	if err != nil {
		writeError(c, err, closedIsBadRequest)
		return
	}
	out := make([]FAQResponse, 0, len(items))
	for _, f := range items {
		out = append(out, toFAQResponse(f))
	}
	ok(c, http.StatusOK, out)
}

// GetFAQ godoc
// @ID          getFAQ
// @Summary     One FAQ entry
// @Tags        FAQ
// @Produce     json
// @Param       id  path  string  true  "Entry id"  format(uuid)
// @Success     200  {object}  handlers.FAQResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /private/faq/{id} [get]
func (h *Handlers) GetFAQ(c *gin.Context) {
	f, err := h.faqs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, closedIsBadRequest)
		return
	}
	ok(c, http.StatusOK, toFAQResponse(*f))
}

// CreateFAQ godoc
// @ID          createFAQ
// @Summary     Add an FAQ entry
// @Description The question is embedded on write; if embedding fails the entry is stored but not searchable.
// @Tags        FAQ
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.FAQRequest  true  "Entry"
// @Success     201  {object}  handlers.FAQResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing question or answer"
// @Router      /private/faq [post]
func (h *Handlers) CreateFAQ(c *gin.Context) {
	var req FAQRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question and answer are required")
		return
	}
	f, err := h.faqs.Create(c.Request.Context(), req.Question, req.Answer)
	if err != nil {
		writeError(c, err, closedIsBadRequest)
		return
	}
	ok(c, http.StatusCreated, toFAQResponse(*f))
}

// UpdateFAQ godoc
// @ID          updateFAQ
// @Summary     Replace an FAQ entry
// @Tags        FAQ
// @Accept      json
// @Produce     json
// @Param       id    path  string               true  "Entry id"  format(uuid)
// @Param       body  body  handlers.FAQRequest  true  "Entry"
// @Success     200  {object}  handlers.FAQResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing question or answer"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /private/faq/{id} [put]
func (h *Handlers) UpdateFAQ(c *gin.Context) {
	var req FAQRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question and answer are required")
		return
	}
	f, err := h.faqs.Update(c.Request.Context(), c.Param("id"), req.Question, req.Answer)
	if err != nil {
		writeError(c, err, closedIsBadRequest)
		return
	}
	ok(c, http.StatusOK, toFAQResponse(*f))
}

// DeleteFAQ godoc
// @ID          deleteFAQ
// @Summary     Delete an FAQ entry
// @Tags        FAQ
// @Param       id  path  string  true  "Entry id"  format(uuid)
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /private/faq/{id} [delete]
func (h *Handlers) DeleteFAQ(c *gin.Context) {
	if err := h.faqs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err, closedIsBadRequest)
		return
	}
	noContent(c)
}
