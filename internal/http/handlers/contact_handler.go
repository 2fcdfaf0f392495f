// Contact HTTP handlers.
//
// Public:
//   - POST /contact                  (submit the contact form)
//
// Admin (bearer token, mounted only when configured):
//   - GET  /contact/messages         (list, paginated, ETag support)
//   - GET  /contact/messages/{id}    (single submission)
//
// Handlers are transport-thin: they bind input, call ContactService and
// translate results into the JSON envelopes the site front-end expects.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/cis-contact/internal/domain"
	"github.com/tbourn/cis-contact/internal/observability"
	"github.com/tbourn/cis-contact/internal/repo"
	"github.com/tbourn/cis-contact/internal/services"
	"github.com/tbourn/cis-contact/internal/utils"
)

// ContactService is the application contract consumed by the handlers.
//
// Implementations must be safe for concurrent use and honor ctx.
type ContactService interface {
	// Submit validates, stores and relays one submission.
	Submit(ctx context.Context, name, email, message string) (*domain.Submission, error)
	// List returns a page of submissions, newest first, and the total count.
	List(ctx context.Context, page, pageSize int) ([]domain.Submission, int64, error)
	// Get returns one submission by id.
	Get(ctx context.Context, id uint) (*domain.Submission, error)
}

// Handlers groups the contact endpoints.
type Handlers struct {
	svc ContactService
}

// New constructs Handlers bound to svc.
func New(svc ContactService) *Handlers {
	return &Handlers{svc: svc}
}

//
// DTOs
//

// ContactRequest is the contact form payload. It binds from JSON or from an
// urlencoded/multipart form.
type ContactRequest struct {
	Name    string `json:"name" form:"name" example:"Ana"`
	Email   string `json:"email" form:"email" example:"ana@example.com"`
	Message string `json:"message" form:"message" example:"Hola"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListSubmissionsResponse wraps a page of submissions.
type ListSubmissionsResponse struct {
	Success     bool                `json:"success" example:"true"`
	Submissions []domain.Submission `json:"submissions"`
	Pagination  Pagination          `json:"pagination"`
}

// SubmissionResponse wraps a single submission.
type SubmissionResponse struct {
	Success    bool              `json:"success" example:"true"`
	Submission domain.Submission `json:"submission"`
}

//
// Helpers
//

// clampPagination parses page and page_size and bounds them.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.Clamp(utils.AtoiDefault(c.Query("page"), 1), 1, 1<<20)
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

//
// Handlers
//

// SubmitContact godoc
// @ID          submitContact
// @Summary     Submit the contact form
// @Description Stores the submission and emails the site owner on a best-effort basis. A failed email never changes the response.
// @Tags        Contact
// @Accept      json
// @Accept      x-www-form-urlencoded
// @Produce     json
//
// @Param       body  body  handlers.ContactRequest  true  "Contact form"
//
// @Success     200  {object}  handlers.SuccessResponse
// @Failure     400  {object}  handlers.ErrorResponse  "A field is missing"
// @Failure     413  {object}  handlers.ErrorResponse  "Body over the size cap"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Could not store the submission"
// @Router      /contact [post]
func (h *Handlers) SubmitContact(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBind(&req); err != nil {
		observability.CountSubmission(observability.OutcomeInvalid)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, MsgTooLarge)
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, MsgFieldsMissing)
		return
	}

	_, err := h.svc.Submit(c.Request.Context(), req.Name, req.Email, req.Message)
	switch {
	case err == nil:
		ok(c, http.StatusOK, SuccessResponse{Success: true, Message: MsgSubmitted})
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, MsgFieldsMissing)
	default:
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, MsgStoreFailed, err)
	}
}

// ListSubmissions godoc
// @ID          listSubmissions
// @Summary     List submissions (paginated, admin)
// @Description Returns stored submissions, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"submissions:3:3\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSubmissionsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Missing or wrong token"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /contact/messages [get]
func (h *Handlers) ListSubmissions(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort). Rows are append-only, so count + newest id
	// identify the table state.
	var db *gorm.DB
	if svc, ok := h.svc.(*services.ContactService); ok {
		db = svc.DB
	}
	if db != nil {
		if count, maxID, err := repo.SubmissionsStats(ctx, db); err == nil {
			etag := fmt.Sprintf(`W/"submissions:%d:%d"`, count, maxID)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.svc.List(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list submissions", err)
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListSubmissionsResponse{
		Success:     true,
		Submissions: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetSubmission godoc
// @ID          getSubmission
// @Summary     Get one submission (admin)
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  int  true  "Submission id"  minimum(1)
//
// @Success     200  {object} handlers.SubmissionResponse
// @Failure     400  {object} handlers.ErrorResponse "Invalid id"
// @Failure     401  {object} handlers.ErrorResponse "Missing or wrong token"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /contact/messages/{id} [get]
func (h *Handlers) GetSubmission(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return
	}

	sub, err := h.svc.Get(c.Request.Context(), uint(id))
	switch {
	case err == nil:
		ok(c, http.StatusOK, SubmissionResponse{Success: true, Submission: *sub})
	case errors.Is(err, services.ErrSubmissionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "submission not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load submission", err)
	}
}
