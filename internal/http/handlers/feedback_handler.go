package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
	"github.com/tbourn/go-feedback-pipeline/internal/http/middleware"
	"github.com/tbourn/go-feedback-pipeline/internal/repo"
	"github.com/tbourn/go-feedback-pipeline/internal/services"
	"github.com/tbourn/go-feedback-pipeline/internal/utils"
)

// SubmitFeedback godoc
// @ID          submitFeedback
// @Summary     Submit feedback manually
// @Description Stores a feedback item entered by an operator or imported by a script. When Idempotency-Key is set it becomes the record's source_id, so retried submissions return the stored record.
// @Tags        Feedback
// @Accept      json
// @Produce     json
//
// @Param       tenantId         path    string                 true   "Tenant ID"          example(acme)
// @Param       Idempotency-Key  header  string                 false  "Client request key" example(import-2024-06-01-17)
// @Param       body             body    providers.ManualEntry  true   "Feedback"
//
// @Success     202  {object} handlers.IngestResponse "Accepted"
// @Success     200  {object} handlers.IngestResponse "Replay of an earlier submission"
// @Failure     400  {object} handlers.ErrorResponse  "Malformed body"
// @Failure     409  {object} handlers.ErrorResponse  "Key used by another tenant"
// @Failure     422  {object} handlers.ErrorResponse  "Validation failed"
// @Failure     429  {object} handlers.ErrorResponse  "Quota exceeded or rate limited"
// @Failure     503  {object} handlers.ErrorResponse  "Persistence failure; retry"
// @Router      /api/v1/tenants/{tenantId}/feedback [post]
func (h *Handlers) SubmitFeedback(c *gin.Context) {
	tenant := tenantID(c)
	if tenant == "" {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeMalformedBody, "unreadable body")
		return
	}

	adapter, err := h.registry.Lookup(string(domain.SourceManual))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "manual entry is not available")
		return
	}
	rec, err := adapter.Parse(body)
	if err != nil {
		failParse(c, domain.SourceManual, body, err)
		return
	}
	if key, present := middleware.GetIdempotencyKey(c); present {
		rec.SourceID = &key
	}

	stored, created, err := h.ingest.Ingest(c.Request.Context(), tenant, rec)
	if err != nil {
		failIngest(c, err)
		return
	}
	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	ok(c, status, ingestResponse(stored, created))
}

// GetFeedback godoc
// @ID          getFeedback
// @Summary     Get one feedback record
// @Tags        Feedback
// @Produce     json
//
// @Param       tenantId  path  string  true  "Tenant ID"             example(acme)
// @Param       id        path  string  true  "Feedback ID (UUID)"    format(uuid)
//
// @Success     200  {object} domain.FeedbackRecord
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /api/v1/tenants/{tenantId}/feedback/{id} [get]
func (h *Handlers) GetFeedback(c *gin.Context) {
	tenant := tenantID(c)
	if tenant == "" {
		return
	}
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "feedback id must be a UUID")
		return
	}

	rec, err := h.feedback.Get(c.Request.Context(), tenant, id)
	if err != nil {
		if errors.Is(err, services.ErrFeedbackNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "feedback not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, rec)
}

// ListFeedback godoc
// @ID          listFeedback
// @Summary     List feedback (paginated)
// @Description Returns a page of the tenant's records, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Feedback
// @Produce     json
//
// @Param       tenantId       path    string  true   "Tenant ID"                   example(acme)
// @Param       status         query   string  false  "Processing status filter"    Enums(pending, processing, completed, failed)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"              minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListFeedbackResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /api/v1/tenants/{tenantId}/feedback [get]
func (h *Handlers) ListFeedback(c *gin.Context) {
	ctx := c.Request.Context()
	tenant := tenantID(c)
	if tenant == "" {
		return
	}
	status := domain.Status(c.Query("status"))
	switch status {
	case "", domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted, domain.StatusFailed:
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be one of pending, processing, completed, failed")
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if svc, isSvc := h.feedback.(*services.FeedbackService); isSvc && svc.DB != nil {
		count, maxTS, err := repo.FeedbackStats(ctx, svc.DB, tenant, status)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"feedback:%s:%s:%d:%d:%d:%d"`, tenant, status, page, pageSize, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.feedback.ListPage(ctx, tenant, status, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListFeedbackResponse{
		Feedback: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// RetryFeedback godoc
// @ID          retryFeedback
// @Summary     Retry a failed record
// @Description Re-arms a record whose classification failed permanently and puts it back on the queue.
// @Tags        Feedback
// @Produce     json
//
// @Param       tenantId  path  string  true  "Tenant ID"           example(acme)
// @Param       id        path  string  true  "Feedback ID (UUID)"  format(uuid)
//
// @Success     202  {object} domain.FeedbackRecord
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     409  {object} handlers.ErrorResponse "Record is not permanently failed"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /api/v1/tenants/{tenantId}/feedback/{id}/retry [post]
func (h *Handlers) RetryFeedback(c *gin.Context) {
	tenant := tenantID(c)
	if tenant == "" {
		return
	}
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "feedback id must be a UUID")
		return
	}

	rec, err := h.feedback.Retry(c.Request.Context(), tenant, id)
	switch {
	case err == nil:
		ok(c, http.StatusAccepted, rec)
	case errors.Is(err, services.ErrFeedbackNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "feedback not found")
	case errors.Is(err, services.ErrNotRetryable):
		fail(c, http.StatusConflict, ErrCodeNotRetryable, "only permanently failed feedback can be retried")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
