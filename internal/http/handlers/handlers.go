// Package handlers exposes the pipeline over HTTP:
//   - POST /webhooks/{provider}/{tenantId}                 (webhook gateway)
//   - POST /api/v1/tenants/{tenantId}/feedback             (manual entry)
//   - GET  /api/v1/tenants/{tenantId}/feedback             (list, paginated, ETag)
//   - GET  /api/v1/tenants/{tenantId}/feedback/{id}        (fetch one)
//   - POST /api/v1/tenants/{tenantId}/feedback/{id}/retry  (re-arm a failed record)
//   - GET  /api/v1/tenants/{tenantId}/stream               (websocket event feed)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate service errors into the ErrorResponse envelope.
package handlers

import (
	"context"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
	"github.com/tbourn/go-feedback-pipeline/internal/fanout"
	"github.com/tbourn/go-feedback-pipeline/internal/providers"
	"github.com/tbourn/go-feedback-pipeline/internal/utils"
)

//
// Service contracts (context-aware)
//

// Ingester persists and enqueues a normalized record.
type Ingester interface {
	// Ingest returns the stored record and whether it was newly created.
	Ingest(ctx context.Context, tenantID string, rec *domain.FeedbackRecord) (*domain.FeedbackRecord, bool, error)
}

// SecretStore resolves webhook signing secrets. It must be read-only.
type SecretStore interface {
	Secret(ctx context.Context, tenantID string, provider domain.Source) (string, error)
}

// FeedbackService serves the operator API.
type FeedbackService interface {
	Get(ctx context.Context, tenantID, id string) (*domain.FeedbackRecord, error)
	ListPage(ctx context.Context, tenantID string, status domain.Status, page, pageSize int) ([]domain.FeedbackRecord, int64, error)
	Retry(ctx context.Context, tenantID, id string) (*domain.FeedbackRecord, error)
}

// Subscriber hands out per-tenant event streams.
type Subscriber interface {
	Subscribe(tenantID string) (<-chan fanout.Event, func())
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints.
type Handlers struct {
	registry *providers.Registry
	ingest   Ingester
	secrets  SecretStore
	feedback FeedbackService
	events   Subscriber
}

// New constructs Handlers. A nil registry uses every built-in provider.
func New(registry *providers.Registry, ingest Ingester, secrets SecretStore, feedback FeedbackService, events Subscriber) *Handlers {
	if registry == nil {
		registry = providers.DefaultRegistry()
	}
	return &Handlers{
		registry: registry,
		ingest:   ingest,
		secrets:  secrets,
		feedback: feedback,
		events:   events,
	}
}

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// tenantID returns the :tenantId path parameter. It fails the request with
// 400 and returns "" when the value is not a plausible tenant identifier.
func tenantID(c *gin.Context) string {
	id := c.Param("tenantId")
	if !tenantIDPattern.MatchString(id) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "tenant id must be 1-64 characters of [A-Za-z0-9._-]")
		return ""
	}
	return id
}

//
// DTOs
//

// IngestResponse acknowledges an accepted webhook or manual submission.
type IngestResponse struct {
	ID        string        `json:"id" example:"0f8fad5b-d9cb-469f-a165-70867728950e"`
	Status    domain.Status `json:"status" example:"pending"`
	Duplicate bool          `json:"duplicate" example:"false"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListFeedbackResponse wraps a page of records and pagination information.
type ListFeedbackResponse struct {
	Feedback   []domain.FeedbackRecord `json:"feedback"`
	Pagination Pagination              `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	p := utils.ParsePage(c.Query("page"), c.Query("page_size"), 20, 100)
	return p.Number, p.Size
}

func ingestResponse(rec *domain.FeedbackRecord, created bool) IngestResponse {
	return IngestResponse{ID: rec.ID, Status: rec.Status, Duplicate: !created}
}
