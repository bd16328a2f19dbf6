package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
	"github.com/tbourn/go-feedback-pipeline/internal/fanout"
	"github.com/tbourn/go-feedback-pipeline/internal/http/middleware"
	"github.com/tbourn/go-feedback-pipeline/internal/providers"
	"github.com/tbourn/go-feedback-pipeline/internal/queue"
	"github.com/tbourn/go-feedback-pipeline/internal/repo"
	"github.com/tbourn/go-feedback-pipeline/internal/services"
)

// ---------- test DB + repo shim ----------

func newHandlersDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// testFeedbackRepo forwards to the repo package, like router.go.
type testFeedbackRepo struct{}

func (testFeedbackRepo) GetFeedback(ctx context.Context, db *gorm.DB, tenantID, id string) (*domain.FeedbackRecord, error) {
	return repo.GetFeedback(ctx, db, tenantID, id)
}
func (testFeedbackRepo) CountFeedback(ctx context.Context, db *gorm.DB, tenantID string, status domain.Status) (int64, error) {
	return repo.CountFeedback(ctx, db, tenantID, status)
}
func (testFeedbackRepo) ListFeedbackPage(ctx context.Context, db *gorm.DB, tenantID string, status domain.Status, offset, limit int) ([]domain.FeedbackRecord, error) {
	return repo.ListFeedbackPage(ctx, db, tenantID, status, offset, limit)
}
func (testFeedbackRepo) ResetForRetry(ctx context.Context, db *gorm.DB, tenantID, id string, now time.Time) error {
	return repo.ResetForRetry(ctx, db, tenantID, id, now)
}

// ---------- environment ----------

type env struct {
	db     *gorm.DB
	queue  queue.Queue
	hub    *fanout.Hub
	ingest *services.IngestService
	router *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlersDB(t)
	q := queue.NewMemory(32)
	hub := fanout.NewHub(8)
	ingest := &services.IngestService{DB: db, Queue: q}
	h := New(
		providers.DefaultRegistry(),
		ingest,
		&services.IntegrationService{DB: db},
		&services.FeedbackService{DB: db, Repo: testFeedbackRepo{}, Queue: q},
		hub,
	)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/webhooks/:provider/:tenantId", h.ReceiveWebhook)
	api := r.Group("/api/v1/tenants/:tenantId")
	api.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	api.POST("/feedback", h.SubmitFeedback)
	api.GET("/feedback", h.ListFeedback)
	api.GET("/feedback/:id", h.GetFeedback)
	api.POST("/feedback/:id/retry", h.RetryFeedback)
	api.GET("/stream", h.Stream(StreamOptions{}))

	return &env{db: db, queue: q, hub: hub, ingest: ingest, router: r}
}

func (e *env) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) integrate(t *testing.T, tenant string, provider domain.Source, secret string, active bool) {
	t.Helper()
	if err := repo.UpsertIntegration(context.Background(), e.db, tenant, provider, secret, active); err != nil {
		t.Fatalf("seed integration: %v", err)
	}
}

func (e *env) count(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&domain.FeedbackRecord{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func (e *env) seed(t *testing.T, tenant string, status domain.Status, exhausted bool) *domain.FeedbackRecord {
	t.Helper()
	now := time.Now().UTC()
	rec := &domain.FeedbackRecord{
		ID:             uuid.NewString(),
		TenantID:       tenant,
		Source:         domain.SourceManual,
		Content:        "seeded",
		Language:       "en",
		Status:         status,
		RetryExhausted: exhausted,
		OriginalData:   datatypes.JSON(`{}`),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.db.Create(rec).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	return rec
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return er
}

func decodeIngest(t *testing.T, w *httptest.ResponseRecorder) IngestResponse {
	t.Helper()
	var resp IngestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode ingest body %q: %v", w.Body.String(), err)
	}
	return resp
}

func jsonReq(method, path string, body []byte) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
