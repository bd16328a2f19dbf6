// Package httpapi wires the HTTP transport (Gin) to the pipeline services,
// middleware and route handlers. It centralizes cross-cutting concerns:
// tracing, correlation IDs, logging and redaction, panic recovery, metrics,
// body limits, CORS, security headers, idempotency, rate limiting and
// compression.
//
// Two surfaces are mounted:
//   - /webhooks/:provider/:tenantId, the unauthenticated gateway; requests
//     are authenticated per tenant by provider signature.
//   - <API_BASE_PATH>/tenants/:tenantId/..., the manual entry, operator and
//     stream endpoints.
package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-pipeline/docs"
	"github.com/tbourn/go-feedback-pipeline/internal/config"
	"github.com/tbourn/go-feedback-pipeline/internal/domain"
	"github.com/tbourn/go-feedback-pipeline/internal/http/handlers"
	"github.com/tbourn/go-feedback-pipeline/internal/http/middleware"
	"github.com/tbourn/go-feedback-pipeline/internal/providers"
	"github.com/tbourn/go-feedback-pipeline/internal/queue"
	"github.com/tbourn/go-feedback-pipeline/internal/repo"
	"github.com/tbourn/go-feedback-pipeline/internal/services"
)

// feedbackRepoShim adapts the repository free functions to the
// services.FeedbackRepo interface.
type feedbackRepoShim struct{}

func (feedbackRepoShim) GetFeedback(ctx context.Context, db *gorm.DB, tenantID, id string) (*domain.FeedbackRecord, error) {
	return repo.GetFeedback(ctx, db, tenantID, id)
}

func (feedbackRepoShim) CountFeedback(ctx context.Context, db *gorm.DB, tenantID string, status domain.Status) (int64, error) {
	return repo.CountFeedback(ctx, db, tenantID, status)
}

func (feedbackRepoShim) ListFeedbackPage(ctx context.Context, db *gorm.DB, tenantID string, status domain.Status, offset, limit int) ([]domain.FeedbackRecord, error) {
	return repo.ListFeedbackPage(ctx, db, tenantID, status, offset, limit)
}

func (feedbackRepoShim) ResetForRetry(ctx context.Context, db *gorm.DB, tenantID, id string, now time.Time) error {
	return repo.ResetForRetry(ctx, db, tenantID, id, now)
}

// Deps are the collaborators built by the serve command.
type Deps struct {
	DB       *gorm.DB
	Queue    queue.Queue
	Registry *providers.Registry
	Ingest   handlers.Ingester
	Secrets  handlers.SecretStore
	Events   handlers.Subscriber
}

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. Logger (request-scoped logger with tenant/provider fields)
//  4. Recovery
//  5. Body size limit (WEBHOOK_MAX_BODY)
//  6. Metrics
//  7. CORS and security headers
//
// Per surface: webhooks add the redacting header log and the rate limiter;
// the API adds the idempotency validator before the rate limiter, so
// replays bypass it, and gzip on everything but the stream.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	registry := deps.Registry
	if registry == nil {
		registry = providers.DefaultRegistry()
	}
	sources := registry.Sources()
	tags := make([]string, 0, len(sources))
	for _, s := range sources {
		tags = append(tags, string(s))
	}

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(limitBody(cfg.WebhookMaxBody))
	r.Use(middleware.Metrics(tags...))
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(deps))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = "/"
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	feedbackSvc := &services.FeedbackService{DB: deps.DB, Repo: feedbackRepoShim{}, Queue: deps.Queue}
	h := handlers.New(registry, deps.Ingest, deps.Secrets, feedbackSvc, deps.Events)
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByTenantOrIP())

	webhooks := r.Group("/webhooks",
		middleware.RedactingLogger(middleware.RedactOptions{}),
		rl.Handler(),
	)
	webhooks.POST("/:provider/:tenantId", h.ReceiveWebhook)

	tenant := groupWithPrefix(r, cfg.APIBasePath).Group("/tenants/:tenantId",
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, manualReplayLookup(deps.DB)),
		rl.Handler(),
	)
	tenant.GET("/stream", h.Stream(handlers.StreamOptions{OriginPatterns: originPatterns(cfg.CORS.AllowedOrigins)}))

	api := tenant.Group("", gzip.Gzip(gzip.DefaultCompression))
	{
		api.POST("/feedback", h.SubmitFeedback)
		api.GET("/feedback", h.ListFeedback)
		api.GET("/feedback/:id", h.GetFeedback)
		api.POST("/feedback/:id/retry", h.RetryFeedback)
	}
}

// manualReplayLookup reports whether the tenant already stored manual
// feedback under the idempotency key.
func manualReplayLookup(db *gorm.DB) middleware.IdempotencyLookup {
	if db == nil {
		return nil
	}
	return func(ctx context.Context, tenantID, key string) (bool, error) {
		rec, err := repo.FindBySource(ctx, db, domain.SourceManual, key)
		if err != nil {
			return false, err
		}
		return rec.TenantID == tenantID, nil
	}
}

// health reports liveness plus store reachability and queue depth.
func health(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if deps.Queue != nil {
			body["queue_depth"] = deps.Queue.Depth()
		}
		if deps.DB != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			sqlDB, err := deps.DB.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				body["status"] = "degraded"
				body["database"] = err.Error()
				c.JSON(http.StatusServiceUnavailable, body)
				return
			}
		}
		c.JSON(http.StatusOK, body)
	}
}

// corsMiddleware allows every origin when none are configured, otherwise
// echoes allow-listed origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{"X-Request-ID", "ETag", "Retry-After", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// Set ACAO even without an Origin header so simple clients and
		// health checks see it.
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// originPatterns turns CORS origins ("https://ops.example.com") into the
// host patterns the websocket upgrader matches.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// limitBody caps request bodies with http.MaxBytesReader; oversized reads
// fail in the handler. maxBytes <= 0 disables the cap.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
