package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
	"github.com/tbourn/go-feedback-pipeline/internal/http/middleware"
	"github.com/tbourn/go-feedback-pipeline/internal/providers"
	"github.com/tbourn/go-feedback-pipeline/internal/services"
)

// maxLoggedPayload caps how much of a rejected payload is written to debug logs.
const maxLoggedPayload = 512

// ReceiveWebhook godoc
// @ID          receiveWebhook
// @Summary     Receive a provider webhook
// @Description Verifies the provider signature over the raw body, normalizes the payload and queues it for classification. Redeliveries of the same provider event return the stored record with duplicate=true.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       provider  path  string  true  "Provider tag"  Enums(intercom, zendesk, freshdesk, helpscout, app_store, google_play, trustpilot, twitter)
// @Param       tenantId  path  string  true  "Tenant ID"     example(acme)
//
// @Success     202  {object} handlers.IngestResponse "Accepted"
// @Success     200  {object} handlers.IngestResponse "Duplicate delivery"
// @Failure     400  {object} handlers.ErrorResponse  "Malformed body"
// @Failure     401  {object} handlers.ErrorResponse  "Authentication failed"
// @Failure     404  {object} handlers.ErrorResponse  "Unknown provider"
// @Failure     409  {object} handlers.ErrorResponse  "Source id owned by another tenant"
// @Failure     422  {object} handlers.ErrorResponse  "Validation failed"
// @Failure     429  {object} handlers.ErrorResponse  "Quota exceeded or rate limited"
// @Failure     503  {object} handlers.ErrorResponse  "Persistence failure; retry"
// @Router      /webhooks/{provider}/{tenantId} [post]
func (h *Handlers) ReceiveWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	lg := middleware.LoggerFrom(c)

	adapter, err := h.registry.Lookup(c.Param("provider"))
	if err != nil || !adapter.Signature().Enabled() {
		fail(c, http.StatusNotFound, ErrCodeUnknownProvider, "unknown provider")
		return
	}
	tenant := tenantID(c)
	if tenant == "" {
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusBadRequest, ErrCodeMalformedBody, "body exceeds size limit")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeMalformedBody, "unreadable body")
		return
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeMalformedBody, "empty body")
		return
	}

	secret, err := h.secrets.Secret(ctx, tenant, adapter.Source())
	if err != nil {
		if errors.Is(err, services.ErrIntegrationNotFound) {
			lg.Warn().Str("tenant_id", tenant).Str("provider", string(adapter.Source())).Msg("webhook for unknown or inactive integration")
			fail(c, http.StatusUnauthorized, ErrCodeAuthenticationFailed, "authentication failed")
			return
		}
		fail(c, http.StatusServiceUnavailable, ErrCodePersistenceFailed, "integration lookup failed")
		return
	}
	if err := adapter.Signature().Verify(c.Request.Header, body, secret); err != nil {
		lg.Warn().Err(err).Str("tenant_id", tenant).Str("provider", string(adapter.Source())).Msg("webhook signature rejected")
		fail(c, http.StatusUnauthorized, ErrCodeAuthenticationFailed, "authentication failed")
		return
	}

	rec, err := adapter.Parse(body)
	if err != nil {
		failParse(c, adapter.Source(), body, err)
		return
	}

	stored, created, err := h.ingest.Ingest(ctx, tenant, rec)
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

func failParse(c *gin.Context, src domain.Source, body []byte, err error) {
	lg := middleware.LoggerFrom(c)
	payload := string(body)
	if len(payload) > maxLoggedPayload {
		payload = payload[:maxLoggedPayload]
	}
	lg.Debug().Err(err).Str("provider", string(src)).Str("payload", payload).Msg("payload rejected")

	switch {
	case errors.Is(err, providers.ErrMalformed):
		fail(c, http.StatusBadRequest, ErrCodeMalformedBody, "body is not valid JSON")
	case errors.Is(err, providers.ErrValidation):
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidationFailed, err.Error())
	default:
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidationFailed, "payload could not be normalized")
	}
}

// failIngest maps IngestService errors, shared by webhooks and manual entry.
func failIngest(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidRecord):
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidationFailed, err.Error())
	case errors.Is(err, services.ErrQuotaExceeded):
		fail(c, http.StatusTooManyRequests, ErrCodeQuotaExceeded, "monthly feedback quota exceeded")
	case errors.Is(err, services.ErrSourceConflict):
		fail(c, http.StatusConflict, ErrCodeSourceConflict, "source reference belongs to another tenant")
	case errors.Is(err, services.ErrPersistence):
		fail(c, http.StatusServiceUnavailable, ErrCodePersistenceFailed, "could not store feedback; retry later")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
