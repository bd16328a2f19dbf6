// Response helpers shared by every endpoint.
//
// All error responses are an ErrorResponse with a stable code. fail() also
// logs 5xx results through the request-scoped logger so that a provider's
// failed delivery can be traced by request id.
//
// Example error response:
//
//	HTTP/1.1 401 Unauthorized
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "authentication_failed",
//	  "message": "authentication failed"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-feedback-pipeline/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// One of the ErrCode constants
	Code string `json:"code" example:"validation_failed"`
	// Human-readable, never contains secrets or payload content
	Message string `json:"message" example:"zendesk: content: no comment or description"`
}

// fail aborts the request with an ErrorResponse. 5xx results are logged.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail(), used by the router fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
