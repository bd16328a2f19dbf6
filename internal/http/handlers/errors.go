// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses via fail(). Clients branch on these codes; messages are for humans.
//
// Conventions:
//   - Codes are lowercase snake_case.
//   - Generic codes mirror HTTP status semantics.
//   - Pipeline codes name the ingestion step that refused the request, so a
//     provider's delivery log shows why a webhook was rejected.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "authentication_failed",
//	  "message": "signature verification failed"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Ingestion:
	ErrCodeUnknownProvider      = "unknown_provider"
	ErrCodeMalformedBody        = "malformed_body"
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeValidationFailed     = "validation_failed"
	ErrCodeQuotaExceeded        = "quota_exceeded"
	ErrCodeSourceConflict       = "source_conflict"
	ErrCodePersistenceFailed    = "persistence_failed"

	// Operator API:
	ErrCodeListFailed   = "list_failed"
	ErrCodeNotRetryable = "not_retryable"
)
