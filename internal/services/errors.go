// Package services holds the pipeline's use cases: ingesting normalized
// records, looking up integrations, and the operator actions on stored
// feedback. This file centralizes the service-level error values so that
// handlers can map them to HTTP results consistently.
package services

import "errors"

var (
	// ErrInvalidRecord wraps a normalization or range failure on an
	// incoming record.
	ErrInvalidRecord = errors.New("invalid feedback record")

	// ErrQuotaExceeded is returned when the quota collaborator refuses a
	// tenant's ingestion.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrPersistence wraps store failures on the ingest path. Callers may
	// retry; ingestion is idempotent.
	ErrPersistence = errors.New("persistence failure")

	// ErrSourceConflict indicates that (source, source_id) already belongs
	// to another tenant.
	ErrSourceConflict = errors.New("source reference belongs to another tenant")

	// ErrFeedbackNotFound indicates the record does not exist for the tenant.
	ErrFeedbackNotFound = errors.New("feedback not found")

	// ErrNotRetryable is returned when an operator retries a record that is
	// not permanently failed.
	ErrNotRetryable = errors.New("feedback is not in a retryable state")

	// ErrIntegrationNotFound indicates no active webhook integration exists
	// for the tenant and provider.
	ErrIntegrationNotFound = errors.New("integration not found")

	// ErrUnsupportedProvider is returned when seeding an integration for a
	// provider that does not sign webhooks.
	ErrUnsupportedProvider = errors.New("provider does not accept webhooks")
)
