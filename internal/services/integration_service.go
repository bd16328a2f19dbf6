package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
	"github.com/tbourn/go-feedback-pipeline/internal/providers"
	"github.com/tbourn/go-feedback-pipeline/internal/repo"
)

// IntegrationService resolves and maintains per-tenant webhook secrets.
type IntegrationService struct {
	DB       *gorm.DB
	Registry *providers.Registry
}

// Secret returns the signing secret for (tenantID, provider). Missing and
// inactive integrations both yield ErrIntegrationNotFound so the gateway
// fails closed. The lookup is read-only.
func (s *IntegrationService) Secret(ctx context.Context, tenantID string, provider domain.Source) (string, error) {
	in, err := repo.GetIntegration(ctx, s.DB, tenantID, provider)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrIntegrationNotFound
		}
		return "", err
	}
	if !in.Active || in.Secret == "" {
		return "", ErrIntegrationNotFound
	}
	return in.Secret, nil
}

// Upsert creates or replaces the integration for (tenantID, provider).
func (s *IntegrationService) Upsert(ctx context.Context, tenantID, provider, secret string, active bool) error {
	reg := s.Registry
	if reg == nil {
		reg = providers.DefaultRegistry()
	}
	a, err := reg.Lookup(provider)
	if err != nil {
		return err
	}
	if !a.Signature().Enabled() {
		return fmt.Errorf("%w: %s", ErrUnsupportedProvider, a.Source())
	}
	if tenantID == "" || secret == "" {
		return fmt.Errorf("integration %s: tenant id and secret are required", a.Source())
	}
	return repo.UpsertIntegration(ctx, s.DB, tenantID, a.Source(), secret, active)
}
