package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// IntegrationSeed is one entry of the INTEGRATIONS_FILE document:
//
//	integrations:
//	  - tenant_id: acme
//	    provider: zendesk
//	    secret: ${ACME_ZENDESK_SECRET}
//	    active: true
//
// Secrets are expanded from the environment so the file itself can be
// committed.
type IntegrationSeed struct {
	TenantID string `yaml:"tenant_id"`
	Provider string `yaml:"provider"`
	Secret   string `yaml:"secret"`
	Active   *bool  `yaml:"active"`
}

// IsActive defaults to true when the entry omits active.
func (s IntegrationSeed) IsActive() bool { return s.Active == nil || *s.Active }

type integrationsFile struct {
	Integrations []IntegrationSeed `yaml:"integrations"`
}

// LoadIntegrations reads and validates an integration seed file. An empty
// path yields no seeds.
func LoadIntegrations(path string) ([]IntegrationSeed, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read integrations file: %w", err)
	}
	return ParseIntegrations(raw)
}

// ParseIntegrations decodes a seed document. Unknown keys are rejected so a
// typo in a field name does not silently drop a secret.
func ParseIntegrations(raw []byte) ([]IntegrationSeed, error) {
	var doc integrationsFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse integrations file: %w", err)
	}

	seen := make(map[string]int, len(doc.Integrations))
	out := make([]IntegrationSeed, 0, len(doc.Integrations))
	for i, s := range doc.Integrations {
		s.TenantID = strings.TrimSpace(s.TenantID)
		s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
		s.Secret = strings.TrimSpace(os.ExpandEnv(s.Secret))
		switch {
		case s.TenantID == "":
			return nil, fmt.Errorf("integrations[%d]: tenant_id is required", i)
		case s.Provider == "":
			return nil, fmt.Errorf("integrations[%d]: provider is required", i)
		case s.Secret == "":
			return nil, fmt.Errorf("integrations[%d] (%s/%s): secret is empty", i, s.TenantID, s.Provider)
		}
		key := s.TenantID + "/" + s.Provider
		if j, dup := seen[key]; dup {
			return nil, fmt.Errorf("integrations[%d]: duplicate of integrations[%d] (%s)", i, j, key)
		}
		seen[key] = i
		out = append(out, s)
	}
	return out, nil
}
