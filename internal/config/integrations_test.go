package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseIntegrations(t *testing.T) {
	t.Setenv("ACME_ZD_SECRET", "s3cret")
	raw := []byte(`
integrations:
  - tenant_id: acme
    provider: Zendesk
    secret: ${ACME_ZD_SECRET}
  - tenant_id: acme
    provider: intercom
    secret: plain
    active: false
`)
	got, err := ParseIntegrations(raw)
	if err != nil {
		t.Fatalf("ParseIntegrations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Provider != "zendesk" || got[0].Secret != "s3cret" || !got[0].IsActive() {
		t.Fatalf("first seed = %+v", got[0])
	}
	if got[1].IsActive() {
		t.Fatalf("second seed should be inactive")
	}
}

func TestParseIntegrations_Errors(t *testing.T) {
	tests := map[string]string{
		"missing tenant":   "integrations:\n  - provider: zendesk\n    secret: x\n",
		"missing provider": "integrations:\n  - tenant_id: a\n    secret: x\n",
		"empty secret":     "integrations:\n  - tenant_id: a\n    provider: zendesk\n    secret: ${UNSET_SECRET_VAR}\n",
		"duplicate":        "integrations:\n  - {tenant_id: a, provider: zendesk, secret: x}\n  - {tenant_id: a, provider: ZENDESK, secret: y}\n",
		"unknown field":    "integrations:\n  - tenant_id: a\n    provider: zendesk\n    secrett: x\n",
		"bad yaml":         "integrations: [\n",
	}
	for name, doc := range tests {
		if _, err := ParseIntegrations([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseIntegrations_Empty(t *testing.T) {
	got, err := ParseIntegrations(nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty document: %v %v", got, err)
	}
}

func TestLoadIntegrations(t *testing.T) {
	if got, err := LoadIntegrations(""); err != nil || got != nil {
		t.Fatalf("empty path: %v %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "integrations.yaml")
	if err := os.WriteFile(path, []byte("integrations:\n  - {tenant_id: t1, provider: freshdesk, secret: abc}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := LoadIntegrations(path)
	if err != nil || len(got) != 1 || got[0].TenantID != "t1" {
		t.Fatalf("LoadIntegrations = %+v, %v", got, err)
	}

	_, err = LoadIntegrations(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read integrations file") {
		t.Fatalf("missing file error = %v", err)
	}
}
