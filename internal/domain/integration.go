package domain

import "time"

// Integration stores the webhook signing secret a tenant configured for one
// provider. Gateway lookups are keyed by (tenant_id, provider).
type Integration struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_integration_tenant_provider,priority:1"`
	Provider  Source    `json:"provider"  gorm:"type:varchar(32);not null;uniqueIndex:ux_integration_tenant_provider,priority:2"`
	Secret    string    `json:"-"         gorm:"type:text;not null"`
	Active    bool      `json:"active"    gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName implements the GORM tabler interface.
func (Integration) TableName() string { return "integrations" }

// TenantUsage counts reserved units of one kind for a tenant in a billing
// period (e.g. "2026-10").
type TenantUsage struct {
	TenantID  string    `gorm:"type:varchar(64);primaryKey"`
	Kind      string    `gorm:"type:varchar(32);primaryKey"`
	Period    string    `gorm:"type:varchar(16);primaryKey"`
	Used      int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// TableName implements the GORM tabler interface.
func (TenantUsage) TableName() string { return "tenant_usage" }
