package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-pipeline/internal/repo"
)

// QuotaKindFeedback is the usage kind consumed by each new record.
const QuotaKindFeedback = "feedback"

// QuotaChecker is the subscription collaborator consulted before a record is
// stored. A true result means one unit was reserved.
type QuotaChecker interface {
	CheckAndReserve(ctx context.Context, tenantID, kind string) (bool, error)
}

// DBQuota keeps monthly counters in the tenant_usage table. MonthlyLimit <= 0
// means unlimited, though usage is still counted.
type DBQuota struct {
	DB           *gorm.DB
	MonthlyLimit int64
	Now          func() time.Time
}

// CheckAndReserve implements QuotaChecker.
func (q *DBQuota) CheckAndReserve(ctx context.Context, tenantID, kind string) (bool, error) {
	now := time.Now().UTC()
	if q.Now != nil {
		now = q.Now()
	}
	return repo.ReserveUsage(ctx, q.DB, tenantID, kind, now.Format("2006-01"), q.MonthlyLimit)
}
