package cache

import (
	"context"
	"time"

	"retailpos/backend/internal/domain"
)

// ReportCache stores computed daily reports keyed by date.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.DailyReport, bool, error)
	Set(ctx context.Context, key string, value *domain.DailyReport, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.DailyReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.DailyReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

// DailyReportKey is the cache key for the report of one calendar day.
func DailyReportKey(date string) string {
	return "retailpos:report:daily:" + date
}
