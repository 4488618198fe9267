package retention

import (
	"context"
	"time"

	"smartplug-telemetry-backend/internal/metrics"
	"smartplug-telemetry-backend/internal/store"
)

// Service deletes raw samples that have been aggregated and have aged out
// of the retention window. Samples with a null bucketing timestamp have no
// age to compare and are never purged.
type Service struct {
	store store.Store
}

// NewService creates a retention service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// PurgeOldAggregated deletes aggregated samples older than now-maxAge and
// reports how many were removed.
func (s *Service) PurgeOldAggregated(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	deleted, err := s.store.PurgeAggregatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.SamplesPurged.Add(float64(deleted))
	return deleted, nil
}
