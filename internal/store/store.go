package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smartplug-telemetry-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	UpsertDevices(ctx context.Context, devices []model.Device) error
	DeviceBySerial(ctx context.Context, sn string) (*model.Device, error)
	DeviceSerials(ctx context.Context) ([]string, error)

	CreateSample(ctx context.Context, sample *model.Sample) error
	UnaggregatedSamples(ctx context.Context, deviceID int64) ([]model.Sample, error)
	PurgeAggregatedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	LatestAggregate(ctx context.Context, deviceID int64) (*model.AggregateRow, error)
	CommitAggregates(ctx context.Context, rows []model.AggregateRow, sampleIDs []int64) error
	UnpushedAggregates(ctx context.Context) ([]model.AggregateRow, error)
	MarkAggregatesPushed(ctx context.Context, ids []int64) error
}

// ErrDeviceNotFound is returned when a serial number has no device record.
var ErrDeviceNotFound = errors.New("device not found")

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// UpsertDevices inserts or updates devices keyed by serial number. Devices
// absent from the batch are left untouched: a device is authoritative once
// seen, and transient vendor omissions must not remove it.
func (s *gormStore) UpsertDevices(ctx context.Context, devices []model.Device) error {
	if len(devices) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "sn"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "model", "status", "online", "product_name", "full_info", "last_updated",
		}),
	}).Create(&devices).Error
	if err != nil {
		return fmt.Errorf("batch upsert devices failed: %w", err)
	}
	return nil
}

func (s *gormStore) DeviceBySerial(ctx context.Context, sn string) (*model.Device, error) {
	var device model.Device
	err := s.db.WithContext(ctx).Where("sn = ?", sn).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (s *gormStore) DeviceSerials(ctx context.Context) ([]string, error) {
	var serials []string
	if err := s.db.WithContext(ctx).Model(&model.Device{}).Pluck("sn", &serials).Error; err != nil {
		return nil, err
	}
	return serials, nil
}

// CreateSample appends one raw sample. The denormalized serial number must
// match the owning device; it is inherited when unset, mirroring the
// device relation rather than trusting the caller.
func (s *gormStore) CreateSample(ctx context.Context, sample *model.Sample) error {
	if sample.DeviceID == 0 {
		return errors.New("sample requires a device")
	}

	var device model.Device
	if err := s.db.WithContext(ctx).First(&device, sample.DeviceID).Error; err != nil {
		return fmt.Errorf("failed to load owning device %d: %w", sample.DeviceID, err)
	}
	if sample.SerialNumber == "" {
		sample.SerialNumber = device.SN
	} else if sample.SerialNumber != device.SN {
		return fmt.Errorf("sample serial %q does not match device serial %q", sample.SerialNumber, device.SN)
	}

	return s.db.WithContext(ctx).Omit("Device").Create(sample).Error
}

// UnaggregatedSamples loads the samples eligible for bucketing: not yet
// consumed and with a non-null bucketing timestamp, in timestamp order.
func (s *gormStore) UnaggregatedSamples(ctx context.Context, deviceID int64) ([]model.Sample, error) {
	var samples []model.Sample
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND is_aggregated = ? AND eat_time IS NOT NULL", deviceID, false).
		Order("eat_time ASC").
		Find(&samples).Error
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// PurgeAggregatedBefore deletes consumed samples whose bucketing timestamp
// predates the cutoff. Null-timestamp samples are never matched here.
func (s *gormStore) PurgeAggregatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("is_aggregated = ? AND eat_time IS NOT NULL AND eat_time < ?", true, cutoff).
		Delete(&model.Sample{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// LatestAggregate returns the most recent aggregate for a device by
// metered_at, or nil when the device has none.
func (s *gormStore) LatestAggregate(ctx context.Context, deviceID int64) (*model.AggregateRow, error) {
	var row model.AggregateRow
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("metered_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// CommitAggregates upserts the produced buckets and flags the source
// samples consumed in the same transaction, so a crash cannot leave rows
// half-claimed. Rows may be empty while sampleIDs is not: samples whose
// bucket produced no aggregate are still consumed.
func (s *gormStore) CommitAggregates(ctx context.Context, rows []model.AggregateRow, sampleIDs []int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			err := tx.Omit("Device").Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "device_id"}, {Name: "metered_at"}, {Name: "interval_seconds"},
				},
				DoUpdates: clause.AssignmentColumns([]string{
					"manufacturer", "serial_number", "country", "town", "switch_status",
					"phase", "voltage_v", "current_a", "frequency_hz", "power_w",
					"power_factor", "energy_interval_wh", "energy_lifetime_wh",
					"billing_cycle_start_at",
				}),
			}).Create(&rows[i]).Error
			if err != nil {
				return fmt.Errorf("failed to upsert aggregate for device %d at %s: %w",
					rows[i].DeviceID, rows[i].MeteredAt, err)
			}
		}

		if len(sampleIDs) > 0 {
			err := tx.Model(&model.Sample{}).
				Where("id IN ?", sampleIDs).
				Update("is_aggregated", true).Error
			if err != nil {
				return fmt.Errorf("failed to flag samples aggregated: %w", err)
			}
		}
		return nil
	})
}

// UnpushedAggregates returns all aggregates pending downstream delivery,
// oldest first.
func (s *gormStore) UnpushedAggregates(ctx context.Context) ([]model.AggregateRow, error) {
	var rows []model.AggregateRow
	err := s.db.WithContext(ctx).
		Where("is_pushed = ?", false).
		Order("metered_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkAggregatesPushed flags the given aggregates as delivered.
func (s *gormStore) MarkAggregatesPushed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&model.AggregateRow{}).
		Where("id IN ?", ids).
		Update("is_pushed", true).Error
}
