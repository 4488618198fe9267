package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"smartplug-telemetry-backend/internal/ecoflow"
	"smartplug-telemetry-backend/internal/metrics"
	"smartplug-telemetry-backend/internal/model"
	"smartplug-telemetry-backend/internal/store"
)

// VendorClient is the vendor API surface the ingestor consumes.
type VendorClient interface {
	DeviceList(ctx context.Context) ([]ecoflow.Device, error)
	DevicesWithQuota(ctx context.Context) ([]ecoflow.DeviceWithQuota, error)
}

// Result reports the outcome of ingesting one device's quota snapshot.
type Result struct {
	SN  string
	Err error
}

// Service pulls current readings for every known device and appends raw
// sample rows. Each invocation appends unconditionally; the scheduler is
// responsible for not running two ingestion sweeps at once.
type Service struct {
	store  store.Store
	client VendorClient
}

// NewService creates an ingestion service.
func NewService(st store.Store, client VendorClient) *Service {
	return &Service{store: st, client: client}
}

// SyncDevices upserts the vendor device list into the registry. Devices
// missing from a vendor response are kept.
func (s *Service) SyncDevices(ctx context.Context) error {
	devices, err := s.client.DeviceList(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch device list: %w", err)
	}
	return s.store.UpsertDevices(ctx, mapDevices(devices))
}

// IngestAll syncs the device registry and appends one raw sample per
// device from its live quota snapshot. A failure on one device is recorded
// in its result entry and never aborts the sweep. The returned error is
// only non-nil when the whole sweep could not start.
func (s *Service) IngestAll(ctx context.Context) ([]Result, error) {
	entries, err := s.client.DevicesWithQuota(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch devices: %w", err)
	}

	devices := make([]ecoflow.Device, 0, len(entries))
	for _, e := range entries {
		devices = append(devices, e.Device)
	}
	if err := s.store.UpsertDevices(ctx, mapDevices(devices)); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(entries))
	for _, entry := range entries {
		results = append(results, Result{SN: entry.SN, Err: s.ingestOne(ctx, entry)})
	}
	return results, nil
}

func (s *Service) ingestOne(ctx context.Context, entry ecoflow.DeviceWithQuota) error {
	if entry.SN == "" {
		return errors.New("vendor device has no serial number")
	}
	if entry.QuotaError != nil {
		metrics.IngestErrors.Inc()
		return errors.New(*entry.QuotaError)
	}

	device, err := s.store.DeviceBySerial(ctx, entry.SN)
	if errors.Is(err, store.ErrDeviceNotFound) {
		log.Printf("Device with SN %s not found; skipping quota data.", entry.SN)
		return err
	}
	if err != nil {
		metrics.IngestErrors.Inc()
		return err
	}

	sample := buildSample(device, entry.Quota)
	if err := s.store.CreateSample(ctx, sample); err != nil {
		metrics.IngestErrors.Inc()
		return fmt.Errorf("failed to store sample for %s: %w", entry.SN, err)
	}
	metrics.SamplesIngested.Inc()
	return nil
}

// buildSample maps a quota snapshot onto a raw sample row. The vendor
// reports watts scaled by 10, and its UTC epoch-seconds timestamp becomes
// the EAT bucketing key; an unparseable timestamp leaves the key null and
// the sample is kept but never aggregated.
func buildSample(device *model.Device, quota ecoflow.Quota) *model.Sample {
	fields := ecoflow.ExtractQuotaFields(quota)

	var watts *float64
	if fields.Watts != nil {
		w := *fields.Watts / 10
		watts = &w
	}

	return &model.Sample{
		DeviceID:     device.ID,
		SerialNumber: device.SN,
		UTCTime:      fields.UTCTime,
		EATTime:      eatTime(fields.UTCTime),
		UpdateTime:   fields.UpdateTime,
		TimeZone:     fields.TimeZone,
		Country:      fields.Country,
		Town:         fields.Town,
		SwitchStatus: fields.SwitchStatus,
		Freq:         fields.Freq,
		Volt:         fields.Volt,
		Current:      fields.Current,
		Watts:        watts,
		QuotaData:    quota,
	}
}

// eatTime converts a vendor epoch-seconds timestamp to the fixed UTC+3
// bucketing timestamp, or nil when missing or unparseable.
func eatTime(utcTime string) *time.Time {
	if utcTime == "" {
		return nil
	}
	secs, err := strconv.ParseFloat(utcTime, 64)
	if err != nil {
		log.Printf("Warning: unparseable vendor timestamp %q", utcTime)
		return nil
	}
	t := time.Unix(int64(secs), 0).In(model.EAT)
	return &t
}

func mapDevices(devices []ecoflow.Device) []model.Device {
	out := make([]model.Device, 0, len(devices))
	for _, d := range devices {
		if d.SN == "" {
			continue
		}
		out = append(out, model.Device{
			SN:          d.SN,
			Name:        d.Name,
			Model:       d.Model,
			Status:      d.Status,
			Online:      d.Online(),
			ProductName: d.ProductName(),
			FullInfo:    d.FullInfo,
		})
	}
	return out
}
