package aggregate

import (
	"context"
	"errors"
	"log"
	"math"
	"sort"
	"time"

	"smartplug-telemetry-backend/internal/metrics"
	"smartplug-telemetry-backend/internal/model"
	"smartplug-telemetry-backend/internal/store"
)

// Service resamples raw samples into fixed-width energy buckets with
// cumulative lifetime-energy accounting.
type Service struct {
	store    store.Store
	poolSize int
}

// NewService creates an aggregation service. poolSize bounds how many
// devices are aggregated concurrently by AggregateAll.
func NewService(st store.Store, poolSize int) *Service {
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Service{store: st, poolSize: poolSize}
}

// Result reports the outcome of aggregating one device.
type Result struct {
	SN      string
	Buckets int
	Err     error
}

// AggregateAll runs per-device aggregation for every registered device on
// a bounded worker pool. One device's failure never blocks the others.
func (s *Service) AggregateAll(ctx context.Context, intervalSeconds int) ([]Result, error) {
	serials, err := s.store.DeviceSerials(ctx)
	if err != nil {
		return nil, err
	}

	pool := newWorkerPool(s.poolSize)
	results := pool.run(ctx, serials, func(ctx context.Context, sn string) Result {
		buckets, err := s.AggregateDevice(ctx, sn, intervalSeconds)
		if err != nil {
			metrics.AggregateErrors.Inc()
		}
		return Result{SN: sn, Buckets: buckets, Err: err}
	})
	return results, nil
}

// AggregateDevice buckets every unconsumed sample of one device and
// commits the produced aggregates. It returns the number of buckets
// written.
//
// Every loaded sample is flagged aggregated even when its bucket produced
// no aggregate (no valid power readings): such data is permanently
// unaggregatable and reprocessing it forever would be worse.
func (s *Service) AggregateDevice(ctx context.Context, sn string, intervalSeconds int) (int, error) {
	device, err := s.store.DeviceBySerial(ctx, sn)
	if errors.Is(err, store.ErrDeviceNotFound) {
		log.Printf("Device with SN %s not found; skipping aggregation.", sn)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	samples, err := s.store.UnaggregatedSamples(ctx, device.ID)
	if err != nil {
		return 0, err
	}
	if len(samples) == 0 {
		return 0, nil
	}

	interval := int64(intervalSeconds)
	buckets := make(map[int64]*bucketAcc)
	sampleIDs := make([]int64, 0, len(samples))
	for _, smp := range samples {
		sampleIDs = append(sampleIDs, smp.ID)
		ts := smp.EATTime.Unix()
		start := ts - mod(ts, interval)
		acc, ok := buckets[start]
		if !ok {
			acc = &bucketAcc{}
			buckets[start] = acc
		}
		acc.observe(smp)
	}

	starts := make([]int64, 0, len(buckets))
	for start := range buckets {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	prior, err := s.store.LatestAggregate(ctx, device.ID)
	if err != nil {
		return 0, err
	}
	lifetime := 0.0
	if prior != nil && prior.EnergyLifetimeWh != nil {
		lifetime = *prior.EnergyLifetimeWh
	}

	intervalHours := float64(intervalSeconds) / 3600
	rows := make([]model.AggregateRow, 0, len(starts))
	for _, start := range starts {
		acc := buckets[start]
		meanPower, ok := acc.power.mean()
		if !ok {
			// No valid power samples in this bucket: drop it. The source
			// rows are still consumed below.
			continue
		}

		energy := meanPower * intervalHours
		lifetime += energy

		rows = append(rows, model.AggregateRow{
			DeviceID:         device.ID,
			Manufacturer:     "Ecoflow",
			SerialNumber:     device.SN,
			Country:          acc.country,
			Town:             acc.town,
			SwitchStatus:     acc.switchStatus,
			MeteredAt:        time.Unix(start, 0).In(model.EAT),
			IntervalSeconds:  intervalSeconds,
			Phase:            "1",
			VoltageV:         roundedMean(acc.volt),
			CurrentA:         roundedMean(acc.current),
			FrequencyHz:      roundedMean(acc.freq),
			PowerW:           ptr(round2(meanPower)),
			PowerFactor:      ptr(1.0),
			EnergyIntervalWh: ptr(round2(energy)),
			EnergyLifetimeWh: ptr(round2(lifetime)),
		})
	}

	if err := s.store.CommitAggregates(ctx, rows, sampleIDs); err != nil {
		return 0, err
	}
	metrics.AggregatesWritten.Add(float64(len(rows)))
	return len(rows), nil
}

// bucketAcc accumulates one bucket. Samples are observed in ascending
// bucketing-timestamp order, so the last non-null value wins for the
// last-observed fields.
type bucketAcc struct {
	volt    meanAcc
	current meanAcc
	freq    meanAcc
	power   meanAcc

	switchStatus *int
	country      *string
	town         *string
}

func (b *bucketAcc) observe(s model.Sample) {
	b.volt.add(s.Volt)
	b.current.add(s.Current)
	b.freq.add(s.Freq)
	b.power.add(s.Watts)
	if s.SwitchStatus != nil {
		b.switchStatus = s.SwitchStatus
	}
	if s.Country != nil {
		b.country = s.Country
	}
	if s.Town != nil {
		b.town = s.Town
	}
}

// meanAcc tracks a null-ignoring arithmetic mean.
type meanAcc struct {
	sum float64
	n   int
}

func (m *meanAcc) add(v *float64) {
	if v != nil {
		m.sum += *v
		m.n++
	}
}

func (m meanAcc) mean() (float64, bool) {
	if m.n == 0 {
		return 0, false
	}
	return m.sum / float64(m.n), true
}

func roundedMean(m meanAcc) *float64 {
	v, ok := m.mean()
	if !ok {
		return nil
	}
	return ptr(round2(v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr(v float64) *float64 {
	return &v
}

// mod is a floored modulo so pre-1970 timestamps still land in the bucket
// that starts before them.
func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
