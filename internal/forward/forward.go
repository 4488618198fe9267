package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"smartplug-telemetry-backend/config"
	"smartplug-telemetry-backend/internal/metrics"
	"smartplug-telemetry-backend/internal/model"
	"smartplug-telemetry-backend/internal/store"
)

const meteredAtLayout = "2006-01-02 15:04:05"

// aggregatePayload is one row of the downstream batch.
type aggregatePayload struct {
	Manufacturer        string   `json:"manufacturer"`
	SerialNumber        string   `json:"serial_number"`
	MeteredAt           string   `json:"metered_at"`
	Phase               string   `json:"phase"`
	VoltageV            *float64 `json:"voltage_v"`
	PowerFactor         *float64 `json:"power_factor"`
	PowerW              *float64 `json:"power_w"`
	EnergyLifetimeWh    *float64 `json:"energy_lifetime_wh"`
	EnergyIntervalWh    *float64 `json:"energy_interval_wh"`
	FrequencyHz         *float64 `json:"frequency_hz"`
	CurrentA            *float64 `json:"current_a"`
	IntervalSeconds     int      `json:"interval_seconds"`
	BillingCycleStartAt *string  `json:"billing_cycle_start_at"`
}

// Result reports the outcome of one push cycle.
type Result struct {
	Pushed        int
	NothingToPush bool
}

// Service delivers unpushed aggregates to the downstream billing endpoint
// as a single batch. Delivery is at-least-once: rows are only flagged
// pushed after a confirmed 2xx, and a failed batch is retried whole on the
// next cycle.
type Service struct {
	cfg    *config.DownstreamConfig
	store  store.Store
	client *http.Client
}

// NewService creates a forwarder.
func NewService(cfg *config.DownstreamConfig, st store.Store) *Service {
	return &Service{
		cfg:   cfg,
		store: st,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// PushPending selects every unpushed aggregate, oldest first, and submits
// them as one bearer-authenticated request. With nothing to push it
// returns immediately without an HTTP call.
func (s *Service) PushPending(ctx context.Context) (Result, error) {
	rows, err := s.store.UnpushedAggregates(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(rows) == 0 {
		return Result{NothingToPush: true}, nil
	}

	payload := struct {
		Data []aggregatePayload `json:"data"`
	}{Data: make([]aggregatePayload, 0, len(rows))}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		payload.Data = append(payload.Data, buildPayload(row))
		ids = append(ids, row.ID)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.PushFailures.Inc()
		return Result{}, fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.PushFailures.Inc()
		return Result{}, fmt.Errorf("downstream returned status %d", resp.StatusCode)
	}

	if err := s.store.MarkAggregatesPushed(ctx, ids); err != nil {
		// The batch was delivered but not flagged; it will be re-sent next
		// cycle, which the at-least-once contract allows.
		return Result{}, fmt.Errorf("failed to flag aggregates pushed: %w", err)
	}

	metrics.AggregatesPushed.Add(float64(len(ids)))
	return Result{Pushed: len(ids)}, nil
}

func buildPayload(row model.AggregateRow) aggregatePayload {
	var billingStart *string
	if row.BillingCycleStartAt != nil {
		v := row.BillingCycleStartAt.Format("2006-01-02")
		billingStart = &v
	}

	return aggregatePayload{
		Manufacturer:        row.Manufacturer,
		SerialNumber:        row.SerialNumber,
		MeteredAt:           row.MeteredAt.In(model.EAT).Format(meteredAtLayout),
		Phase:               row.Phase,
		VoltageV:            row.VoltageV,
		PowerFactor:         row.PowerFactor,
		PowerW:              row.PowerW,
		EnergyLifetimeWh:    row.EnergyLifetimeWh,
		EnergyIntervalWh:    row.EnergyIntervalWh,
		FrequencyHz:         row.FrequencyHz,
		CurrentA:            row.CurrentA,
		IntervalSeconds:     row.IntervalSeconds,
		BillingCycleStartAt: billingStart,
	}
}
