package sched

import (
	"context"
	"log"
	"time"

	"smartplug-telemetry-backend/config"
	"smartplug-telemetry-backend/internal/aggregate"
	"smartplug-telemetry-backend/internal/forward"
	"smartplug-telemetry-backend/internal/ingest"
	"smartplug-telemetry-backend/internal/retention"
)

// Runner drives the periodic jobs on independent cadences. Each job type
// runs in its own single goroutine loop, so two executions of the same job
// never overlap; that is the only overlap guard the pipeline relies on.
type Runner struct {
	cfg        *config.Config
	ingestor   *ingest.Service
	aggregator *aggregate.Service
	retention  *retention.Service
	forwarder  *forward.Service
}

// NewRunner creates a scheduler over the pipeline services.
func NewRunner(cfg *config.Config, in *ingest.Service, agg *aggregate.Service, ret *retention.Service, fwd *forward.Service) *Runner {
	return &Runner{
		cfg:        cfg,
		ingestor:   in,
		aggregator: agg,
		retention:  ret,
		forwarder:  fwd,
	}
}

// Run starts the job loops and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	if !r.cfg.Scheduler.Enabled {
		log.Println("Scheduler is disabled. Not starting.")
		return
	}
	log.Println("Starting scheduler...")

	go r.loop(ctx, "ingest", r.cfg.Scheduler.IngestInterval, r.runIngest)
	go r.loop(ctx, "aggregate", r.cfg.Scheduler.AggregateInterval, r.runAggregate)
	go r.loop(ctx, "retention", r.cfg.Scheduler.RetentionInterval, r.runRetention)
	go r.loop(ctx, "push", r.cfg.Scheduler.PushInterval, r.runPush)

	<-ctx.Done()
	log.Println("Scheduler shutting down.")
}

// loop runs job immediately and then on every interval tick. The timer is
// reset only after the job returns, so a slow run delays the next tick
// instead of stacking up.
func (r *Runner) loop(ctx context.Context, name string, interval time.Duration, job func(context.Context)) {
	job(ctx)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			job(ctx)
			timer.Reset(interval)
		}
	}
}

func (r *Runner) runIngest(ctx context.Context) {
	results, err := r.ingestor.IngestAll(ctx)
	if err != nil {
		log.Printf("Ingestion sweep failed: %v", err)
		return
	}
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			log.Printf("Error ingesting %s: %v", res.SN, res.Err)
		}
	}
	if failed > 0 {
		log.Printf("Ingestion sweep finished: %d/%d devices failed", failed, len(results))
	}
}

func (r *Runner) runAggregate(ctx context.Context) {
	results, err := r.aggregator.AggregateAll(ctx, r.cfg.Aggregation.BucketSeconds)
	if err != nil {
		log.Printf("Aggregation run failed: %v", err)
		return
	}
	buckets := 0
	for _, res := range results {
		if res.Err != nil {
			log.Printf("Error aggregating %s: %v", res.SN, res.Err)
			continue
		}
		buckets += res.Buckets
	}
	if buckets > 0 {
		log.Printf("Aggregation run complete: %d buckets across %d devices", buckets, len(results))
	}
}

func (r *Runner) runRetention(ctx context.Context) {
	deleted, err := r.retention.PurgeOldAggregated(ctx, r.cfg.Retention.MaxAge)
	if err != nil {
		log.Printf("Retention run failed: %v", err)
		return
	}
	log.Printf("Deleted %d old aggregated samples.", deleted)
}

func (r *Runner) runPush(ctx context.Context) {
	result, err := r.forwarder.PushPending(ctx)
	if err != nil {
		log.Printf("Push failed: %v", err)
		return
	}
	if result.NothingToPush {
		log.Println("No unpushed aggregates found.")
		return
	}
	log.Printf("Successfully pushed %d aggregates.", result.Pushed)
}
