package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplug_samples_ingested_total",
			Help: "Total number of raw samples stored",
		},
	)

	IngestErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplug_ingest_errors_total",
			Help: "Total number of per-device ingestion failures",
		},
	)

	AggregatesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplug_aggregates_written_total",
			Help: "Total number of aggregate buckets committed",
		},
	)

	AggregateErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplug_aggregate_errors_total",
			Help: "Total number of per-device aggregation failures",
		},
	)

	SamplesPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplug_samples_purged_total",
			Help: "Total number of raw samples deleted by retention",
		},
	)

	AggregatesPushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplug_aggregates_pushed_total",
			Help: "Total number of aggregates delivered downstream",
		},
	)

	PushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplug_push_failures_total",
			Help: "Total number of failed downstream push batches",
		},
	)
)
