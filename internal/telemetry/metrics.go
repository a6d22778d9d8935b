package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/cargomesh/mfgbatch"
)

// Metrics holds the OpenTelemetry instruments for the transaction processor.
type Metrics struct {
	// Apply outcomes
	TransactionsAppliedTotal metric.Int64Counter
	TransactionsInvalidTotal metric.Int64Counter
	TransactionsFailedTotal  metric.Int64Counter
	ApplyDuration            metric.Float64Histogram

	// State access
	StateReadsTotal  metric.Int64Counter
	StateWritesTotal metric.Int64Counter

	// Validator connection
	ValidatorReconnectsTotal metric.Int64Counter

	// Read-side replica
	BatchesProjectedTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.TransactionsAppliedTotal, _ = meter.Int64Counter(
		"mfgbatch.transactions.applied.total",
		metric.WithDescription("Total number of transactions applied successfully"),
		metric.WithUnit("{transaction}"),
	)

	m.TransactionsInvalidTotal, _ = meter.Int64Counter(
		"mfgbatch.transactions.invalid.total",
		metric.WithDescription("Total number of transactions rejected as invalid"),
		metric.WithUnit("{transaction}"),
	)

	m.TransactionsFailedTotal, _ = meter.Int64Counter(
		"mfgbatch.transactions.failed.total",
		metric.WithDescription("Total number of transactions aborted by internal errors"),
		metric.WithUnit("{transaction}"),
	)

	m.ApplyDuration, _ = meter.Float64Histogram(
		"mfgbatch.transactions.apply.duration",
		metric.WithDescription("Duration of transaction apply calls"),
		metric.WithUnit("ms"),
	)

	m.StateReadsTotal, _ = meter.Int64Counter(
		"mfgbatch.state.reads.total",
		metric.WithDescription("Total number of state read requests"),
		metric.WithUnit("{request}"),
	)

	m.StateWritesTotal, _ = meter.Int64Counter(
		"mfgbatch.state.writes.total",
		metric.WithDescription("Total number of state write requests"),
		metric.WithUnit("{request}"),
	)

	m.ValidatorReconnectsTotal, _ = meter.Int64Counter(
		"mfgbatch.validator.reconnects.total",
		metric.WithDescription("Total number of validator reconnect attempts"),
		metric.WithUnit("{attempt}"),
	)

	m.BatchesProjectedTotal, _ = meter.Int64Counter(
		"mfgbatch.replica.batches.projected.total",
		metric.WithDescription("Total number of batch records projected into the read-side store"),
		metric.WithUnit("{record}"),
	)

	return m
}
