// Package metrics holds the application's OpenTelemetry instruments.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds all domain-specific metrics for the application.
type Registry struct {
	meter metric.Meter

	// Evaluation metrics
	EvaluationDuration metric.Float64Histogram
	EvaluationCounter  metric.Int64Counter
	ViolationCounter   metric.Int64Counter
	RiskBandCounter    metric.Int64Counter

	// PHI detection metrics
	FindingCounter         metric.Int64Counter
	DegradedDetectionCount metric.Int64Counter
	ClassifierCallDuration metric.Float64Histogram

	// Ledger metrics
	LedgerAppendCounter metric.Int64Counter
	LedgerPendingGauge  metric.Int64ObservableGauge

	// Cache and API metrics
	CacheHitCounter    metric.Int64Counter
	CacheMissCounter   metric.Int64Counter
	APIRequestDuration metric.Float64Histogram
	APIRequestCounter  metric.Int64Counter

	mu            sync.RWMutex
	ledgerPending int64
}

// NewRegistry creates a metrics registry with all domain instruments.
func NewRegistry(meterName string) (*Registry, error) {
	r := &Registry{meter: otel.Meter(meterName)}

	if err := r.initEvaluationMetrics(); err != nil {
		return nil, err
	}
	if err := r.initDetectionMetrics(); err != nil {
		return nil, err
	}
	if err := r.initLedgerMetrics(); err != nil {
		return nil, err
	}
	if err := r.initInfraMetrics(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) initEvaluationMetrics() error {
	var err error

	r.EvaluationDuration, err = r.meter.Float64Histogram(
		"cbhc.evaluation.duration",
		metric.WithDescription("End-to-end transfer evaluation duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	r.EvaluationCounter, err = r.meter.Int64Counter(
		"cbhc.evaluation.total",
		metric.WithDescription("Total transfer evaluations processed"),
	)
	if err != nil {
		return err
	}

	r.ViolationCounter, err = r.meter.Int64Counter(
		"cbhc.evaluation.violations",
		metric.WithDescription("Rule violations found during evaluation"),
	)
	if err != nil {
		return err
	}

	r.RiskBandCounter, err = r.meter.Int64Counter(
		"cbhc.evaluation.risk_band",
		metric.WithDescription("Evaluations by resulting risk band"),
	)
	return err
}

func (r *Registry) initDetectionMetrics() error {
	var err error

	r.FindingCounter, err = r.meter.Int64Counter(
		"cbhc.phi.findings",
		metric.WithDescription("PHI findings by type and method"),
	)
	if err != nil {
		return err
	}

	r.DegradedDetectionCount, err = r.meter.Int64Counter(
		"cbhc.phi.degraded",
		metric.WithDescription("Detections that fell back to deterministic-only output"),
	)
	if err != nil {
		return err
	}

	r.ClassifierCallDuration, err = r.meter.Float64Histogram(
		"cbhc.phi.classifier.duration",
		metric.WithDescription("Probabilistic classifier call duration"),
		metric.WithUnit("ms"),
	)
	return err
}

func (r *Registry) initLedgerMetrics() error {
	var err error

	r.LedgerAppendCounter, err = r.meter.Int64Counter(
		"cbhc.ledger.appends",
		metric.WithDescription("Ledger record appends by kind and outcome"),
	)
	if err != nil {
		return err
	}

	r.LedgerPendingGauge, err = r.meter.Int64ObservableGauge(
		"cbhc.ledger.pending",
		metric.WithDescription("Records queued for retry after failed appends"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.ledgerPending)
			return nil
		}),
	)
	return err
}

func (r *Registry) initInfraMetrics() error {
	var err error

	r.CacheHitCounter, err = r.meter.Int64Counter(
		"cbhc.cache.hits",
		metric.WithDescription("Evaluation cache hits"),
	)
	if err != nil {
		return err
	}

	r.CacheMissCounter, err = r.meter.Int64Counter(
		"cbhc.cache.misses",
		metric.WithDescription("Evaluation cache misses"),
	)
	if err != nil {
		return err
	}

	r.APIRequestDuration, err = r.meter.Float64Histogram(
		"cbhc.api.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	r.APIRequestCounter, err = r.meter.Int64Counter(
		"cbhc.api.request.total",
		metric.WithDescription("Total HTTP requests by route and status"),
	)
	return err
}

// SetLedgerPending updates the pending-record gauge state.
func (r *Registry) SetLedgerPending(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledgerPending = n
}

// RecordEvaluation records one completed evaluation.
func (r *Registry) RecordEvaluation(ctx context.Context, durationMs float64, band string, violations int) {
	r.EvaluationDuration.Record(ctx, durationMs)
	r.EvaluationCounter.Add(ctx, 1)
	r.RiskBandCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("band", band)))
	if violations > 0 {
		r.ViolationCounter.Add(ctx, int64(violations))
	}
}
