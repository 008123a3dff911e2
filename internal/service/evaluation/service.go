// Package evaluation orchestrates the compliance pipeline: jurisdiction
// resolution, deterministic rule evaluation, PHI detection, risk scoring and
// audit recording, in that order, for each transfer evaluation request.
package evaluation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/audit"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/jurisdiction"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/phi"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/risk"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/rules"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/transfer"
	"github.com/davidleathers/crossborder-health-compliance/internal/infrastructure/cache"
	"github.com/davidleathers/crossborder-health-compliance/internal/infrastructure/telemetry"
	"github.com/davidleathers/crossborder-health-compliance/internal/metrics"
)

// Request is one transfer evaluation input.
type Request struct {
	Source      catalog.JurisdictionCode
	Destination catalog.JurisdictionCode
	Residency   catalog.JurisdictionCode
	Path        []catalog.JurisdictionCode
	Dataset     map[string]any
}

// Result is the full evaluation output. Audited is false when the ledger
// append failed and the record is queued for retry; the result is still
// usable but must be surfaced as unaudited.
type Result struct {
	RecordID           uuid.UUID                       `json:"record_id"`
	Sequence           int64                           `json:"sequence"`
	Audited            bool                            `json:"audited"`
	CatalogVersion     string                          `json:"catalog_version"`
	DatasetFingerprint string                          `json:"dataset_fingerprint"`
	Regulations        []catalog.RegulationID          `json:"regulations"`
	Reasoning          map[catalog.RegulationID]string `json:"reasoning"`
	Touched            []catalog.JurisdictionCode      `json:"touched"`
	Outcomes           []rules.Outcome                 `json:"outcomes"`
	Findings           []phi.Finding                   `json:"findings"`
	Degraded           bool                            `json:"degraded"`
	Score              risk.Score                      `json:"score"`
	Cached             bool                            `json:"cached"`
}

// cachedEvaluation is the memoized pipeline output. The ledger record is
// never cached: every evaluation is recorded, cached or not.
type cachedEvaluation struct {
	Regulations []catalog.RegulationID          `json:"regulations"`
	Reasoning   map[catalog.RegulationID]string `json:"reasoning"`
	Touched     []catalog.JurisdictionCode      `json:"touched"`
	Outcomes    []rules.Outcome                 `json:"outcomes"`
	Findings    []phi.Finding                   `json:"findings"`
	Degraded    bool                            `json:"degraded"`
	Score       risk.Score                      `json:"score"`
}

// Service runs the pipeline. All collaborators are fixed at construction;
// a single instance serves concurrent requests.
type Service struct {
	catalog  *catalog.Catalog
	resolver *jurisdiction.Resolver
	engine   *rules.Engine
	detector *phi.Detector
	scorer   *risk.Scorer
	ledger   *audit.Ledger

	cache    cache.Cache
	cacheTTL time.Duration
	registry *metrics.Registry

	logger *slog.Logger
	tracer trace.Tracer
}

// Config holds the service's optional collaborators.
type Config struct {
	// Cache memoizes pipeline outputs; nil disables memoization.
	Cache    cache.Cache
	CacheTTL time.Duration
	// Registry receives domain metrics; nil disables them.
	Registry *metrics.Registry
}

// NewService wires the pipeline over a catalog snapshot and a ledger.
func NewService(
	cat *catalog.Catalog,
	detector *phi.Detector,
	scorer *risk.Scorer,
	ledger *audit.Ledger,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.Registry != nil {
		detector.ObserveClassifier(func(ctx context.Context, elapsed time.Duration, err error) {
			cfg.Registry.ClassifierCallDuration.Record(ctx,
				float64(elapsed.Microseconds())/1000.0,
				metric.WithAttributes(attribute.Bool("error", err != nil)))
		})
	}
	return &Service{
		catalog:  cat,
		resolver: jurisdiction.NewResolver(cat),
		engine:   rules.NewEngine(),
		detector: detector,
		scorer:   scorer,
		ledger:   ledger,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		registry: cfg.Registry,
		logger:   logger,
		tracer:   telemetry.Tracer("evaluation"),
	}
}

// Evaluate runs the full pipeline for one request. The pipeline result is a
// pure function of (catalog version, request); the ledger append is the only
// side effect and is attempted on every call, including cache hits.
func (s *Service) Evaluate(ctx context.Context, req Request) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.Evaluate",
		trace.WithAttributes(
			attribute.String("source", string(req.Source)),
			attribute.String("destination", string(req.Destination)),
			attribute.Int("path_length", len(req.Path)),
		))
	defer span.End()
	started := time.Now()

	path := transfer.NewTransferPath(req.Path...)
	ds := transfer.NewDataset(req.Dataset)

	fingerprint, err := ds.Fingerprint()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result, err := s.pipeline(ctx, req, path, ds, fingerprint)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	result.CatalogVersion = s.catalog.Version()
	result.DatasetFingerprint = fingerprint

	record, appendErr := s.ledger.Append(ctx, audit.Entry{
		CatalogVersion:     result.CatalogVersion,
		DatasetFingerprint: fingerprint,
		Path:               path,
		Regulations:        result.Regulations,
		Outcomes:           result.Outcomes,
		Findings:           result.Findings,
		Degraded:           result.Degraded,
		Score:              &result.Score,
	})
	if appendErr != nil {
		// Queued for retry by the ledger; the evaluation stands, unaudited.
		telemetry.WithContext(ctx, s.logger).Warn("ledger append deferred",
			"fingerprint", fingerprint,
			"pending", s.ledger.PendingCount(),
			"error", appendErr)
	} else {
		result.Audited = true
		result.RecordID = record.ID
		result.Sequence = record.Sequence
	}

	violations := len(rules.Violations(result.Outcomes))
	if s.registry != nil {
		s.registry.RecordEvaluation(ctx,
			float64(time.Since(started).Microseconds())/1000.0,
			string(result.Score.Band), violations)
		s.registry.LedgerAppendCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(audit.KindEvaluation)),
			attribute.Bool("deferred", appendErr != nil)))
		s.registry.SetLedgerPending(int64(s.ledger.PendingCount()))
	}

	telemetry.WithContext(ctx, s.logger).Info("transfer evaluated",
		"source", req.Source,
		"destination", req.Destination,
		"regulations", len(result.Regulations),
		"violations", violations,
		"findings", len(result.Findings),
		"band", result.Score.Band,
		"audited", result.Audited,
		"cached", result.Cached)

	return result, nil
}

// pipeline computes the evaluation, consulting the cache first. Cache keys
// cover the catalog version and everything that shapes the result: dataset
// fingerprint, path, residency.
func (s *Service) pipeline(
	ctx context.Context,
	req Request,
	path transfer.TransferPath,
	ds transfer.Dataset,
	fingerprint string,
) (*Result, error) {
	key := ""
	if s.cache != nil {
		key = cache.EvaluationKey(requestFingerprint(req, fingerprint), s.catalog.Version())
		var hit cachedEvaluation
		if err := s.cache.GetJSON(ctx, key, &hit); err == nil {
			if s.registry != nil {
				s.registry.CacheHitCounter.Add(ctx, 1)
			}
			return &Result{
				Regulations: hit.Regulations,
				Reasoning:   hit.Reasoning,
				Touched:     hit.Touched,
				Outcomes:    hit.Outcomes,
				Findings:    hit.Findings,
				Degraded:    hit.Degraded,
				Score:       hit.Score,
				Cached:      true,
			}, nil
		}
		if s.registry != nil {
			s.registry.CacheMissCounter.Add(ctx, 1)
		}
	}

	resolution, err := s.resolver.Resolve(req.Source, req.Destination, req.Residency, path)
	if err != nil {
		return nil, err
	}

	outcomes := s.engine.Evaluate(ds, resolution.Regulations)
	detection := s.detector.Detect(ctx, ds)
	score := s.scorer.Score(outcomes, detection.Findings)

	result := &Result{
		Regulations: resolution.IDs(),
		Reasoning:   resolution.Reasoning,
		Touched:     resolution.Touched,
		Outcomes:    outcomes,
		Findings:    detection.Findings,
		Degraded:    detection.Degraded,
		Score:       score,
	}

	if s.registry != nil {
		if detection.Degraded {
			s.registry.DegradedDetectionCount.Add(ctx, 1)
		}
		for _, f := range detection.Findings {
			s.registry.FindingCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("type", string(f.Type)),
				attribute.String("method", string(f.Method))))
		}
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, cachedEvaluation{
			Regulations: result.Regulations,
			Reasoning:   result.Reasoning,
			Touched:     result.Touched,
			Outcomes:    result.Outcomes,
			Findings:    result.Findings,
			Degraded:    result.Degraded,
			Score:       result.Score,
		}, s.cacheTTL); err != nil {
			telemetry.WithContext(ctx, s.logger).Warn("evaluation cache write failed", "error", err)
		}
	}
	return result, nil
}

// RecordDecision appends a reviewer's verdict referencing an evaluation
// record. The score never decides; this is where the human does.
func (s *Service) RecordDecision(ctx context.Context, evaluationID uuid.UUID, approval audit.ApprovalDecision) (*audit.Record, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.RecordDecision",
		trace.WithAttributes(attribute.String("evaluation_id", evaluationID.String())))
	defer span.End()

	if approval.Decision != audit.DecisionApprove && approval.Decision != audit.DecisionReject {
		err := errors.NewValidationError("INVALID_DECISION", "decision must be APPROVE or REJECT")
		telemetry.RecordError(span, err)
		return nil, err
	}
	if approval.Timestamp.IsZero() {
		approval.Timestamp = time.Now().UTC()
	}

	record, err := s.ledger.AppendDecision(ctx, evaluationID, approval)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if s.registry != nil {
		s.registry.LedgerAppendCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(audit.KindDecision)),
			attribute.Bool("deferred", false)))
	}

	telemetry.WithContext(ctx, s.logger).Info("decision recorded",
		"evaluation_id", evaluationID,
		"decision", approval.Decision,
		"reviewer", approval.ReviewerID,
		"sequence", record.Sequence)
	return record, nil
}

// RecordCorrection appends a correction record referencing the original.
func (s *Service) RecordCorrection(ctx context.Context, originalID uuid.UUID, entry audit.Entry) (*audit.Record, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.RecordCorrection")
	defer span.End()

	record, err := s.ledger.AppendCorrection(ctx, originalID, entry)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if s.registry != nil {
		s.registry.LedgerAppendCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(audit.KindCorrection)),
			attribute.Bool("deferred", false)))
	}
	return record, nil
}

// VerifyLedger recomputes the hash chain over a sequence range.
func (s *Service) VerifyLedger(ctx context.Context, from, to int64) (*audit.VerificationResult, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.VerifyLedger")
	defer span.End()
	return s.ledger.VerifyChain(ctx, from, to)
}

// PurgeExpired removes records past the retention window and records the
// purge itself.
func (s *Service) PurgeExpired(ctx context.Context, policyNote string) (*audit.Record, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.PurgeExpired")
	defer span.End()

	record, err := s.ledger.PurgeExpired(ctx, time.Now().UTC(), policyNote)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if record != nil {
		telemetry.WithContext(ctx, s.logger).Info("retention purge recorded",
			"purged", len(record.PurgedSequences),
			"sequence", record.Sequence)
	}
	return record, nil
}

// RetryPendingAppends flushes queued ledger entries.
func (s *Service) RetryPendingAppends(ctx context.Context) (int, error) {
	flushed, err := s.ledger.RetryPending(ctx)
	if s.registry != nil {
		s.registry.SetLedgerPending(int64(s.ledger.PendingCount()))
	}
	if flushed > 0 {
		telemetry.WithContext(ctx, s.logger).Info("pending ledger entries flushed", "count", flushed)
	}
	return flushed, err
}

// RedactPreview returns a copy of the dataset with every finding's span
// replaced by a type-tagged placeholder. The original is never touched.
func (s *Service) RedactPreview(ctx context.Context, dataset map[string]any) (map[string]any, []phi.Finding, error) {
	ds := transfer.NewDataset(dataset)
	detection := s.detector.Detect(ctx, ds)
	redacted := phi.Redact(ds, detection.Findings)
	return redacted.Root(), detection.Findings, nil
}

// requestFingerprint digests everything outside the dataset that shapes an
// evaluation, combined with the dataset fingerprint.
func requestFingerprint(req Request, datasetFingerprint string) string {
	parts := []string{
		datasetFingerprint,
		string(req.Source),
		string(req.Destination),
		string(req.Residency),
	}
	for _, hop := range req.Path {
		parts = append(parts, string(hop))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
