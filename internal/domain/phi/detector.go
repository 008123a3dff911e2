// Package phi scans unstructured text fields for protected health
// information. Detection is two-tier: a deterministic pattern layer that is
// always authoritative, and a probabilistic assist layer that can only add
// candidate findings, never suppress or override deterministic ones.
package phi

import (
	"context"
	"sort"
	"time"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/transfer"
)

// DetectionMethod records which tier produced a finding.
type DetectionMethod string

const (
	MethodDeterministic DetectionMethod = "deterministic-pattern"
	MethodProbabilistic DetectionMethod = "probabilistic-assisted"
)

// highConfidence is the threshold above which the pattern layer's
// classification of a field is considered settled and the probabilistic
// layer is not consulted for it.
const highConfidence = 0.9

// Finding is one detected identifier span. Immutable once created.
type Finding struct {
	FieldPath    string          `json:"field_path"`
	Start        int             `json:"start"`
	End          int             `json:"end"`
	Type         catalog.PHIType `json:"type"`
	Method       DetectionMethod `json:"method"`
	Confidence   float64         `json:"confidence"`
	Citation     string          `json:"citation"`
	Corroborated bool            `json:"corroborated,omitempty"`
}

// Result is a detection run's output. Degraded marks that the probabilistic
// layer was unavailable and only deterministic findings are present.
type Result struct {
	Findings []Finding `json:"findings"`
	Degraded bool      `json:"degraded"`
}

// ClassifierObserver receives the latency and outcome of each
// probabilistic classifier call.
type ClassifierObserver func(ctx context.Context, elapsed time.Duration, err error)

// Detector applies the pattern catalog and, where configured, the
// probabilistic assist layer. Detection never mutates the source dataset;
// redaction is a separate, explicitly invoked transform.
type Detector struct {
	catalog    *catalog.Catalog
	classifier Classifier
	timeout    time.Duration
	observe    ClassifierObserver
}

// NewDetector creates a detector. classifier may be nil for
// deterministic-only deployments; timeout bounds each classifier call.
func NewDetector(cat *catalog.Catalog, classifier Classifier, timeout time.Duration) *Detector {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Detector{catalog: cat, classifier: classifier, timeout: timeout}
}

// ObserveClassifier installs an observer called after every classifier
// invocation. Instrumentation hook; detection behavior is unaffected.
func (d *Detector) ObserveClassifier(fn ClassifierObserver) {
	d.observe = fn
}

// Detect scans every string-valued leaf of the dataset. Ambiguous matches
// are reported rather than suppressed: a missed identifier is a compliance
// failure, an extra finding only adds reviewer burden.
func (d *Detector) Detect(ctx context.Context, ds transfer.Dataset) Result {
	result := Result{Findings: make([]Finding, 0)}

	ds.WalkStrings(func(path, value string) {
		findings := d.scanPatterns(path, value)

		if d.classifier != nil && !settled(findings) {
			candidates, err := d.classify(ctx, value)
			if err != nil {
				result.Degraded = true
			} else {
				findings = d.merge(path, findings, candidates)
			}
		}
		result.Findings = append(result.Findings, findings...)
	})

	sortFindings(result.Findings)
	return result
}

func (d *Detector) scanPatterns(path, value string) []Finding {
	var findings []Finding
	for _, p := range patternCatalog {
		for _, span := range p.re.FindAllStringIndex(value, -1) {
			findings = append(findings, Finding{
				FieldPath:  path,
				Start:      span[0],
				End:        span[1],
				Type:       p.phiType,
				Method:     MethodDeterministic,
				Confidence: p.confidence,
				Citation:   d.citation(p.phiType),
			})
		}
	}
	return findings
}

func (d *Detector) classify(ctx context.Context, text string) ([]Candidate, error) {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	started := time.Now()
	candidates, err := d.classifier.Classify(cctx, text)
	if d.observe != nil {
		d.observe(ctx, time.Since(started), err)
	}
	return candidates, err
}

// merge applies the conflict policy over one field's findings: for
// overlapping spans the deterministic finding wins for type and citation,
// the probabilistic result is recorded only as corroboration and the
// displayed confidence is the maximum of the two. Non-overlapping
// candidates become new probabilistic findings.
func (d *Detector) merge(path string, findings []Finding, candidates []Candidate) []Finding {
	for _, c := range candidates {
		overlapped := false
		for i := range findings {
			f := &findings[i]
			if f.Method != MethodDeterministic {
				continue
			}
			if overlaps(f.Start, f.End, c.Start, c.End) {
				overlapped = true
				f.Corroborated = true
				if c.Confidence > f.Confidence {
					f.Confidence = c.Confidence
				}
			}
		}
		if overlapped {
			continue
		}
		findings = append(findings, Finding{
			FieldPath:  path,
			Start:      c.Start,
			End:        c.End,
			Type:       c.Type,
			Method:     MethodProbabilistic,
			Confidence: c.Confidence,
			Citation:   d.citation(c.Type),
		})
	}
	return findings
}

func (d *Detector) citation(t catalog.PHIType) string {
	if e, ok := d.catalog.TaxonomyEntry(t); ok {
		return e.Citation
	}
	return ""
}

// settled reports whether the pattern layer already classified the field
// with high confidence.
func settled(findings []Finding) bool {
	for _, f := range findings {
		if f.Confidence >= highConfidence {
			return true
		}
	}
	return false
}

func overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

func sortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.FieldPath != b.FieldPath {
			return a.FieldPath < b.FieldPath
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Type < b.Type
	})
}
