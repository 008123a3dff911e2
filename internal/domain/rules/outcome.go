package rules

import (
	"encoding/json"

	"github.com/gowebpki/jcs"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
)

// Status classifies a rule outcome.
type Status string

const (
	StatusPass      Status = "pass"
	StatusViolation Status = "violation"
)

// ViolationKind distinguishes a failed predicate from absent required data.
// Absence of required data is itself a compliance finding, never a crash.
type ViolationKind string

const (
	KindPredicate    ViolationKind = "predicate"
	KindMissingField ViolationKind = "missing_field"
)

// Outcome records one rule application: either a Violation or an explicit
// Pass. Passes are kept so the audit trail shows what was checked, not only
// what failed. Immutable once created.
type Outcome struct {
	Status       Status               `json:"status"`
	RegulationID catalog.RegulationID `json:"regulation_id"`
	RuleID       string               `json:"rule_id"`
	Citation     string               `json:"citation"`
	Description  string               `json:"description"`
	Severity     int                  `json:"severity,omitempty"`
	FieldPath    string               `json:"field_path,omitempty"`
	Kind         ViolationKind        `json:"kind,omitempty"`
}

// IsViolation reports whether this outcome is a violation.
func (o Outcome) IsViolation() bool {
	return o.Status == StatusViolation
}

// Violations filters a sequence down to its violations, preserving order.
func Violations(outcomes []Outcome) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if o.IsViolation() {
			out = append(out, o)
		}
	}
	return out
}

// EncodeOutcomes produces the canonical byte serialization of an outcome
// sequence. Identical (dataset, regulation-set) pairs must always yield
// byte-identical encodings; regression tests compare these bytes directly.
func EncodeOutcomes(outcomes []Outcome) ([]byte, error) {
	raw, err := json.Marshal(outcomes)
	if err != nil {
		return nil, errors.NewInternalError("serializing rule outcomes").WithCause(err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, errors.NewInternalError("canonicalizing rule outcomes").WithCause(err)
	}
	return canonical, nil
}
