// Package risk combines rule violations and PHI findings into a single
// explainable score. The score is advisory: it informs the human decision
// and never blocks, approves or rejects on its own.
package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/phi"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/rules"
)

// Band partitions the normalized 0-100 score.
type Band string

const (
	BandLow      Band = "LOW"
	BandMedium   Band = "MEDIUM"
	BandHigh     Band = "HIGH"
	BandCritical Band = "CRITICAL"
)

// Thresholds are the band boundaries. They are configuration, not code, and
// are recorded in every audit record so a later threshold change cannot
// retroactively alter the interpretation of a historical decision.
type Thresholds struct {
	Medium   float64 `json:"medium" koanf:"medium"`
	High     float64 `json:"high" koanf:"high"`
	Critical float64 `json:"critical" koanf:"critical"`
}

// DefaultThresholds returns the shipped band boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Medium: 25, High: 50, Critical: 75}
}

// ContributionSource distinguishes what produced a contribution.
type ContributionSource string

const (
	SourceViolation ContributionSource = "violation"
	SourceFinding   ContributionSource = "finding"
)

// Contribution is one item's share of the score. Raw is the weighted mass
// before normalization; Normalized is its proportional share of the final
// value, so the breakdown always sums to the reported total.
type Contribution struct {
	Source     ContributionSource `json:"source"`
	Ref        string             `json:"ref"`
	Citation   string             `json:"citation"`
	Raw        decimal.Decimal    `json:"raw"`
	Normalized decimal.Decimal    `json:"normalized"`
}

// Score is the derived, immutable risk verdict with its full breakdown.
type Score struct {
	Value      decimal.Decimal `json:"value"`
	Band       Band            `json:"band"`
	RawTotal   decimal.Decimal `json:"raw_total"`
	Breakdown  []Contribution  `json:"breakdown"`
	Thresholds Thresholds      `json:"thresholds"`
}

// saturationK is the fixed steepness of the logistic normalization. It is
// part of the scoring contract, not tunable per call.
const saturationK = 0.08

// Scorer computes scores against a catalog's PHI taxonomy weights.
type Scorer struct {
	catalog    *catalog.Catalog
	thresholds Thresholds
}

// NewScorer creates a scorer with fixed thresholds for the process lifetime.
func NewScorer(cat *catalog.Catalog, thresholds Thresholds) *Scorer {
	return &Scorer{catalog: cat, thresholds: thresholds}
}

// Score is a pure deterministic function of its inputs.
//
// Raw mass is sum(violation severity) + sum(finding confidence x type
// weight). Normalization is the fixed logistic saturation
//
//	value = 100 * (2 / (1 + e^(-k*raw)) - 1), k = 0.08
//
// so a single severe violation cannot be capped to the same value as many
// minor ones. Each breakdown item carries its proportional share of the
// final value; shares sum exactly to the total.
func (s *Scorer) Score(violations []rules.Outcome, findings []phi.Finding) Score {
	breakdown := make([]Contribution, 0, len(violations)+len(findings))
	rawTotal := decimal.Zero

	for _, v := range violations {
		if !v.IsViolation() {
			continue
		}
		raw := decimal.NewFromInt(int64(v.Severity))
		rawTotal = rawTotal.Add(raw)
		breakdown = append(breakdown, Contribution{
			Source:   SourceViolation,
			Ref:      string(v.RegulationID) + "/" + v.RuleID,
			Citation: v.Citation,
			Raw:      raw,
		})
	}

	for _, f := range findings {
		weight := decimal.NewFromFloat(s.typeWeight(f.Type))
		raw := decimal.NewFromFloat(f.Confidence).Mul(weight).Round(4)
		rawTotal = rawTotal.Add(raw)
		breakdown = append(breakdown, Contribution{
			Source:   SourceFinding,
			Ref:      string(f.Type) + "@" + f.FieldPath,
			Citation: f.Citation,
			Raw:      raw,
		})
	}

	value := normalize(rawTotal)

	// Distribute the normalized value proportionally; the last item absorbs
	// rounding so the breakdown sums exactly to the total.
	if rawTotal.IsPositive() {
		distributed := decimal.Zero
		for i := range breakdown {
			if i == len(breakdown)-1 {
				breakdown[i].Normalized = value.Sub(distributed)
				break
			}
			share := breakdown[i].Raw.Div(rawTotal).Mul(value).Round(4)
			breakdown[i].Normalized = share
			distributed = distributed.Add(share)
		}
	}

	return Score{
		Value:      value,
		Band:       s.band(value),
		RawTotal:   rawTotal,
		Breakdown:  breakdown,
		Thresholds: s.thresholds,
	}
}

func (s *Scorer) typeWeight(t catalog.PHIType) float64 {
	if e, ok := s.catalog.TaxonomyEntry(t); ok {
		return e.Weight
	}
	// Unknown taxonomy types still contribute: recall bias applies to
	// scoring as well as detection.
	return 5
}

func normalize(raw decimal.Decimal) decimal.Decimal {
	if !raw.IsPositive() {
		return decimal.Zero
	}
	rf, _ := raw.Float64()
	norm := 100 * (2/(1+math.Exp(-saturationK*rf)) - 1)
	return decimal.NewFromFloat(norm).Round(4)
}

func (s *Scorer) band(value decimal.Decimal) Band {
	v, _ := value.Float64()
	switch {
	case v < s.thresholds.Medium:
		return BandLow
	case v < s.thresholds.High:
		return BandMedium
	case v < s.thresholds.Critical:
		return BandHigh
	default:
		return BandCritical
	}
}
