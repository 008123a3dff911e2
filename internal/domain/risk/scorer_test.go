package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/phi"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/rules"
)

func newScorer(t *testing.T) *Scorer {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return NewScorer(cat, DefaultThresholds())
}

func violation(regID catalog.RegulationID, ruleID, citation string, severity int) rules.Outcome {
	return rules.Outcome{
		Status:       rules.StatusViolation,
		RegulationID: regID,
		RuleID:       ruleID,
		Citation:     citation,
		Severity:     severity,
		Kind:         rules.KindPredicate,
	}
}

func finding(typ catalog.PHIType, path string, confidence float64) phi.Finding {
	return phi.Finding{
		FieldPath:  path,
		Type:       typ,
		Method:     phi.MethodDeterministic,
		Confidence: confidence,
		Citation:   "45 CFR §164.514",
	}
}

func TestScore_EmptyInputsIsLow(t *testing.T) {
	s := newScorer(t)

	score := s.Score(nil, nil)
	assert.True(t, score.Value.IsZero())
	assert.Equal(t, BandLow, score.Band)
	assert.Empty(t, score.Breakdown)
	assert.Equal(t, DefaultThresholds(), score.Thresholds)
}

func TestScore_PassesContributeNothing(t *testing.T) {
	s := newScorer(t)

	passes := []rules.Outcome{
		{Status: rules.StatusPass, RuleID: "HIPAA-AUTH"},
		{Status: rules.StatusPass, RuleID: "GDPR-LAWFUL-BASIS"},
	}
	score := s.Score(passes, nil)
	assert.True(t, score.Value.IsZero())
	assert.Empty(t, score.Breakdown)
}

func TestScore_BreakdownSumsExactlyToValue(t *testing.T) {
	s := newScorer(t)

	violations := []rules.Outcome{
		violation("HIPAA", "HIPAA-AUTH", "45 CFR §164.508", 9),
		violation("GDPR", "GDPR-SAFEGUARDS", "GDPR Art. 46", 8),
		violation("GDPR", "GDPR-MINIMIZATION", "GDPR Art. 5(1)(c)", 5),
	}
	findings := []phi.Finding{
		finding(catalog.PHITypeSSN, "notes", 1.0),
		finding(catalog.PHITypeDate, "notes", 0.7),
	}

	score := s.Score(violations, findings)
	require.Len(t, score.Breakdown, 5)

	sum := decimal.Zero
	for _, c := range score.Breakdown {
		sum = sum.Add(c.Normalized)
		assert.True(t, c.Raw.IsPositive())
		assert.NotEmpty(t, c.Ref)
		assert.NotEmpty(t, c.Citation)
	}
	assert.True(t, sum.Equal(score.Value),
		"breakdown %s must sum exactly to value %s", sum, score.Value)
}

func TestScore_SingleSevereOutweighsManyMinor(t *testing.T) {
	s := newScorer(t)

	severe := s.Score([]rules.Outcome{
		violation("HIPAA", "HIPAA-AUTH", "45 CFR §164.508", 9),
	}, nil)
	minor := s.Score([]rules.Outcome{
		violation("X", "R1", "c", 1),
		violation("X", "R2", "c", 1),
		violation("X", "R3", "c", 1),
	}, nil)

	assert.True(t, severe.Value.GreaterThan(minor.Value),
		"severity 9 must score above three severity-1 violations")
}

func TestScore_MonotoneInRawMass(t *testing.T) {
	s := newScorer(t)

	prev := decimal.Zero
	for severity := 1; severity <= 10; severity++ {
		score := s.Score([]rules.Outcome{
			violation("X", "R", "c", severity),
		}, nil)
		assert.True(t, score.Value.GreaterThan(prev),
			"severity %d must score above severity %d", severity, severity-1)
		prev = score.Value
	}
}

func TestScore_SaturatesBelow100(t *testing.T) {
	s := newScorer(t)

	var violations []rules.Outcome
	for i := 0; i < 100; i++ {
		violations = append(violations, violation("X", "R", "c", 10))
	}
	score := s.Score(violations, nil)
	assert.True(t, score.Value.LessThanOrEqual(decimal.NewFromInt(100)))
	assert.Equal(t, BandCritical, score.Band)
}

func TestScore_FindingWeightedByTaxonomy(t *testing.T) {
	s := newScorer(t)

	ssn := s.Score(nil, []phi.Finding{finding(catalog.PHITypeSSN, "a", 1.0)})
	date := s.Score(nil, []phi.Finding{finding(catalog.PHITypeDate, "a", 1.0)})
	assert.True(t, ssn.Value.GreaterThan(date.Value),
		"SSN (weight 9) must outscore a date (weight 3)")

	// Unknown types still contribute at the default weight.
	unknown := s.Score(nil, []phi.Finding{finding("UNKNOWN_TYPE", "a", 1.0)})
	assert.True(t, unknown.Value.IsPositive())
}

func TestScore_Bands(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	s := NewScorer(cat, Thresholds{Medium: 25, High: 50, Critical: 75})

	// Band assignment follows the configured thresholds on the normalized
	// value: raw 1 normalizes to ~4.0, raw 30 to ~83.4.
	low := s.Score([]rules.Outcome{violation("X", "R", "c", 1)}, nil)
	assert.Equal(t, BandLow, low.Band)

	critical := s.Score([]rules.Outcome{
		violation("X", "R1", "c", 10),
		violation("X", "R2", "c", 10),
		violation("X", "R3", "c", 10),
	}, nil)
	assert.Equal(t, BandCritical, critical.Band)
}

func TestScore_Deterministic(t *testing.T) {
	s := newScorer(t)

	violations := []rules.Outcome{violation("HIPAA", "HIPAA-AUTH", "45 CFR §164.508", 9)}
	findings := []phi.Finding{finding(catalog.PHITypeSSN, "notes", 1.0)}

	first := s.Score(violations, findings)
	for i := 0; i < 20; i++ {
		again := s.Score(violations, findings)
		assert.True(t, first.Value.Equal(again.Value))
		assert.Equal(t, first.Band, again.Band)
		require.Equal(t, len(first.Breakdown), len(again.Breakdown))
		for j := range first.Breakdown {
			assert.True(t, first.Breakdown[j].Normalized.Equal(again.Breakdown[j].Normalized))
		}
	}
}
