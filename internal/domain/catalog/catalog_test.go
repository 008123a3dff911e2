package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_LoadsAndCompiles(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	assert.NotEmpty(t, cat.Version())
	assert.True(t, cat.HasJurisdiction("US"))
	assert.True(t, cat.HasJurisdiction("EU"))

	reg, err := cat.Regulation("GDPR")
	require.NoError(t, err)
	assert.Equal(t, "Regulation (EU) 2016/679", reg.Citation)
	assert.Len(t, reg.Rules, 3)
}

func TestVersion_ContentAddressed(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)
	assert.Equal(t, a.Version(), b.Version(), "identical definitions share a version")

	def := defaultDefinition()
	def.Regulations[0].Rules[0].Severity = 3
	changed, err := FromDefinition(def)
	require.NoError(t, err)
	assert.NotEqual(t, a.Version(), changed.Version(), "any content change produces a new version")
}

func TestExpandParents(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []JurisdictionCode{"DE", "EU"}, cat.ExpandParents("DE"))
	assert.Equal(t, []JurisdictionCode{"US"}, cat.ExpandParents("US"))
	// Unknown codes pass through untouched.
	assert.Equal(t, []JurisdictionCode{"XX"}, cat.ExpandParents("XX"))
}

func TestFromDefinition_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Definition)
	}{
		{"empty jurisdictions", func(d *Definition) { d.Jurisdictions = nil }},
		{"duplicate jurisdiction", func(d *Definition) {
			d.Jurisdictions = append(d.Jurisdictions, Jurisdiction{Code: "US"})
		}},
		{"duplicate regulation", func(d *Definition) {
			d.Regulations = append(d.Regulations, d.Regulations[0])
		}},
		{"unknown regulation reference", func(d *Definition) {
			d.Jurisdictions[0].Regulations = append(d.Jurisdictions[0].Regulations, "NO_SUCH_REG")
		}},
		{"regulation without citation", func(d *Definition) {
			d.Regulations[0].Citation = ""
		}},
		{"severity out of scale", func(d *Definition) {
			d.Regulations[0].Rules[0].Severity = 11
		}},
		{"invalid applicability expression", func(d *Definition) {
			d.Regulations[0].Applicability = `nonsense(((`
		}},
		{"invalid rule predicate", func(d *Definition) {
			d.Regulations[0].Rules[0].Predicate = `fields[`
		}},
		{"taxonomy weight out of scale", func(d *Definition) {
			d.Taxonomy[0].Weight = 12
		}},
		{"taxonomy entry without citation", func(d *Definition) {
			d.Taxonomy[0].Citation = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := defaultDefinition()
			tt.mutate(def)
			_, err := FromDefinition(def)
			assert.Error(t, err)
		})
	}
}

func TestApplies(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	gdpr, err := cat.Regulation("GDPR")
	require.NoError(t, err)
	hipaa, err := cat.Regulation("HIPAA")
	require.NoError(t, err)

	euPC := PathContext{
		Source: "US", Destination: "DE",
		Path:    []JurisdictionCode{"US", "DE"},
		Touched: []JurisdictionCode{"US", "DE", "EU"},
	}
	assert.True(t, gdpr.Applies(euPC))
	assert.True(t, hipaa.Applies(euPC))

	domesticEU := PathContext{
		Source: "DE", Destination: "FR",
		Path:    []JurisdictionCode{"DE", "FR"},
		Touched: []JurisdictionCode{"DE", "EU", "FR"},
	}
	assert.False(t, hipaa.Applies(domesticEU))
}

func TestApplies_EvalErrorCountsAsApplicable(t *testing.T) {
	def := defaultDefinition()
	// Compiles, but indexes past the end of the path at evaluation time.
	def.Regulations[0].Applicability = `path[99] == "US"`
	cat, err := FromDefinition(def)
	require.NoError(t, err)

	reg, err := cat.Regulation(def.Regulations[0].ID)
	require.NoError(t, err)
	assert.True(t, reg.Applies(PathContext{Path: []JurisdictionCode{"US"}}),
		"runtime predicate failure biases toward review, never silent exclusion")
}

func TestRule_EvalRule(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)
	hipaa, err := cat.Regulation("HIPAA")
	require.NoError(t, err)
	auth := &hipaa.Rules[0]

	compliant, err := auth.EvalRule(map[string]any{
		"patient.authorization": true,
		"dataset.deidentified":  false,
	})
	require.NoError(t, err)
	assert.True(t, compliant)

	compliant, err = auth.EvalRule(map[string]any{
		"patient.authorization": false,
		"dataset.deidentified":  false,
	})
	require.NoError(t, err)
	assert.False(t, compliant)

	_, err = auth.EvalRule(map[string]any{})
	assert.Error(t, err, "reading an absent key is an evaluation error")
}

func TestLoadFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	raw := `
name: minimal
jurisdictions:
  - code: US
    name: United States
    regulations: [HIPAA]
regulations:
  - id: HIPAA
    name: HIPAA
    citation: 45 CFR Parts 160 and 164
    jurisdiction: US
    applicability: source == "US"
    reasoning: Data originates from the US healthcare system.
    rules:
      - id: HIPAA-AUTH
        citation: 45 CFR §164.508
        description: Disclosure requires patient authorization.
        severity: 9
        required_fields: [patient.authorization]
        predicate: fields["patient.authorization"] == true
taxonomy:
  - type: SSN
    description: US Social Security Number
    weight: 9
    citation: 45 CFR §164.514(b)(2)(i)(G)
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cat, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, cat.HasJurisdiction("US"))

	reg, err := cat.Regulation("HIPAA")
	require.NoError(t, err)
	require.Len(t, reg.Rules, 1)
	assert.Equal(t, []string{"patient.authorization"}, reg.Rules[0].RequiredFields)

	entry, ok := cat.TaxonomyEntry(PHITypeSSN)
	require.True(t, ok)
	assert.Equal(t, float64(9), entry.Weight)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
