package catalog

import "sort"

// PHIType enumerates the identifier taxonomy the PHI detector reports
// against. Every finding is traceable to exactly one entry with a citation.
type PHIType string

const (
	PHITypeSSN       PHIType = "SSN"
	PHITypeMRN       PHIType = "MRN"
	PHITypeAadhaar   PHIType = "AADHAAR"
	PHITypePAN       PHIType = "PAN"
	PHITypeNHSNumber PHIType = "NHS_NUMBER"
	PHITypeCPF       PHIType = "CPF"
	PHITypeAddress   PHIType = "ADDRESS"
	PHITypeDate      PHIType = "DATE"
	PHITypeDeviceID  PHIType = "DEVICE_ID"
	PHITypeName      PHIType = "PERSON_NAME"
)

// TaxonomyEntry binds a PHI identifier type to its scoring weight and the
// regulatory citation that makes it an identifier.
type TaxonomyEntry struct {
	Type        PHIType `json:"type" yaml:"type"`
	Description string  `json:"description" yaml:"description"`
	Weight      float64 `json:"weight" yaml:"weight"`
	Citation    string  `json:"citation" yaml:"citation"`
}

// TaxonomyEntry returns the entry for a PHI type.
func (c *Catalog) TaxonomyEntry(t PHIType) (TaxonomyEntry, bool) {
	e, ok := c.taxonomy[t]
	return e, ok
}

// Taxonomy returns all taxonomy entries ordered by type for determinism.
func (c *Catalog) Taxonomy() []TaxonomyEntry {
	out := make([]TaxonomyEntry, 0, len(c.taxonomy))
	for _, e := range c.taxonomy {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
