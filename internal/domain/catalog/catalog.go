package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/gowebpki/jcs"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
)

// JurisdictionCode identifies a legal territory, ISO 3166-1 alpha-2 plus
// supranational extensions such as "EU".
type JurisdictionCode string

const (
	JurisdictionEU JurisdictionCode = "EU"
	JurisdictionUS JurisdictionCode = "US"
	JurisdictionGB JurisdictionCode = "GB"
	JurisdictionIN JurisdictionCode = "IN"
	JurisdictionBR JurisdictionCode = "BR"
	JurisdictionCA JurisdictionCode = "CA"
)

// Jurisdiction is immutable reference data describing a territory, the
// regulations it enforces and its recognized transfer relationships.
type Jurisdiction struct {
	Code               JurisdictionCode   `json:"code" yaml:"code"`
	Name               string             `json:"name" yaml:"name"`
	ParentCode         JurisdictionCode   `json:"parent_code,omitempty" yaml:"parent_code"`
	Regulations        []RegulationID     `json:"regulations" yaml:"regulations"`
	AllowedPartners    []JurisdictionCode `json:"allowed_partners,omitempty" yaml:"allowed_partners"`
	RestrictedPartners []JurisdictionCode `json:"restricted_partners,omitempty" yaml:"restricted_partners"`
}

// RegulationID uniquely identifies a regulation within a catalog snapshot.
type RegulationID string

// Regulation is a versioned, machine-checkable regulatory framework.
// Applicability is a CEL expression over the transfer path context,
// compiled once at catalog load.
type Regulation struct {
	ID            RegulationID     `json:"id" yaml:"id"`
	Name          string           `json:"name" yaml:"name"`
	Citation      string           `json:"citation" yaml:"citation"`
	Jurisdiction  JurisdictionCode `json:"jurisdiction" yaml:"jurisdiction"`
	Applicability string           `json:"applicability" yaml:"applicability"`
	Reasoning     string           `json:"reasoning" yaml:"reasoning"`
	Rules         []Rule           `json:"rules" yaml:"rules"`

	applicability compiledProgram
}

// Rule is a pure predicate over declared structured dataset fields.
// The predicate expression must evaluate to true for a compliant dataset;
// false produces a Violation. Severity uses a fixed 0-10 scale.
type Rule struct {
	ID             string   `json:"id" yaml:"id"`
	Citation       string   `json:"citation" yaml:"citation"`
	Description    string   `json:"description" yaml:"description"`
	Severity       int      `json:"severity" yaml:"severity"`
	RequiredFields []string `json:"required_fields,omitempty" yaml:"required_fields"`
	Predicate      string   `json:"predicate" yaml:"predicate"`

	program compiledProgram
}

// Catalog is an immutable, content-addressed snapshot of jurisdictions,
// regulations and the PHI identifier taxonomy. It is loaded once at process
// start; concurrent readers never need locking.
type Catalog struct {
	jurisdictions map[JurisdictionCode]*Jurisdiction
	regulations   map[RegulationID]*Regulation
	taxonomy      map[PHIType]TaxonomyEntry
	version       string
}

// Version returns the content-addressed snapshot identifier: a SHA-256 over
// the RFC 8785 canonical serialization of the full definition. Every audit
// record carries this so catalog evolution never retroactively changes the
// meaning of a historical decision.
func (c *Catalog) Version() string {
	return c.version
}

// Jurisdiction returns the jurisdiction for a code, or an error when the
// code is not part of this snapshot.
func (c *Catalog) Jurisdiction(code JurisdictionCode) (*Jurisdiction, error) {
	j, ok := c.jurisdictions[code]
	if !ok {
		return nil, errors.NewNotFoundError("jurisdiction " + string(code))
	}
	return j, nil
}

// HasJurisdiction reports whether a code is part of this snapshot.
func (c *Catalog) HasJurisdiction(code JurisdictionCode) bool {
	_, ok := c.jurisdictions[code]
	return ok
}

// Regulation returns the regulation for an ID.
func (c *Catalog) Regulation(id RegulationID) (*Regulation, error) {
	r, ok := c.regulations[id]
	if !ok {
		return nil, errors.NewNotFoundError("regulation " + string(id))
	}
	return r, nil
}

// Regulations returns all regulations ordered by ID for determinism.
func (c *Catalog) Regulations() []*Regulation {
	out := make([]*Regulation, 0, len(c.regulations))
	for _, r := range c.regulations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ExpandParents returns code plus its transitive parents, e.g. DE -> [DE, EU].
// Unknown codes are returned as-is: a transit hop through a jurisdiction the
// catalog does not model still appears in the audit record.
func (c *Catalog) ExpandParents(code JurisdictionCode) []JurisdictionCode {
	out := []JurisdictionCode{code}
	cur := code
	for {
		j, ok := c.jurisdictions[cur]
		if !ok || j.ParentCode == "" {
			return out
		}
		out = append(out, j.ParentCode)
		cur = j.ParentCode
	}
}

// Applies evaluates the regulation's applicability predicate against a path
// context. Predicates are total: an evaluation error counts as applicable,
// biasing toward review rather than silent exclusion.
func (r *Regulation) Applies(pc PathContext) bool {
	if r.applicability == nil {
		return true
	}
	ok, err := r.applicability.evalBool(pc.activation())
	if err != nil {
		return true
	}
	return ok
}

// snapshotVersion computes the content hash of a catalog definition.
func snapshotVersion(def *Definition) (string, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return "", errors.NewInternalError("serializing catalog definition").WithCause(err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", errors.NewInternalError("canonicalizing catalog definition").WithCause(err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
