package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
)

// Definition is the serializable form of a catalog snapshot, the unit the
// content-addressed version hash is computed over.
type Definition struct {
	Name          string          `json:"name" yaml:"name"`
	Jurisdictions []Jurisdiction  `json:"jurisdictions" yaml:"jurisdictions"`
	Regulations   []Regulation    `json:"regulations" yaml:"regulations"`
	Taxonomy      []TaxonomyEntry `json:"taxonomy" yaml:"taxonomy"`
}

// LoadFile reads a catalog definition from a YAML file and compiles it.
// Any malformed definition is fatal to the caller: the process must not
// serve evaluations against a partially loaded rule set.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewInternalError("reading catalog file").WithCause(err)
	}
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, errors.NewValidationError("CATALOG_MALFORMED",
			"parsing catalog definition").WithCause(err)
	}
	return FromDefinition(&def)
}

// FromDefinition validates a definition, compiles every CEL predicate and
// returns an immutable catalog snapshot.
func FromDefinition(def *Definition) (*Catalog, error) {
	if len(def.Jurisdictions) == 0 {
		return nil, errors.NewValidationError("CATALOG_EMPTY",
			"catalog must define at least one jurisdiction")
	}

	appEnv, err := newApplicabilityEnv()
	if err != nil {
		return nil, err
	}
	ruleEnv, err := newRuleEnv()
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		jurisdictions: make(map[JurisdictionCode]*Jurisdiction, len(def.Jurisdictions)),
		regulations:   make(map[RegulationID]*Regulation, len(def.Regulations)),
		taxonomy:      make(map[PHIType]TaxonomyEntry, len(def.Taxonomy)),
	}

	for i := range def.Jurisdictions {
		j := def.Jurisdictions[i]
		if j.Code == "" {
			return nil, errors.NewValidationError("CATALOG_MALFORMED",
				"jurisdiction code cannot be empty")
		}
		if _, dup := c.jurisdictions[j.Code]; dup {
			return nil, errors.NewValidationError("CATALOG_MALFORMED",
				fmt.Sprintf("duplicate jurisdiction %s", j.Code))
		}
		c.jurisdictions[j.Code] = &j
	}

	for i := range def.Regulations {
		r := def.Regulations[i]
		if err := validateRegulation(&r); err != nil {
			return nil, err
		}
		if _, dup := c.regulations[r.ID]; dup {
			return nil, errors.NewValidationError("CATALOG_MALFORMED",
				fmt.Sprintf("duplicate regulation %s", r.ID))
		}
		if r.Applicability != "" {
			prg, err := compileExpr(appEnv, r.Applicability, "applicability")
			if err != nil {
				return nil, err
			}
			r.applicability = prg
		}
		for ri := range r.Rules {
			rule := &r.Rules[ri]
			if rule.Predicate == "" {
				continue
			}
			prg, err := compileExpr(ruleEnv, rule.Predicate, "rule")
			if err != nil {
				return nil, err
			}
			rule.program = prg
		}
		c.regulations[r.ID] = &r
	}

	// Every regulation referenced by a jurisdiction must exist.
	for _, j := range c.jurisdictions {
		for _, id := range j.Regulations {
			if _, ok := c.regulations[id]; !ok {
				return nil, errors.NewValidationError("CATALOG_MALFORMED",
					fmt.Sprintf("jurisdiction %s references unknown regulation %s", j.Code, id))
			}
		}
	}

	for _, e := range def.Taxonomy {
		if e.Type == "" || e.Citation == "" {
			return nil, errors.NewValidationError("CATALOG_MALFORMED",
				"taxonomy entries require a type and a citation")
		}
		if e.Weight < 0 || e.Weight > 10 {
			return nil, errors.NewValidationError("CATALOG_MALFORMED",
				fmt.Sprintf("taxonomy weight for %s outside 0-10 scale", e.Type))
		}
		c.taxonomy[e.Type] = e
	}

	version, err := snapshotVersion(def)
	if err != nil {
		return nil, err
	}
	c.version = version
	return c, nil
}

func validateRegulation(r *Regulation) error {
	if r.ID == "" {
		return errors.NewValidationError("CATALOG_MALFORMED", "regulation ID cannot be empty")
	}
	if r.Citation == "" {
		return errors.NewValidationError("CATALOG_MALFORMED",
			fmt.Sprintf("regulation %s has no citation", r.ID))
	}
	for _, rule := range r.Rules {
		if rule.ID == "" || rule.Citation == "" {
			return errors.NewValidationError("CATALOG_MALFORMED",
				fmt.Sprintf("regulation %s has a rule without ID or citation", r.ID))
		}
		if rule.Severity < 0 || rule.Severity > 10 {
			return errors.NewValidationError("CATALOG_MALFORMED",
				fmt.Sprintf("rule %s severity outside 0-10 scale", rule.ID))
		}
	}
	return nil
}
