// Package rules deterministically evaluates a structured dataset against an
// ordered regulation set. No probabilistic behavior lives here: unstructured
// text is the PHI detector's job.
package rules

import (
	"fmt"
	"strings"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/transfer"
)

// Engine evaluates rule predicates over structured dataset fields.
type Engine struct{}

// NewEngine creates a rule engine. The engine is stateless; a single
// instance serves concurrent evaluations.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate applies every rule of every regulation, in input order, to the
// dataset. The result sequence contains one outcome per rule: a Pass or a
// Violation. Identical inputs always produce identical sequences.
func (e *Engine) Evaluate(ds transfer.Dataset, regulations []*catalog.Regulation) []Outcome {
	fields := ds.Flatten()
	outcomes := make([]Outcome, 0)

	for _, reg := range regulations {
		for i := range reg.Rules {
			rule := &reg.Rules[i]
			outcomes = append(outcomes, e.applyRule(reg, rule, fields))
		}
	}
	return outcomes
}

func (e *Engine) applyRule(reg *catalog.Regulation, rule *catalog.Rule, fields map[string]any) Outcome {
	// Absent required data is a compliance finding, not an error.
	var missing []string
	for _, f := range rule.RequiredFields {
		if _, ok := fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return Outcome{
			Status:       StatusViolation,
			RegulationID: reg.ID,
			RuleID:       rule.ID,
			Citation:     rule.Citation,
			Description:  fmt.Sprintf("required field(s) %s absent from dataset", strings.Join(missing, ", ")),
			Severity:     rule.Severity,
			FieldPath:    missing[0],
			Kind:         KindMissingField,
		}
	}

	compliant, err := rule.EvalRule(fields)
	if err != nil {
		// A predicate that cannot read its declared fields is treated the
		// same as missing data: report, never crash.
		return Outcome{
			Status:       StatusViolation,
			RegulationID: reg.ID,
			RuleID:       rule.ID,
			Citation:     rule.Citation,
			Description:  fmt.Sprintf("declared field unreadable: %v", err),
			Severity:     rule.Severity,
			FieldPath:    primaryField(rule),
			Kind:         KindMissingField,
		}
	}

	if !compliant {
		return Outcome{
			Status:       StatusViolation,
			RegulationID: reg.ID,
			RuleID:       rule.ID,
			Citation:     rule.Citation,
			Description:  rule.Description,
			Severity:     rule.Severity,
			FieldPath:    primaryField(rule),
			Kind:         KindPredicate,
		}
	}

	return Outcome{
		Status:       StatusPass,
		RegulationID: reg.ID,
		RuleID:       rule.ID,
		Citation:     rule.Citation,
		Description:  rule.Description,
	}
}

func primaryField(rule *catalog.Rule) string {
	if len(rule.RequiredFields) > 0 {
		return rule.RequiredFields[0]
	}
	return ""
}
