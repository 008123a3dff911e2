package catalog

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
)

// PathContext is the activation for applicability predicates: the full
// transfer path plus the distinct set of touched jurisdictions (hops,
// endpoints, residency and their parents).
type PathContext struct {
	Source      JurisdictionCode
	Destination JurisdictionCode
	Residency   JurisdictionCode
	Path        []JurisdictionCode
	Touched     []JurisdictionCode
	Hops        int
}

func (pc PathContext) activation() map[string]any {
	path := make([]string, len(pc.Path))
	for i, p := range pc.Path {
		path[i] = string(p)
	}
	touched := make([]string, len(pc.Touched))
	for i, t := range pc.Touched {
		touched[i] = string(t)
	}
	return map[string]any{
		"source":      string(pc.Source),
		"destination": string(pc.Destination),
		"residency":   string(pc.Residency),
		"path":        path,
		"touched":     touched,
		"hops":        pc.Hops,
	}
}

// compiledProgram wraps a compiled CEL program so domain types do not leak
// cel-go across package boundaries.
type compiledProgram interface {
	evalBool(vars map[string]any) (bool, error)
}

type celProgram struct {
	prg cel.Program
}

func (p celProgram) evalBool(vars map[string]any) (bool, error) {
	out, _, err := p.prg.Eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("predicate returned %T, want bool", out.Value())
	}
	return b, nil
}

// newApplicabilityEnv builds the CEL environment for regulation
// applicability expressions.
func newApplicabilityEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("source", cel.StringType),
		cel.Variable("destination", cel.StringType),
		cel.Variable("residency", cel.StringType),
		cel.Variable("path", cel.ListType(cel.StringType)),
		cel.Variable("touched", cel.ListType(cel.StringType)),
		cel.Variable("hops", cel.IntType),
	)
	if err != nil {
		return nil, errors.NewInternalError("creating applicability CEL environment").WithCause(err)
	}
	return env, nil
}

// newRuleEnv builds the CEL environment for rule predicates. Predicates see
// only the flattened structured field map, never unstructured text.
func newRuleEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("fields", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, errors.NewInternalError("creating rule CEL environment").WithCause(err)
	}
	return env, nil
}

// compileExpr compiles a CEL expression in the given environment. A compile
// failure is fatal at catalog load: the process must not serve evaluations
// against a partially loaded rule set.
func compileExpr(env *cel.Env, expr, context string) (compiledProgram, error) {
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.NewValidationError("CATALOG_PREDICATE_INVALID",
			fmt.Sprintf("compiling %s predicate %q", context, expr)).WithCause(iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.NewInternalError(
			fmt.Sprintf("building %s program", context)).WithCause(err)
	}
	return celProgram{prg: prg}, nil
}

// EvalRule evaluates a rule predicate against a flattened field map.
// Returns (compliant, error); callers translate errors to outcomes.
func (r *Rule) EvalRule(fields map[string]any) (bool, error) {
	if r.program == nil {
		return true, nil
	}
	return r.program.evalBool(map[string]any{"fields": fields})
}
