// Package jurisdiction resolves which regulations govern a concrete
// cross-border transfer. Resolution is a pure function over the in-memory
// catalog: no network, no I/O, no hidden state.
package jurisdiction

import (
	"sort"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/transfer"
)

// Resolution is the ordered, explainable set of applicable regulations.
type Resolution struct {
	Regulations []*catalog.Regulation                 `json:"regulations"`
	Reasoning   map[catalog.RegulationID]string       `json:"reasoning"`
	Context     catalog.PathContext                   `json:"context"`
	Touched     []catalog.JurisdictionCode            `json:"touched"`
	proximity   map[catalog.JurisdictionCode]int
}

// IDs returns the regulation identifiers in resolution order.
func (r *Resolution) IDs() []catalog.RegulationID {
	out := make([]catalog.RegulationID, len(r.Regulations))
	for i, reg := range r.Regulations {
		out[i] = reg.ID
	}
	return out
}

// Resolver resolves applicable regulations from a catalog snapshot.
type Resolver struct {
	catalog *catalog.Catalog
}

// NewResolver creates a resolver over an immutable catalog snapshot.
func NewResolver(cat *catalog.Catalog) *Resolver {
	return &Resolver{catalog: cat}
}

// Resolve returns the regulations applicable to a transfer. A regulation
// from ANY traversed jurisdiction can apply, not only the endpoints: this
// models transit-country data-protection exposure. Results are deduplicated
// by regulation ID and ordered by jurisdiction proximity to the destination
// (destination-local rules first), then citation lexical order.
func (r *Resolver) Resolve(
	source, destination, residency catalog.JurisdictionCode,
	path transfer.TransferPath,
) (*Resolution, error) {
	if err := path.Validate(source, destination); err != nil {
		return nil, err
	}

	// Proximity rank: 0 for the destination, increasing toward the source.
	// Parents share their closest member's rank so a destination inside the
	// EU makes EU-level regulations destination-local.
	proximity := make(map[catalog.JurisdictionCode]int)
	rank := 0
	for i := len(path.Hops) - 1; i >= 0; i-- {
		for _, code := range r.catalog.ExpandParents(path.Hops[i]) {
			if _, seen := proximity[code]; !seen {
				proximity[code] = rank
			}
		}
		rank++
	}

	// Touched set: every distinct path jurisdiction plus the data subject's
	// residency when distinct, each expanded to its parents. Evaluated once
	// per distinct jurisdiction regardless of repeated path occurrences.
	touched := make([]catalog.JurisdictionCode, 0, len(path.Hops)+2)
	seen := make(map[catalog.JurisdictionCode]bool)
	appendTouched := func(code catalog.JurisdictionCode) {
		for _, c := range r.catalog.ExpandParents(code) {
			if !seen[c] {
				seen[c] = true
				touched = append(touched, c)
			}
		}
	}
	for _, hop := range path.Distinct() {
		appendTouched(hop)
	}
	if residency != "" {
		appendTouched(residency)
		for _, code := range r.catalog.ExpandParents(residency) {
			if _, ok := proximity[code]; !ok {
				proximity[code] = rank
			}
		}
	}

	pc := catalog.PathContext{
		Source:      source,
		Destination: destination,
		Residency:   residency,
		Path:        path.Hops,
		Touched:     touched,
		Hops:        path.IntermediateCount(),
	}

	resolution := &Resolution{
		Reasoning: make(map[catalog.RegulationID]string),
		Context:   pc,
		Touched:   touched,
		proximity: proximity,
	}
	collected := make(map[catalog.RegulationID]bool)
	for _, code := range touched {
		j, err := r.catalog.Jurisdiction(code)
		if err != nil {
			// Transit through an unmodeled jurisdiction contributes no
			// regulations but stays visible in the touched set.
			continue
		}
		for _, id := range j.Regulations {
			if collected[id] {
				continue
			}
			reg, err := r.catalog.Regulation(id)
			if err != nil {
				return nil, err
			}
			if !reg.Applies(pc) {
				continue
			}
			collected[id] = true
			resolution.Regulations = append(resolution.Regulations, reg)
			resolution.Reasoning[id] = reg.Reasoning
		}
	}

	sort.SliceStable(resolution.Regulations, func(i, j int) bool {
		a, b := resolution.Regulations[i], resolution.Regulations[j]
		pa, pb := resolution.rank(a.Jurisdiction), resolution.rank(b.Jurisdiction)
		if pa != pb {
			return pa < pb
		}
		return a.Citation < b.Citation
	})

	return resolution, nil
}

func (r *Resolution) rank(code catalog.JurisdictionCode) int {
	if p, ok := r.proximity[code]; ok {
		return p
	}
	// Enforcing jurisdiction never touched by the path: order last.
	return len(r.proximity) + len(r.Context.Path) + 1
}
