package transfer

import (
	"fmt"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
)

// TransferPath is the ordered sequence of jurisdictions a dataset traverses:
// source, intermediate hops, destination. Constructed per evaluation request
// and never persisted outside the audit record.
type TransferPath struct {
	Hops []catalog.JurisdictionCode `json:"hops"`
}

// NewTransferPath builds a path from source through hops to destination.
func NewTransferPath(hops ...catalog.JurisdictionCode) TransferPath {
	return TransferPath{Hops: hops}
}

// Source returns the first jurisdiction on the path.
func (p TransferPath) Source() catalog.JurisdictionCode {
	if len(p.Hops) == 0 {
		return ""
	}
	return p.Hops[0]
}

// Destination returns the last jurisdiction on the path.
func (p TransferPath) Destination() catalog.JurisdictionCode {
	if len(p.Hops) == 0 {
		return ""
	}
	return p.Hops[len(p.Hops)-1]
}

// IntermediateCount returns the number of transit hops between endpoints.
func (p TransferPath) IntermediateCount() int {
	if len(p.Hops) < 2 {
		return 0
	}
	return len(p.Hops) - 2
}

// Validate enforces the path contract: non-empty, first element equals the
// declared source, last equals the declared destination.
func (p TransferPath) Validate(source, destination catalog.JurisdictionCode) error {
	if len(p.Hops) == 0 {
		return errors.ErrEmptyTransferPath
	}
	if p.Source() != source {
		return errors.NewInvalidPathError(
			fmt.Sprintf("path starts at %s, declared source is %s", p.Source(), source))
	}
	if p.Destination() != destination {
		return errors.NewInvalidPathError(
			fmt.Sprintf("path ends at %s, declared destination is %s", p.Destination(), destination))
	}
	for _, h := range p.Hops {
		if h == "" {
			return errors.NewInvalidPathError("path contains an empty jurisdiction code")
		}
	}
	return nil
}

// Distinct returns the jurisdictions on the path in first-seen order with
// duplicates removed. Applicability evaluation runs once per distinct
// jurisdiction so a path revisiting a territory never double-counts.
func (p TransferPath) Distinct() []catalog.JurisdictionCode {
	seen := make(map[catalog.JurisdictionCode]bool, len(p.Hops))
	out := make([]catalog.JurisdictionCode, 0, len(p.Hops))
	for _, h := range p.Hops {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}
