package jurisdiction

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/transfer"
)

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return NewResolver(cat)
}

func TestResolve_DestinationRegulationsFirst(t *testing.T) {
	r := newResolver(t)

	res, err := r.Resolve("US", "DE", "DE", transfer.NewTransferPath("US", "DE"))
	require.NoError(t, err)

	require.Equal(t, []catalog.RegulationID{"GDPR", "HIPAA"}, res.IDs(),
		"GDPR is destination-local and must sort before the source's HIPAA")
	assert.NotEmpty(t, res.Reasoning["GDPR"])
	assert.NotEmpty(t, res.Reasoning["HIPAA"])
}

func TestResolve_SameJurisdictionLocalSet(t *testing.T) {
	r := newResolver(t)

	// A transfer that never leaves its jurisdiction resolves to exactly the
	// local regulation set: nothing foreign, nothing duplicated.
	res, err := r.Resolve("US", "US", "US", transfer.NewTransferPath("US"))
	require.NoError(t, err)
	assert.Equal(t, []catalog.RegulationID{"HIPAA"}, res.IDs())
	assert.Equal(t, []catalog.JurisdictionCode{"US"}, res.Touched)

	res, err = r.Resolve("DE", "DE", "DE", transfer.NewTransferPath("DE"))
	require.NoError(t, err)
	assert.Equal(t, []catalog.RegulationID{"GDPR"}, res.IDs(),
		"member state with no own regulations inherits only the parent's")
}

func TestResolve_TransitJurisdictionContributes(t *testing.T) {
	r := newResolver(t)

	res, err := r.Resolve("US", "IN", "", transfer.NewTransferPath("US", "GB", "IN"))
	require.NoError(t, err)

	ids := res.IDs()
	assert.Contains(t, ids, catalog.RegulationID("HIPAA"), "source regulation")
	assert.Contains(t, ids, catalog.RegulationID("UK_GDPR"), "transit regulation")
	assert.Contains(t, ids, catalog.RegulationID("DPDP"), "destination regulation")
	// Destination first, then transit, then source.
	assert.Equal(t, catalog.RegulationID("DPDP"), ids[0])
}

func TestResolve_ResidencyPullsInRegulation(t *testing.T) {
	r := newResolver(t)

	// US-to-Canada transfer, but the data subject resides in Germany: GDPR
	// applies through residency even though the path never touches the EU.
	res, err := r.Resolve("US", "CA", "DE", transfer.NewTransferPath("US", "CA"))
	require.NoError(t, err)

	assert.Contains(t, res.IDs(), catalog.RegulationID("GDPR"))
	assert.Contains(t, res.Touched, catalog.JurisdictionCode("EU"))
}

func TestResolve_UnmodeledTransitStaysVisible(t *testing.T) {
	r := newResolver(t)

	res, err := r.Resolve("US", "DE", "", transfer.NewTransferPath("US", "XX", "DE"))
	require.NoError(t, err)

	assert.Contains(t, res.Touched, catalog.JurisdictionCode("XX"),
		"unmodeled hop contributes no regulations but remains in the audit trail")
	assert.Equal(t, []catalog.RegulationID{"GDPR", "HIPAA"}, res.IDs())
}

func TestResolve_RevisitedJurisdictionNotDoubleCounted(t *testing.T) {
	r := newResolver(t)

	direct, err := r.Resolve("US", "DE", "", transfer.NewTransferPath("US", "DE"))
	require.NoError(t, err)
	looped, err := r.Resolve("US", "DE", "", transfer.NewTransferPath("US", "DE", "US", "DE"))
	require.NoError(t, err)

	assert.Equal(t, direct.IDs(), looped.IDs())
}

func TestResolve_InvalidPath(t *testing.T) {
	r := newResolver(t)

	_, err := r.Resolve("US", "DE", "", transfer.NewTransferPath())
	require.Error(t, err)
	assert.True(t, errors.IsInvalidPath(err))

	_, err = r.Resolve("US", "DE", "", transfer.NewTransferPath("CA", "DE"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalidPath(err))
}

func TestResolve_Deterministic(t *testing.T) {
	r := newResolver(t)
	codes := []string{"US", "DE", "FR", "GB", "IN", "BR", "CA", "NL"}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("identical inputs produce identical ordered regulation sets", prop.ForAll(
		func(srcIdx, dstIdx, resIdx int, transitIdx []int) bool {
			src := catalog.JurisdictionCode(codes[srcIdx])
			dst := catalog.JurisdictionCode(codes[dstIdx])
			hops := []catalog.JurisdictionCode{src}
			for _, ti := range transitIdx {
				hops = append(hops, catalog.JurisdictionCode(codes[ti]))
			}
			hops = append(hops, dst)
			path := transfer.NewTransferPath(hops...)
			residency := catalog.JurisdictionCode(codes[resIdx])

			first, err := r.Resolve(src, dst, residency, path)
			if err != nil {
				return false
			}
			for i := 0; i < 5; i++ {
				again, err := r.Resolve(src, dst, residency, path)
				if err != nil {
					return false
				}
				if len(again.IDs()) != len(first.IDs()) {
					return false
				}
				for j, id := range again.IDs() {
					if id != first.IDs()[j] {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(0, len(codes)-1),
		gen.IntRange(0, len(codes)-1),
		gen.IntRange(0, len(codes)-1),
		gen.SliceOfN(3, gen.IntRange(0, len(codes)-1)),
	))

	properties.TestingRun(t)
}
