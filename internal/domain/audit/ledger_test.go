package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/audit"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/transfer"
	"github.com/davidleathers/crossborder-health-compliance/internal/infrastructure/store"
)

func sampleEntry() audit.Entry {
	return audit.Entry{
		CatalogVersion:     "v-test",
		DatasetFingerprint: "fp-abc",
		Path:               transfer.NewTransferPath("US", "DE"),
		Regulations:        []catalog.RegulationID{"GDPR", "HIPAA"},
	}
}

func TestLedger_AppendBuildsChain(t *testing.T) {
	ledger := audit.NewLedger(store.NewMemoryStore(), 0)
	ctx := context.Background()

	var prev string
	for i := 0; i < 5; i++ {
		record, err := ledger.Append(ctx, sampleEntry())
		require.NoError(t, err)

		assert.Equal(t, int64(i), record.Sequence)
		assert.Equal(t, audit.KindEvaluation, record.Kind)
		require.NoError(t, record.Verify())
		if i == 0 {
			assert.Equal(t, audit.GenesisSeed, record.PreviousChainHash)
		} else {
			assert.Equal(t, prev, record.PreviousChainHash)
		}
		prev = record.ChainHash
	}

	result, err := ledger.VerifyChain(ctx, 0, 10)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 5, result.RecordsVerified)
	assert.Equal(t, int64(-1), result.FirstDivergent)
}

func TestLedger_TamperDetectedAtExactSequence(t *testing.T) {
	ms := store.NewMemoryStore()
	ledger := audit.NewLedger(ms, 0)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := ledger.Append(ctx, sampleEntry())
		require.NoError(t, err)
	}

	ms.Tamper(2, func(r *audit.Record) {
		r.DatasetFingerprint = "fp-forged"
	})

	result, err := ledger.VerifyChain(ctx, 0, 10)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, int64(2), result.FirstDivergent)
	assert.NotEmpty(t, result.Reason)
}

func TestLedger_BrokenLinkDetected(t *testing.T) {
	ms := store.NewMemoryStore()
	ledger := audit.NewLedger(ms, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ledger.Append(ctx, sampleEntry())
		require.NoError(t, err)
	}

	// Re-seal record 1 against a forged predecessor hash: its own hashes are
	// internally consistent but the chain linkage to record 0 breaks.
	ms.Tamper(1, func(r *audit.Record) {
		r.PreviousChainHash = "forged"
		r.ChainHash = audit.ChainLink("forged", r.ContentHash)
	})

	result, err := ledger.VerifyChain(ctx, 0, 10)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, int64(1), result.FirstDivergent)
}

func TestLedger_FailedAppendQueuesForRetry(t *testing.T) {
	ms := store.NewMemoryStore()
	ledger := audit.NewLedger(ms, 0)
	ctx := context.Background()

	ms.FailAppends = true
	_, err := ledger.Append(ctx, sampleEntry())
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, 1, ledger.PendingCount())

	_, err = ledger.Append(ctx, sampleEntry())
	require.Error(t, err)
	assert.Equal(t, 2, ledger.PendingCount())

	ms.FailAppends = false
	flushed, err := ledger.RetryPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, flushed)
	assert.Zero(t, ledger.PendingCount())

	result, err := ledger.VerifyChain(ctx, 0, 10)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 2, result.RecordsVerified)
}

func TestLedger_DecisionReferencesEvaluation(t *testing.T) {
	ledger := audit.NewLedger(store.NewMemoryStore(), 0)
	ctx := context.Background()

	eval, err := ledger.Append(ctx, sampleEntry())
	require.NoError(t, err)

	decision, err := ledger.AppendDecision(ctx, eval.ID, audit.ApprovalDecision{
		Decision:   audit.DecisionReject,
		ReviewerID: "reviewer-3",
		Rationale:  "missing safeguards",
		Timestamp:  time.Now().UTC(),
	})
	require.NoError(t, err)

	assert.Equal(t, audit.KindDecision, decision.Kind)
	require.NotNil(t, decision.References)
	assert.Equal(t, eval.ID, *decision.References)
	require.NotNil(t, decision.Approval)
	assert.Equal(t, audit.DecisionReject, decision.Approval.Decision)

	// The original evaluation record is untouched.
	require.NoError(t, eval.Verify())
}

func TestLedger_CorrectionIsNewRecord(t *testing.T) {
	ledger := audit.NewLedger(store.NewMemoryStore(), 0)
	ctx := context.Background()

	original, err := ledger.Append(ctx, sampleEntry())
	require.NoError(t, err)

	corrected := sampleEntry()
	corrected.DatasetFingerprint = "fp-corrected"
	correction, err := ledger.AppendCorrection(ctx, original.ID, corrected)
	require.NoError(t, err)

	assert.Equal(t, audit.KindCorrection, correction.Kind)
	assert.NotEqual(t, original.ID, correction.ID)
	require.NotNil(t, correction.References)
	assert.Equal(t, original.ID, *correction.References)

	result, err := ledger.VerifyChain(ctx, 0, 10)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 2, result.RecordsVerified)
}

func TestLedger_PurgeExpired(t *testing.T) {
	ms := store.NewMemoryStore()
	ledger := audit.NewLedger(ms, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ledger.Append(ctx, sampleEntry())
		require.NoError(t, err)
	}

	// Nothing eligible yet.
	record, err := ledger.PurgeExpired(ctx, time.Now().UTC(), "retention policy R-1")
	require.NoError(t, err)
	assert.Nil(t, record)

	// Two hours later everything has expired.
	record, err = ledger.PurgeExpired(ctx, time.Now().UTC().Add(2*time.Hour), "retention policy R-1")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, audit.KindPurge, record.Kind)
	assert.Equal(t, []int64{0, 1, 2}, record.PurgedSequences)
	assert.Equal(t, "retention policy R-1", record.PolicyNote)
	require.NoError(t, record.Verify())

	// A second purge far in the future never removes the purge record itself.
	record2, err := ledger.PurgeExpired(ctx, time.Now().UTC().Add(100*time.Hour), "retention policy R-1")
	require.NoError(t, err)
	assert.Nil(t, record2)

	result, err := ledger.VerifyChain(ctx, 0, 10)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 1, result.RecordsVerified)
}

func TestLedger_ZeroRetentionNeverPurges(t *testing.T) {
	ledger := audit.NewLedger(store.NewMemoryStore(), 0)
	ctx := context.Background()

	_, err := ledger.Append(ctx, sampleEntry())
	require.NoError(t, err)

	record, err := ledger.PurgeExpired(ctx, time.Now().UTC().Add(1000*time.Hour), "policy")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestRecord_ContentHashExcludesHashFields(t *testing.T) {
	ledger := audit.NewLedger(store.NewMemoryStore(), 0)
	record, err := ledger.Append(context.Background(), sampleEntry())
	require.NoError(t, err)

	recomputed, err := record.ComputeContentHash()
	require.NoError(t, err)
	assert.Equal(t, record.ContentHash, recomputed,
		"hash fields must not feed back into the content hash")
}

func TestChainLink(t *testing.T) {
	a := audit.ChainLink("prev", "content")
	b := audit.ChainLink("prev", "content")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, audit.ChainLink("other", "content"))
	assert.Len(t, a, 64)
}

func TestVerifyChain_EmptyLedgerIsValid(t *testing.T) {
	ledger := audit.NewLedger(store.NewMemoryStore(), 0)
	result, err := ledger.VerifyChain(context.Background(), 0, 100)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Zero(t, result.RecordsVerified)
}

func TestVerifyChain_GenesisAnchorChecked(t *testing.T) {
	ms := store.NewMemoryStore()
	ledger := audit.NewLedger(ms, 0)
	ctx := context.Background()

	_, err := ledger.Append(ctx, sampleEntry())
	require.NoError(t, err)

	ms.Tamper(0, func(r *audit.Record) {
		r.PreviousChainHash = "not-genesis"
		r.ChainHash = audit.ChainLink("not-genesis", r.ContentHash)
	})

	result, err := ledger.VerifyChain(ctx, 0, 10)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, int64(0), result.FirstDivergent)
}

func TestLedger_SequentialIDsUnique(t *testing.T) {
	ledger := audit.NewLedger(store.NewMemoryStore(), 0)
	ctx := context.Background()

	seen := make(map[uuid.UUID]bool)
	for i := 0; i < 10; i++ {
		record, err := ledger.Append(ctx, sampleEntry())
		require.NoError(t, err)
		assert.False(t, seen[record.ID])
		seen[record.ID] = true
	}
}
