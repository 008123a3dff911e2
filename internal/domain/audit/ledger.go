package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/phi"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/risk"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/rules"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/transfer"
)

// Store is the persistence boundary for the append-only ledger. The
// physical medium is external; the ledger only defines the logical record
// format and the chain-verification contract.
type Store interface {
	// Append persists a sealed record. Implementations must reject
	// duplicate sequence numbers.
	Append(ctx context.Context, record *Record) error

	// Last returns the highest-sequence record, or nil for an empty ledger.
	Last(ctx context.Context) (*Record, error)

	// Range returns records with from <= sequence <= to, ascending.
	Range(ctx context.Context, from, to int64) ([]*Record, error)

	// Delete removes the given sequences. Reserved for retention purges;
	// the ledger never calls it outside PurgeExpired.
	Delete(ctx context.Context, sequences []int64) error
}

// Entry is the complete input snapshot for one evaluation record. Partial
// state is never persisted: an Entry is appended whole or not at all.
type Entry struct {
	CatalogVersion     string
	DatasetFingerprint string
	Path               transfer.TransferPath
	Regulations        []catalog.RegulationID
	Outcomes           []rules.Outcome
	Findings           []phi.Finding
	Degraded           bool
	Score              *risk.Score
	Approval           *ApprovalDecision
}

// Ledger is the sole serialization point of the pipeline: appends are
// applied in a strict global sequence under a single writer because each
// chain hash depends on its immediate predecessor.
type Ledger struct {
	mu        sync.Mutex
	store     Store
	retention time.Duration

	// pending holds entries whose append failed. An unresolved append is a
	// standing alarm condition, never a swallowed error.
	pending []pendingEntry
}

type pendingEntry struct {
	kind       RecordKind
	entry      Entry
	references *uuid.UUID
}

// NewLedger creates a ledger over a store with the configured retention
// period. Retention zero means records are never eligible for deletion.
func NewLedger(store Store, retention time.Duration) *Ledger {
	return &Ledger{store: store, retention: retention}
}

// Append records a full evaluation. On store failure the entry is queued
// for retry and the caller receives a retryable error: the evaluation
// result may still be displayed, marked unaudited.
func (l *Ledger) Append(ctx context.Context, entry Entry) (*Record, error) {
	return l.append(ctx, KindEvaluation, entry, nil)
}

// AppendDecision records a human decision for an earlier evaluation record.
// The original is never mutated.
func (l *Ledger) AppendDecision(ctx context.Context, evaluationID uuid.UUID, approval ApprovalDecision) (*Record, error) {
	entry := Entry{Approval: &approval}
	return l.append(ctx, KindDecision, entry, &evaluationID)
}

// AppendCorrection records a correction referencing the original record by
// identifier. Corrections are new records, never mutations.
func (l *Ledger) AppendCorrection(ctx context.Context, originalID uuid.UUID, entry Entry) (*Record, error) {
	return l.append(ctx, KindCorrection, entry, &originalID)
}

func (l *Ledger) append(ctx context.Context, kind RecordKind, entry Entry, references *uuid.UUID) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, err := l.appendLocked(ctx, kind, entry, references)
	if err != nil {
		l.pending = append(l.pending, pendingEntry{kind: kind, entry: entry, references: references})
		return nil, errors.NewExternalError("ledger", "append failed; entry queued for retry").WithCause(err)
	}
	return record, nil
}

func (l *Ledger) appendLocked(ctx context.Context, kind RecordKind, entry Entry, references *uuid.UUID) (*Record, error) {
	record := &Record{
		ID:                 uuid.New(),
		Kind:               kind,
		Timestamp:          time.Now().UTC(),
		CatalogVersion:     entry.CatalogVersion,
		DatasetFingerprint: entry.DatasetFingerprint,
		Path:               entry.Path,
		Regulations:        entry.Regulations,
		Outcomes:           entry.Outcomes,
		Findings:           entry.Findings,
		Degraded:           entry.Degraded,
		RiskScore:          entry.Score,
		Approval:           entry.Approval,
		References:         references,
	}
	return l.sealAndStore(ctx, record)
}

func (l *Ledger) sealAndStore(ctx context.Context, record *Record) (*Record, error) {
	last, err := l.store.Last(ctx)
	if err != nil {
		return nil, err
	}

	record.Sequence = 0
	previous := GenesisSeed
	if last != nil {
		record.Sequence = last.Sequence + 1
		previous = last.ChainHash
	}
	if err := record.seal(previous); err != nil {
		return nil, err
	}
	if err := l.store.Append(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// RetryPending replays queued appends in arrival order, stopping at the
// first failure. Returns how many entries were flushed.
func (l *Ledger) RetryPending(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	flushed := 0
	for len(l.pending) > 0 {
		p := l.pending[0]
		if _, err := l.appendLocked(ctx, p.kind, p.entry, p.references); err != nil {
			return flushed, errors.NewExternalError("ledger", "retry append failed").WithCause(err)
		}
		l.pending = l.pending[1:]
		flushed++
	}
	return flushed, nil
}

// PendingCount reports queued appends awaiting retry.
func (l *Ledger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// VerificationResult reports a chain verification run. FirstDivergent is
// the sequence of the first record failing verification, -1 when valid.
type VerificationResult struct {
	Valid           bool   `json:"valid"`
	RecordsVerified int    `json:"records_verified"`
	FirstDivergent  int64  `json:"first_divergent"`
	Reason          string `json:"reason,omitempty"`
}

// VerifyChain recomputes hashes over a stored range. Tampering is reported,
// never auto-repaired: a divergence requires out-of-band investigation.
func (l *Ledger) VerifyChain(ctx context.Context, from, to int64) (*VerificationResult, error) {
	records, err := l.store.Range(ctx, from, to)
	if err != nil {
		return nil, err
	}

	result := &VerificationResult{Valid: true, FirstDivergent: -1}
	var prev *Record
	for _, record := range records {
		result.RecordsVerified++

		if err := record.Verify(); err != nil {
			return diverged(result, record.Sequence, err.Error()), nil
		}
		if record.Sequence == 0 && record.PreviousChainHash != GenesisSeed {
			return diverged(result, 0, "first record not anchored to genesis seed"), nil
		}
		// Linkage is checkable only across contiguous sequences; a retention
		// purge may leave gaps whose anchors are the stored previous hashes.
		if prev != nil && prev.Sequence+1 == record.Sequence {
			if record.PreviousChainHash != prev.ChainHash {
				return diverged(result, record.Sequence, "previous chain hash does not match predecessor"), nil
			}
		}
		prev = record
	}
	return result, nil
}

func diverged(result *VerificationResult, sequence int64, reason string) *VerificationResult {
	result.Valid = false
	result.FirstDivergent = sequence
	result.Reason = reason
	return result
}

// PurgeExpired deletes records whose retention window has elapsed and
// appends a purge record noting what was removed and under which policy.
// Purge records themselves are never purged: the ledger about deletions is
// never deleted. Returns nil when nothing was eligible.
func (l *Ledger) PurgeExpired(ctx context.Context, now time.Time, policyNote string) (*Record, error) {
	if l.retention <= 0 {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.store.Last(ctx)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}

	records, err := l.store.Range(ctx, 0, last.Sequence)
	if err != nil {
		return nil, err
	}

	cutoff := now.Add(-l.retention)
	var expired []int64
	for _, record := range records {
		if record.Kind == KindPurge {
			continue
		}
		if record.Timestamp.Before(cutoff) {
			expired = append(expired, record.Sequence)
		}
	}
	if len(expired) == 0 {
		return nil, nil
	}

	if err := l.store.Delete(ctx, expired); err != nil {
		return nil, errors.NewExternalError("ledger", "retention purge failed").WithCause(err)
	}

	record := &Record{
		ID:              uuid.New(),
		Kind:            KindPurge,
		Timestamp:       time.Now().UTC(),
		PurgedSequences: expired,
		PolicyNote:      policyNote,
	}
	// Seal against the pre-delete tail so sequences stay monotonic even
	// when the purge emptied the store.
	record.Sequence = last.Sequence + 1
	if err := record.seal(last.ChainHash); err != nil {
		return nil, err
	}
	if err := l.store.Append(ctx, record); err != nil {
		return nil, errors.NewExternalError("ledger", "appending purge record").WithCause(err)
	}
	return record, nil
}
