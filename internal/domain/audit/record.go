// Package audit provides the tamper-evident decision ledger. Records are
// append-only, hash-chained and write-once: there is no update or delete in
// the public contract, corrections and decisions are new records referencing
// the original, and retention purges are themselves recorded.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/phi"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/risk"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/rules"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/transfer"
)

// GenesisSeed anchors the first record of every ledger. Fixed by contract;
// changing it invalidates all existing chains.
const GenesisSeed = "cbhc-ledger-genesis-v1"

// Decision is the external reviewer's verdict.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// ApprovalDecision is produced by the human-approval collaborator and
// treated as an opaque input: the engine never blocks waiting for it.
type ApprovalDecision struct {
	Decision   Decision  `json:"decision"`
	ReviewerID string    `json:"reviewer_id"`
	Rationale  string    `json:"rationale"`
	Timestamp  time.Time `json:"timestamp"`
}

// RecordKind classifies ledger entries.
type RecordKind string

const (
	KindEvaluation RecordKind = "evaluation"
	KindDecision   RecordKind = "decision"
	KindCorrection RecordKind = "correction"
	KindPurge      RecordKind = "purge"
)

// Record is one immutable ledger entry: the full snapshot of a decision
// plus the hashes binding it to its predecessor.
type Record struct {
	Sequence  int64      `json:"sequence"`
	ID        uuid.UUID  `json:"id"`
	Kind      RecordKind `json:"kind"`
	Timestamp time.Time  `json:"timestamp"`

	CatalogVersion     string                     `json:"catalog_version"`
	DatasetFingerprint string                     `json:"dataset_fingerprint,omitempty"`
	Path               transfer.TransferPath      `json:"path"`
	Regulations        []catalog.RegulationID     `json:"regulations_evaluated"`
	Outcomes           []rules.Outcome            `json:"violations"`
	Findings           []phi.Finding              `json:"findings"`
	Degraded           bool                       `json:"degraded,omitempty"`
	RiskScore          *risk.Score                `json:"risk_score,omitempty"`
	Approval           *ApprovalDecision          `json:"approval"`

	// Cross-references for non-evaluation kinds.
	References      *uuid.UUID `json:"references,omitempty"`
	PurgedSequences []int64    `json:"purged_sequences,omitempty"`
	PolicyNote      string     `json:"policy_note,omitempty"`

	ContentHash       string `json:"content_hash"`
	PreviousChainHash string `json:"previous_chain_hash"`
	ChainHash         string `json:"chain_hash"`
}

// ComputeContentHash hashes the record payload over its RFC 8785 canonical
// serialization with the self-referential hash fields excluded. Field order
// is fixed by canonicalization; the score uses decimal strings so no
// floating nondeterminism enters the hash.
func (r *Record) ComputeContentHash() (string, error) {
	clone := *r
	clone.ContentHash = ""
	clone.PreviousChainHash = ""
	clone.ChainHash = ""

	raw, err := json.Marshal(&clone)
	if err != nil {
		return "", errors.NewInternalError("serializing audit record").WithCause(err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", errors.NewInternalError("canonicalizing audit record").WithCause(err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ChainLink computes H(previousChainHash || contentHash).
func ChainLink(previousChainHash, contentHash string) string {
	sum := sha256.Sum256([]byte(previousChainHash + contentHash))
	return hex.EncodeToString(sum[:])
}

// seal computes and sets both hashes. previous is the predecessor's chain
// hash, or GenesisSeed for the first record.
func (r *Record) seal(previous string) error {
	contentHash, err := r.ComputeContentHash()
	if err != nil {
		return err
	}
	r.ContentHash = contentHash
	r.PreviousChainHash = previous
	r.ChainHash = ChainLink(previous, contentHash)
	return nil
}

// Verify recomputes this record's hashes against its stored values.
func (r *Record) Verify() error {
	contentHash, err := r.ComputeContentHash()
	if err != nil {
		return err
	}
	if contentHash != r.ContentHash {
		return errors.NewIntegrityError("CONTENT_HASH_MISMATCH",
			"record payload does not match its stored content hash")
	}
	if ChainLink(r.PreviousChainHash, contentHash) != r.ChainHash {
		return errors.NewIntegrityError("CHAIN_HASH_MISMATCH",
			"record chain hash does not match recomputation")
	}
	return nil
}
