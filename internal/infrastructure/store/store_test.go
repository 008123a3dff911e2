package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/audit"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
	"github.com/davidleathers/crossborder-health-compliance/internal/infrastructure/config"
)

func testRecord(sequence int64) *audit.Record {
	return &audit.Record{
		Sequence:           sequence,
		ID:                 uuid.New(),
		Kind:               audit.KindEvaluation,
		Timestamp:          time.Now().UTC().Truncate(time.Microsecond),
		CatalogVersion:     "v-test",
		DatasetFingerprint: "fp",
		Regulations:        []catalog.RegulationID{"GDPR"},
		ContentHash:        "content",
		PreviousChainHash:  "prev",
		ChainHash:          "chain",
	}
}

// storeContract exercises the behavior every backend must share.
func storeContract(t *testing.T, s audit.Store) {
	ctx := context.Background()

	last, err := s.Last(ctx)
	require.NoError(t, err)
	assert.Nil(t, last, "empty store has no last record")

	for i := int64(0); i < 4; i++ {
		require.NoError(t, s.Append(ctx, testRecord(i)))
	}

	err = s.Append(ctx, testRecord(2))
	require.Error(t, err, "duplicate sequence must be rejected")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))

	last, err = s.Last(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, int64(3), last.Sequence)

	records, err := s.Range(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].Sequence)
	assert.Equal(t, int64(2), records[1].Sequence)
	assert.Equal(t, []catalog.RegulationID{"GDPR"}, records[0].Regulations)

	require.NoError(t, s.Delete(ctx, []int64{0, 1}))
	records, err = s.Range(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), records[0].Sequence)

	require.NoError(t, s.Delete(ctx, nil), "empty delete is a no-op")
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestSQLiteStore_Contract(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	storeContract(t, s)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, testRecord(0)))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	last, err := reopened.Last(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, int64(0), last.Sequence)
	assert.Equal(t, "v-test", last.CatalogVersion)
}

func TestNew_BackendSelection(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	s, err := New(ctx, &config.LedgerConfig{Backend: "memory"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(ctx, &config.LedgerConfig{
		Backend:    "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "ledger.db"),
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)

	_, err = New(ctx, &config.LedgerConfig{Backend: "cassandra"}, logger)
	assert.Error(t, err)
}

func TestMemoryStore_FailAppends(t *testing.T) {
	s := NewMemoryStore()
	s.FailAppends = true
	err := s.Append(context.Background(), testRecord(0))
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}
