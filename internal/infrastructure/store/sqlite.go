package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/audit"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ledger_records (
	sequence     INTEGER PRIMARY KEY,
	record_id    TEXT NOT NULL,
	kind         TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	chain_hash   TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	payload      TEXT NOT NULL
);
`

// SQLiteStore persists the ledger in an embedded SQLite database. The full
// record is stored as its JSON payload; sequence and hashes are lifted into
// columns for range scans and verification queries.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) the ledger database at path.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewExternalError("sqlite", "opening ledger database").WithCause(err)
	}
	// Single writer per ledger; one connection keeps SQLite's own locking
	// out of the picture.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, errors.NewExternalError("sqlite", "creating ledger schema").WithCause(err)
	}

	logger.Info("sqlite ledger store opened", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, record *audit.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return errors.NewInternalError("serializing ledger record").WithCause(err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ledger_records (sequence, record_id, kind, content_hash, chain_hash, created_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.Sequence, record.ID.String(), string(record.Kind),
		record.ContentHash, record.ChainHash,
		record.Timestamp.Format("2006-01-02T15:04:05.999999999Z07:00"),
		string(payload),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return errors.NewConflictError("duplicate ledger sequence")
		}
		return errors.NewExternalError("sqlite", "appending ledger record").WithCause(err)
	}
	return nil
}

func (s *SQLiteStore) Last(ctx context.Context) (*audit.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM ledger_records ORDER BY sequence DESC LIMIT 1`)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.NewExternalError("sqlite", "reading last ledger record").WithCause(err)
	}
	return decodeRecord(payload)
}

func (s *SQLiteStore) Range(ctx context.Context, from, to int64) ([]*audit.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM ledger_records WHERE sequence >= ? AND sequence <= ? ORDER BY sequence ASC`,
		from, to)
	if err != nil {
		return nil, errors.NewExternalError("sqlite", "reading ledger range").WithCause(err)
	}
	defer rows.Close()

	var out []*audit.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.NewExternalError("sqlite", "scanning ledger record").WithCause(err)
		}
		record, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, sequences []int64) error {
	if len(sequences) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sequences)), ",")
	args := make([]any, len(sequences))
	for i, seq := range sequences {
		args[i] = seq
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM ledger_records WHERE sequence IN (%s)`, placeholders),
		args...)
	if err != nil {
		return errors.NewExternalError("sqlite", "purging ledger records").WithCause(err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeRecord(payload string) (*audit.Record, error) {
	var record audit.Record
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, errors.NewIntegrityError("RECORD_UNDECODABLE",
			"stored ledger record cannot be decoded").WithCause(err)
	}
	return &record, nil
}
