package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/audit"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ledger_records (
	sequence     BIGINT PRIMARY KEY,
	record_id    UUID NOT NULL,
	kind         TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	chain_hash   TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	payload      JSONB NOT NULL
)`

// PostgresStore persists the ledger in PostgreSQL for deployments sharing
// one ledger across processes. The database enforces sequence uniqueness;
// the ledger's single writer enforces ordering.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects to the database and ensures the ledger schema.
func NewPostgresStore(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.NewExternalError("postgres", "connecting to ledger database").WithCause(err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, errors.NewExternalError("postgres", "creating ledger schema").WithCause(err)
	}

	logger.Info("postgres ledger store connected")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) Append(ctx context.Context, record *audit.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return errors.NewInternalError("serializing ledger record").WithCause(err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO ledger_records (sequence, record_id, kind, content_hash, chain_hash, created_at, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.Sequence, record.ID, string(record.Kind),
		record.ContentHash, record.ChainHash, record.Timestamp, payload,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errors.NewConflictError("duplicate ledger sequence")
		}
		return errors.NewExternalError("postgres", "appending ledger record").WithCause(err)
	}
	return nil
}

func (s *PostgresStore) Last(ctx context.Context) (*audit.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT payload FROM ledger_records ORDER BY sequence DESC LIMIT 1`)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errors.NewExternalError("postgres", "reading last ledger record").WithCause(err)
	}
	return decodeRecord(string(payload))
}

func (s *PostgresStore) Range(ctx context.Context, from, to int64) ([]*audit.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM ledger_records WHERE sequence >= $1 AND sequence <= $2 ORDER BY sequence ASC`,
		from, to)
	if err != nil {
		return nil, errors.NewExternalError("postgres", "reading ledger range").WithCause(err)
	}
	defer rows.Close()

	var out []*audit.Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.NewExternalError("postgres", "scanning ledger record").WithCause(err)
		}
		record, err := decodeRecord(string(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, sequences []int64) error {
	if len(sequences) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM ledger_records WHERE sequence = ANY($1)`, sequences)
	if err != nil {
		return errors.NewExternalError("postgres", "purging ledger records").WithCause(err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
