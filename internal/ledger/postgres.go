package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS subscribers (
    identity   TEXT PRIMARY KEY,
    record     JSONB NOT NULL,
    version    BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists records in PostgreSQL, using the version column for compare-and-swap.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store and ensures its table exists.
func NewPostgresStore(ctx context.Context, db *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("migrate subscribers: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Get fetches the record for id.
func (s *PostgresStore) Get(ctx context.Context, id string) (UserRecord, error) {
	var raw []byte
	var version int64
	err := s.db.QueryRow(ctx, `SELECT record, version FROM subscribers WHERE identity = $1`, id).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrNotFound
	}
	if err != nil {
		return UserRecord{}, err
	}
	var rec UserRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return UserRecord{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	rec.Version = version
	return rec, nil
}

// Put upserts rec, bumping the version inside a transaction.
func (s *PostgresStore) Put(ctx context.Context, rec UserRecord) (UserRecord, error) {
	if rec.Identity == "" {
		return UserRecord{}, errEmptyIdentity
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return UserRecord{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var current int64
	err = tx.QueryRow(ctx, `SELECT version FROM subscribers WHERE identity = $1 FOR UPDATE`, rec.Identity).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, err
	}

	rec.Version = current + 1
	payload, err := json.Marshal(rec)
	if err != nil {
		return UserRecord{}, fmt.Errorf("encode record: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO subscribers (identity, record, version, updated_at)
        VALUES ($1, $2, $3, now())
        ON CONFLICT (identity) DO UPDATE SET record = EXCLUDED.record, version = EXCLUDED.version, updated_at = now()`,
		rec.Identity, payload, rec.Version); err != nil {
		return UserRecord{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

// CompareAndSwap writes rec only if the stored version equals expectedVersion.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, rec UserRecord, expectedVersion int64) (UserRecord, error) {
	if rec.Identity == "" {
		return UserRecord{}, errEmptyIdentity
	}
	rec.Version = expectedVersion + 1
	payload, err := json.Marshal(rec)
	if err != nil {
		return UserRecord{}, fmt.Errorf("encode record: %w", err)
	}

	if expectedVersion == 0 {
		cmd, err := s.db.Exec(ctx, `INSERT INTO subscribers (identity, record, version, updated_at)
            VALUES ($1, $2, 1, now()) ON CONFLICT (identity) DO NOTHING`, rec.Identity, payload)
		if err != nil {
			return UserRecord{}, err
		}
		if cmd.RowsAffected() == 0 {
			return UserRecord{}, ErrVersionConflict
		}
		return rec, nil
	}

	cmd, err := s.db.Exec(ctx, `UPDATE subscribers SET record = $2, version = $3, updated_at = now()
        WHERE identity = $1 AND version = $4`, rec.Identity, payload, rec.Version, expectedVersion)
	if err != nil {
		return UserRecord{}, err
	}
	if cmd.RowsAffected() == 0 {
		return UserRecord{}, ErrVersionConflict
	}
	return rec, nil
}

// Delete removes the record for id.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	cmd, err := s.db.Exec(ctx, `DELETE FROM subscribers WHERE identity = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
