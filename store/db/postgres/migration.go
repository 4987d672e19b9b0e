package postgres

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/vectorwave/store"
)

const schemaVersionTable = `CREATE TABLE IF NOT EXISTS schema_version (
	version TEXT PRIMARY KEY,
	applied_ts BIGINT NOT NULL
)`

func (*DB) Migrations() []store.Migration {
	return []store.Migration{
		{
			Version: "0.1.0",
			Statements: []string{
				`CREATE EXTENSION IF NOT EXISTS vector`,
				`CREATE TABLE IF NOT EXISTS conversation (
					id TEXT PRIMARY KEY,
					owner TEXT NOT NULL,
					title TEXT NOT NULL DEFAULT '',
					created_ts BIGINT NOT NULL,
					updated_ts BIGINT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_conversation_owner ON conversation (owner, updated_ts DESC)`,
				`CREATE TABLE IF NOT EXISTS message (
					seq BIGSERIAL PRIMARY KEY,
					id TEXT NOT NULL UNIQUE,
					conversation_id TEXT NOT NULL REFERENCES conversation (id) ON DELETE CASCADE,
					content TEXT NOT NULL,
					sender TEXT NOT NULL,
					kind TEXT NOT NULL,
					status TEXT NOT NULL,
					created_ts BIGINT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_message_conversation ON message (conversation_id, created_ts, seq)`,
				`CREATE TABLE IF NOT EXISTS document (
					id TEXT PRIMARY KEY,
					owner TEXT NOT NULL,
					title TEXT NOT NULL,
					content TEXT NOT NULL,
					chunk_count INTEGER NOT NULL DEFAULT 0,
					created_ts BIGINT NOT NULL,
					updated_ts BIGINT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_document_owner ON document (owner, created_ts)`,
				`CREATE TABLE IF NOT EXISTS vector_entry (
					seq BIGSERIAL PRIMARY KEY,
					namespace TEXT NOT NULL,
					id TEXT NOT NULL,
					embedding vector NOT NULL,
					metadata_text TEXT NOT NULL DEFAULT '',
					created_ts BIGINT NOT NULL,
					UNIQUE (namespace, id)
				)`,
			},
		},
	}
}

func (d *DB) ListAppliedMigrations(ctx context.Context) ([]string, error) {
	if _, err := d.db.ExecContext(ctx, schemaVersionTable); err != nil {
		return nil, errors.Wrap(err, "failed to create schema_version table")
	}
	rows, err := d.db.QueryContext(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schema versions")
	}
	defer rows.Close()

	versions := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "failed to scan schema version")
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (d *DB) ApplyMigration(ctx context.Context, migration store.Migration) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin migration")
	}
	defer tx.Rollback()

	for _, stmt := range migration.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute %q", stmt)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_ts) VALUES (`+placeholders(2)+`)`,
		migration.Version, time.Now().UnixMilli(),
	); err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}
	return tx.Commit()
}
