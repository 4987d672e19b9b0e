package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/vectorwave/internal/profile"
	"github.com/hrygo/vectorwave/store"
)

// ============================================================================
// SQLITE SUPPORT POLICY
// ============================================================================
// SQLite is supported for development, single-user instances and tests.
//
// - Vectors are stored as little-endian float32 BLOBs.
// - Similarity search is computed in the Go application layer, so query cost
//   grows linearly with the size of a namespace.
// ============================================================================

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database file named by the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Notes:
	// - When using the `modernc.org/sqlite` driver, each pragma must be prefixed with `_pragma=`.
	// - Foreign keys are on so message rows cascade with their conversation.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// SQLite: single connection is optimal with WAL
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	return &DB{db: sqliteDB, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const schemaVersionTable = `CREATE TABLE IF NOT EXISTS schema_version (
	version TEXT PRIMARY KEY,
	applied_ts INTEGER NOT NULL
)`

func (*DB) Migrations() []store.Migration {
	return []store.Migration{
		{
			Version: "0.1.0",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS conversation (
					id TEXT PRIMARY KEY,
					owner TEXT NOT NULL,
					title TEXT NOT NULL DEFAULT '',
					created_ts INTEGER NOT NULL,
					updated_ts INTEGER NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_conversation_owner ON conversation (owner, updated_ts)`,
				`CREATE TABLE IF NOT EXISTS message (
					seq INTEGER PRIMARY KEY AUTOINCREMENT,
					id TEXT NOT NULL UNIQUE,
					conversation_id TEXT NOT NULL REFERENCES conversation (id) ON DELETE CASCADE,
					content TEXT NOT NULL,
					sender TEXT NOT NULL,
					kind TEXT NOT NULL,
					status TEXT NOT NULL,
					created_ts INTEGER NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_message_conversation ON message (conversation_id, created_ts, seq)`,
				`CREATE TABLE IF NOT EXISTS document (
					id TEXT PRIMARY KEY,
					owner TEXT NOT NULL,
					title TEXT NOT NULL,
					content TEXT NOT NULL,
					chunk_count INTEGER NOT NULL DEFAULT 0,
					created_ts INTEGER NOT NULL,
					updated_ts INTEGER NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_document_owner ON document (owner, created_ts)`,
				`CREATE TABLE IF NOT EXISTS vector_entry (
					seq INTEGER PRIMARY KEY AUTOINCREMENT,
					namespace TEXT NOT NULL,
					id TEXT NOT NULL,
					embedding BLOB NOT NULL,
					metadata_text TEXT NOT NULL DEFAULT '',
					created_ts INTEGER NOT NULL,
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
		`INSERT INTO schema_version (version, applied_ts) VALUES (?, ?)`,
		migration.Version, time.Now().UnixMilli(),
	); err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}
	return tx.Commit()
}
