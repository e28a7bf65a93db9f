package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stratumdb/stratum/internal/resource"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - empty database (pre-initialization)
// 1 - initial schema (tables registry + rows relation)
const currentSchemaVersion = 1

// SQLite is the SQLite-backed engine. Every resource table lives in one
// relation keyed by (table_name, key); attribute maps are stored as
// canonical JSON TEXT.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite creates or opens a SQLite database at the given path and
// applies pragmas and the schema. Idempotent: reopening an existing
// database is safe.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - foreign key enforcement
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY instead of retrying around it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) CreateTable(table string) error {
	_, err := s.db.Exec(`
		INSERT INTO tables (name) VALUES (?)
		ON CONFLICT(name) DO NOTHING
	`, table)
	if err != nil {
		return fmt.Errorf("create table %q: %w", table, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Transaction wraps BeginTx with a deferred rollback, so both fn errors
// and panics leave the database untouched.
func (s *SQLite) Transaction(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&sqliteTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	ctx context.Context
	tx  *sql.Tx
}

var _ Tx = (*sqliteTx)(nil)

// requireTable resolves a table against the registry so unknown tables
// surface as ErrTableNotFound rather than as silent empty results.
func (t *sqliteTx) requireTable(table string) error {
	var name string
	err := t.tx.QueryRowContext(t.ctx, `SELECT name FROM tables WHERE name = ?`, table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTableNotFound
	}
	if err != nil {
		return fmt.Errorf("resolve table %q: %w", table, err)
	}
	return nil
}

func (t *sqliteTx) Read(table string, key resource.Key) (Attrs, error) {
	if err := t.requireTable(table); err != nil {
		return nil, err
	}

	var attrsJSON string
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT attrs FROM rows WHERE table_name = ? AND key = ?
	`, table, string(key)).Scan(&attrsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", table, key, err)
	}
	return decodeAttrs([]byte(attrsJSON))
}

func (t *sqliteTx) Write(table string, key resource.Key, attrs Attrs) error {
	if err := t.requireTable(table); err != nil {
		return err
	}
	data, err := encodeAttrs(attrs)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO rows (table_name, key, attrs)
		VALUES (?, ?, ?)
		ON CONFLICT(table_name, key) DO UPDATE SET attrs = excluded.attrs
	`, table, string(key), string(data))
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", table, key, err)
	}
	return nil
}

func (t *sqliteTx) Delete(table string, key resource.Key) error {
	if err := t.requireTable(table); err != nil {
		return err
	}
	// DELETE of an absent key affects zero rows, which is the idempotent
	// behavior the contract asks for.
	_, err := t.tx.ExecContext(t.ctx, `
		DELETE FROM rows WHERE table_name = ? AND key = ?
	`, table, string(key))
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, key, err)
	}
	return nil
}

func (t *sqliteTx) Scan(table string) ([]Row, error) {
	if err := t.requireTable(table); err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT key, attrs FROM rows
		WHERE table_name = ?
		ORDER BY key ASC
	`, table)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	defer rows.Close()

	out := make([]Row, 0)
	for rows.Next() {
		var key, attrsJSON string
		if err := rows.Scan(&key, &attrsJSON); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		attrs, err := decodeAttrs([]byte(attrsJSON))
		if err != nil {
			return nil, fmt.Errorf("scan %s at key %s: %w", table, key, err)
		}
		out = append(out, Row{Key: resource.Key(key), Attrs: attrs})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	return out, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates the relations if they don't exist and stamps the
// schema version. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}
