package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumdb/stratum/internal/resource"
)

// Attrs is the native form of one stored record: attribute name to scalar
// carrier value (string, int64, bool, float64, or nil).
type Attrs = map[string]any

// Row is one stored record with its key.
type Row struct {
	Key   resource.Key
	Attrs Attrs
}

// Errors every engine maps its own not-found conditions onto, so callers
// can errors.Is without knowing which engine is underneath.
var (
	ErrKeyNotFound   = errors.New("store: key not found")
	ErrTableNotFound = errors.New("store: table not found")
)

// Engine is a storage backend. Implementations are safe for concurrent
// use; transactions serialize against each other.
type Engine interface {
	// Name identifies the engine ("memory", "bolt", "sqlite").
	Name() string

	// CreateTable registers a table. Idempotent: creating an existing
	// table is a no-op.
	CreateTable(table string) error

	// Transaction runs fn atomically. The transaction commits iff fn
	// returns nil; an error return or a panic rolls every write back.
	// fn's error is returned unchanged so callers can carry structured
	// abort reasons through the engine.
	Transaction(ctx context.Context, fn func(Tx) error) error

	// Close releases the engine's resources.
	Close() error
}

// Tx is the per-transaction handle. It is only valid inside the fn passed
// to Transaction; retaining one past that call is a bug.
type Tx interface {
	// Read returns the attribute map at key, or ErrKeyNotFound.
	Read(table string, key resource.Key) (Attrs, error)

	// Write stores the attribute map at key, silently replacing any
	// existing row.
	Write(table string, key resource.Key, attrs Attrs) error

	// Delete removes the row at key. Deleting an absent key is a no-op.
	Delete(table string, key resource.Key) error

	// Scan returns every row in the table ascending by key bytes. An
	// empty table scans to an empty, non-nil slice; an unregistered
	// table is ErrTableNotFound.
	Scan(table string) ([]Row, error)
}

// Open dispatches an engine by name. The memory engine ignores path; bolt
// and sqlite require one.
func Open(engine, path string) (Engine, error) {
	switch engine {
	case "memory":
		return OpenMemory(), nil
	case "bolt":
		if path == "" {
			return nil, fmt.Errorf("engine %q requires a database path", engine)
		}
		return OpenBolt(path)
	case "sqlite":
		if path == "" {
			return nil, fmt.Errorf("engine %q requires a database path", engine)
		}
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown storage engine %q (want memory, bolt, or sqlite)", engine)
	}
}
