// Package store defines the storage engine contract the data layer runs
// on, plus the three engines that implement it.
//
// The contract is deliberately small: an engine creates named tables,
// opens transactions, and inside a transaction reads, writes, deletes,
// and scans opaque rows. Keys arrive pre-encoded (canonical JSON of the
// primary-key tuple), so every engine stores a single flat key with no
// knowledge of key shape. Attribute maps carry only scalar values
// (string, int64, bool, float64, nil).
//
// # Engines
//
//   - memory: a mutex-guarded map. Transactions buffer writes and
//     deletes in an overlay and apply them on commit. Used by tests,
//     the scenario harness, and as the CLI default.
//   - bolt: a bbolt file database; one bucket per table, attribute maps
//     stored as canonical JSON bytes.
//   - sqlite: a SQLite database; all rows in one relation keyed by
//     (table_name, key), attribute maps stored as canonical JSON TEXT.
//
// # Transaction semantics
//
// Transaction(ctx, fn) commits iff fn returns nil. A non-nil error or a
// panic aborts: no write inside the transaction becomes visible. Writes
// are visible to reads in the same transaction before commit. Engines
// serialize transactions; there is no optimistic concurrency here.
//
// # SQLite configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: rows must reference a registered table
package store
