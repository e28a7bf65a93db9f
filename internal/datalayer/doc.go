// Package datalayer implements resource persistence over a pluggable
// storage engine: queries, mutations, aggregates, and the transaction
// coordination they all run under.
//
// A DataLayer owns one store.Engine and a registry of resource schemas.
// Registering a resource validates its schema, resolves its table name
// once, and creates the backing table. Every operation then follows the
// same shape: resolve the resource, run inside a transaction (the
// caller's ambient one, or a self-opened one), move rows through the
// codec, and work on typed records in memory.
//
// # Transactions
//
// RunInTransaction opens an engine transaction and threads it through
// context.Context. Re-entrant calls degrade to the ambient transaction
// rather than nesting: upsert calling update calling destroy all share
// one commit point. Rollback aborts the whole ambient transaction by
// unwinding to the coordinator that opened it; the abort reason comes
// back as the transaction's error (unwrapped when it already is one,
// wrapped in *AbortError otherwise).
//
// Each top-level transaction is tagged with a token (UUIDv7 in
// production, fixed sequences in tests) that appears as the "txn"
// attribute on every log line inside it.
//
// # Reads
//
// There is no query push-down. RunQuery scans the whole table inside one
// transaction, casts every row, evaluates the filter in memory, applies
// a stable multi-key sort, then the offset/limit window. The scan
// snapshot is consistent for the lifetime of the query because all of it
// happens inside a single transaction.
package datalayer
