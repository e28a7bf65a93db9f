package datalayer

import (
	"context"

	"github.com/stratumdb/stratum/internal/store"
)

// txKey is the context key carrying the ambient transaction.
type txKey struct{}

// txState is what a live transaction looks like from inside: the engine
// handle plus the token that tags its log lines.
type txState struct {
	tx    store.Tx
	token string
}

func txFrom(ctx context.Context) (*txState, bool) {
	st, ok := ctx.Value(txKey{}).(*txState)
	return st, ok
}

// rollbackPanic unwinds a Rollback call to the coordinator that owns the
// transaction. It never escapes RunInTransaction.
type rollbackPanic struct {
	reason any
}

// InTransaction reports whether ctx carries a live transaction. Callers
// use it to avoid double-wrapping work that is already transactional.
func InTransaction(ctx context.Context) bool {
	_, ok := txFrom(ctx)
	return ok
}

// Rollback unconditionally aborts the ambient transaction, carrying
// reason as the abort cause. It does not return: the call unwinds to the
// RunInTransaction that opened the transaction, which reports reason as
// its error (unwrapped if reason is already an error, wrapped in
// *AbortError otherwise).
//
// Calling Rollback outside a transaction is a programmer bug and panics
// with a plain message.
func Rollback(ctx context.Context, reason any) {
	if !InTransaction(ctx) {
		panic("datalayer: Rollback called outside a transaction")
	}
	panic(rollbackPanic{reason: reason})
}

// RunInTransaction runs fn atomically. If ctx already carries a
// transaction, fn joins it: no new transaction is opened, and returning
// from fn neither commits nor aborts the outer one — only errors and
// Rollback do. Otherwise a fresh engine transaction is opened, tagged
// with a token, and committed iff fn returns nil.
func (dl *DataLayer) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		// Degrade to the ambient transaction. A Rollback inside fn
		// unwinds past this frame to the coordinator that owns it.
		return fn(ctx)
	}

	token := dl.tokens.Generate()
	log := dl.log.With("txn", token)
	log.Debug("transaction begin", "engine", dl.engine.Name())

	err := dl.engine.Transaction(ctx, func(tx store.Tx) error {
		inner := context.WithValue(ctx, txKey{}, &txState{tx: tx, token: token})
		return recoverRollback(inner, fn)
	})
	if err != nil {
		log.Debug("transaction aborted", "error", err)
		return err
	}
	log.Debug("transaction committed")
	return nil
}

// recoverRollback converts a Rollback unwind into the transaction's error
// return. Any other panic is a real bug and keeps propagating (the engine
// rolls back on the way through).
func recoverRollback(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		rb, ok := r.(rollbackPanic)
		if !ok {
			panic(r)
		}
		err = abortReason(rb.reason)
	}()
	return fn(ctx)
}

// abortReason maps a rollback value onto the error channel: errors
// surface unwrapped, everything else is wrapped.
func abortReason(reason any) error {
	if err, ok := reason.(error); ok {
		return err
	}
	return &AbortError{Reason: reason}
}

// withTx runs fn against the ambient transaction, opening one when the
// context has none. Every operation in this package goes through here, so
// "runs in the caller's transaction or its own" holds uniformly.
func (dl *DataLayer) withTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if st, ok := txFrom(ctx); ok {
		return fn(ctx, st.tx)
	}
	return dl.RunInTransaction(ctx, func(ctx context.Context) error {
		st, _ := txFrom(ctx)
		return fn(ctx, st.tx)
	})
}
