package datalayer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stratumdb/stratum/internal/resource"
)

// NotFoundError reports an update against a record that is not stored.
type NotFoundError struct {
	Resource string
	Key      resource.Key
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no record at key %s", e.Resource, e.Key)
}

// ConflictError reports an upsert whose key attributes matched more than
// one record. The keys are not actually unique: a caller or schema error,
// never something to retry.
type ConflictError struct {
	Resource string
	Keys     []string
	Matches  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %d records match upsert keys [%s]",
		e.Resource, e.Matches, strings.Join(e.Keys, ", "))
}

// AbortError carries a non-error rollback reason out of a transaction.
// Error reasons surface unwrapped instead.
type AbortError struct {
	Reason any
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("transaction aborted: %v", e.Reason)
}

// UnsupportedAggregateError reports an aggregate kind the evaluator does
// not implement.
type UnsupportedAggregateError struct {
	Kind Kind
}

func (e *UnsupportedAggregateError) Error() string {
	return fmt.Sprintf("unsupported aggregate kind %s", e.Kind)
}

// UnknownResourceError reports an operation against a resource that was
// never registered.
type UnknownResourceError struct {
	Name string
}

func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("resource %q is not registered", e.Name)
}

// IsNotFound reports whether err is a missing-record failure.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is an ambiguous-upsert failure.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsAbort reports whether err carries a non-error rollback reason.
func IsAbort(err error) bool {
	var ae *AbortError
	return errors.As(err, &ae)
}
