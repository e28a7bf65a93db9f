package datalayer

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumdb/stratum/internal/codec"
	"github.com/stratumdb/stratum/internal/filter"
	"github.com/stratumdb/stratum/internal/query"
	"github.com/stratumdb/stratum/internal/resource"
	"github.com/stratumdb/stratum/internal/store"
)

// Create persists a staged record at the key derived from its attributes.
// There is no uniqueness check: an existing row at the same key is
// silently replaced — last writer wins at the storage layer. Missing
// nullable attributes are filled with null so the stored row always
// carries the complete attribute map.
func (dl *DataLayer) Create(ctx context.Context, res *resource.Resource, rec resource.Record) (resource.Record, error) {
	table, err := dl.tableFor(res)
	if err != nil {
		return resource.Record{}, err
	}

	obj, err := codec.Complete(res, rec.Attrs)
	if err != nil {
		return resource.Record{}, err
	}
	key, err := codec.KeyFor(res, obj)
	if err != nil {
		return resource.Record{}, err
	}
	native, err := codec.Dump(res, obj)
	if err != nil {
		return resource.Record{}, err
	}

	err = dl.withTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Write(table, key, native); err != nil {
			return fmt.Errorf("write %s/%s: %w", table, key, err)
		}
		dl.logWith(ctx).Debug("record created", "resource", res.Name, "key", key.String())
		return nil
	})
	if err != nil {
		return resource.Record{}, err
	}
	return resource.Record{Attrs: obj, Persisted: true}, nil
}

// Destroy deletes the row at the record's current key. Destroying a
// record that is already gone succeeds: the delete is idempotent.
func (dl *DataLayer) Destroy(ctx context.Context, res *resource.Resource, rec resource.Record) error {
	table, err := dl.tableFor(res)
	if err != nil {
		return err
	}
	key, err := codec.KeyFor(res, rec.Attrs)
	if err != nil {
		return err
	}

	return dl.withTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Delete(table, key); err != nil {
			return fmt.Errorf("delete %s/%s: %w", table, key, err)
		}
		dl.logWith(ctx).Debug("record destroyed", "resource", res.Name, "key", key.String())
		return nil
	})
}

// Update merges staged changes into the stored row identified by old's
// current key. The whole sequence — read, merge, write, re-read, and any
// identity move — runs in one transaction; any step's failure aborts all
// of it.
//
// If the changes touch a primary-key attribute, the update degrades to a
// move: the merged row is written at the new key and the old key is
// deleted, so at commit the row exists at exactly one key.
func (dl *DataLayer) Update(ctx context.Context, res *resource.Resource, old resource.Record, changes resource.Object) (resource.Record, error) {
	table, err := dl.tableFor(res)
	if err != nil {
		return resource.Record{}, err
	}
	oldKey, err := codec.KeyFor(res, old.Attrs)
	if err != nil {
		return resource.Record{}, err
	}
	dumped, err := codec.Dump(res, changes)
	if err != nil {
		return resource.Record{}, err
	}

	var updated resource.Record
	err = dl.withTx(ctx, func(ctx context.Context, tx store.Tx) error {
		stored, err := tx.Read(table, oldKey)
		if errors.Is(err, store.ErrKeyNotFound) {
			return &NotFoundError{Resource: res.Name, Key: oldKey}
		}
		if err != nil {
			return fmt.Errorf("read %s/%s: %w", table, oldKey, err)
		}

		merged := make(store.Attrs, len(stored))
		for name, v := range stored {
			merged[name] = v
		}
		for name, v := range dumped {
			merged[name] = v
		}

		if err := tx.Write(table, oldKey, merged); err != nil {
			return fmt.Errorf("write %s/%s: %w", table, oldKey, err)
		}

		reread, err := tx.Read(table, oldKey)
		if err != nil {
			return fmt.Errorf("reread %s/%s: %w", table, oldKey, err)
		}
		rec, err := codec.Cast(res, reread)
		if err != nil {
			return err
		}

		newKey, err := codec.KeyFor(res, rec.Attrs)
		if err != nil {
			return err
		}
		if newKey != oldKey {
			// A primary-key attribute changed: move the row.
			if err := tx.Write(table, newKey, merged); err != nil {
				return fmt.Errorf("write %s/%s: %w", table, newKey, err)
			}
			if err := tx.Delete(table, oldKey); err != nil {
				return fmt.Errorf("delete %s/%s: %w", table, oldKey, err)
			}
			dl.logWith(ctx).Debug("record moved",
				"resource", res.Name,
				"old_key", oldKey.String(),
				"new_key", newKey.String(),
			)
		} else {
			dl.logWith(ctx).Debug("record updated", "resource", res.Name, "key", oldKey.String())
		}

		updated = rec
		return nil
	})
	if err != nil {
		return resource.Record{}, err
	}
	return updated, nil
}

// Upsert creates or updates depending on what the key attributes match.
// keyAttrs defaults to the primary key. A staged record with any key
// attribute unset or null falls back to a plain create. Otherwise the
// layer queries for records whose key attributes equal the staged
// values, in the same transaction as the mutation that follows:
//
//   - zero matches: create
//   - exactly one: the staged non-key attributes become update changes
//   - two or more: *ConflictError — the keys are not unique
func (dl *DataLayer) Upsert(ctx context.Context, res *resource.Resource, rec resource.Record, keyAttrs []string) (resource.Record, error) {
	if _, err := dl.tableFor(res); err != nil {
		return resource.Record{}, err
	}

	if len(keyAttrs) == 0 {
		keyAttrs = res.PrimaryKey
	}
	for _, name := range keyAttrs {
		if _, ok := res.Attr(name); !ok {
			return resource.Record{}, fmt.Errorf("upsert key %q: resource %q declares no such attribute", name, res.Name)
		}
	}

	if !codec.HasKey(res, rec.Attrs, keyAttrs) {
		return dl.Create(ctx, res, rec)
	}

	preds := make([]filter.Predicate, 0, len(keyAttrs))
	for _, name := range keyAttrs {
		preds = append(preds, filter.Eq{Attr: name, Value: rec.Attrs[name]})
	}
	q := query.New(res).WithFilter(filter.And{Preds: preds})

	var out resource.Record
	err := dl.withTx(ctx, func(ctx context.Context, tx store.Tx) error {
		matches, err := dl.RunQuery(ctx, q)
		if err != nil {
			return err
		}

		switch len(matches) {
		case 0:
			out, err = dl.Create(ctx, res, rec)
			return err
		case 1:
			isKey := make(map[string]bool, len(keyAttrs))
			for _, name := range keyAttrs {
				isKey[name] = true
			}
			changes := make(resource.Object)
			for name, v := range rec.Attrs {
				if !isKey[name] {
					changes[name] = v
				}
			}
			out, err = dl.Update(ctx, res, matches[0], changes)
			return err
		default:
			return &ConflictError{Resource: res.Name, Keys: keyAttrs, Matches: len(matches)}
		}
	})
	if err != nil {
		return resource.Record{}, err
	}
	return out, nil
}
