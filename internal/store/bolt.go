package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/stratumdb/stratum/internal/resource"
)

// Bolt is the bbolt-backed engine. One bucket per table; each row is the
// canonical JSON encoding of its attribute map. bbolt keeps bucket keys
// byte-sorted, so Scan's ordering guarantee falls out of the cursor walk.
type Bolt struct {
	db   *bolt.DB
	path string
}

// OpenBolt creates or opens a bbolt database file at path, creating
// parent directories as needed.
func OpenBolt(path string) (*Bolt, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	db, err := bolt.Open(path, 0o666, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	return &Bolt{db: db, path: path}, nil
}

func (b *Bolt) Name() string { return "bolt" }

func (b *Bolt) CreateTable(table string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(table))
		return err
	})
	if err != nil {
		return fmt.Errorf("create table %q: %w", table, err)
	}
	return nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

// Transaction wraps bbolt's Update: fn's error aborts, and a panic inside
// fn rolls back before propagating.
func (b *Bolt) Transaction(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(btx *bolt.Tx) error {
		return fn(&boltTx{tx: btx})
	})
}

type boltTx struct {
	tx *bolt.Tx
}

var _ Tx = (*boltTx)(nil)

func (t *boltTx) bucket(table string) (*bolt.Bucket, error) {
	b := t.tx.Bucket([]byte(table))
	if b == nil {
		return nil, ErrTableNotFound
	}
	return b, nil
}

func (t *boltTx) Read(table string, key resource.Key) (Attrs, error) {
	b, err := t.bucket(table)
	if err != nil {
		return nil, err
	}
	data := b.Get([]byte(key))
	if data == nil {
		return nil, ErrKeyNotFound
	}
	return decodeAttrs(data)
}

func (t *boltTx) Write(table string, key resource.Key, attrs Attrs) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	data, err := encodeAttrs(attrs)
	if err != nil {
		return err
	}
	if err := b.Put([]byte(key), data); err != nil {
		return fmt.Errorf("write %s/%s: %w", table, key, err)
	}
	return nil
}

func (t *boltTx) Delete(table string, key resource.Key) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	// bbolt's Delete is already a no-op for absent keys.
	if err := b.Delete([]byte(key)); err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, key, err)
	}
	return nil
}

func (t *boltTx) Scan(table string) ([]Row, error) {
	b, err := t.bucket(table)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0)
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		attrs, err := decodeAttrs(v)
		if err != nil {
			return nil, fmt.Errorf("scan %s at key %s: %w", table, k, err)
		}
		rows = append(rows, Row{Key: resource.Key(k), Attrs: attrs})
	}
	return rows, nil
}
