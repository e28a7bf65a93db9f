package store

import (
	"context"
	"sort"
	"sync"

	"github.com/stratumdb/stratum/internal/resource"
)

// Memory is the in-process engine: tables are maps, transactions are a
// write/delete overlay applied on commit. A single mutex is the whole
// transaction manager — transactions serialize, which is exactly the
// isolation the contract asks for and all a caller-thread-synchronous
// layer needs.
type Memory struct {
	mu     sync.Mutex
	tables map[string]map[resource.Key]Attrs
}

// OpenMemory returns an empty in-memory engine.
func OpenMemory() *Memory {
	return &Memory{tables: make(map[string]map[resource.Key]Attrs)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) CreateTable(table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		m.tables[table] = make(map[resource.Key]Attrs)
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// Transaction holds the engine lock for fn's whole run. The overlay is
// only folded into the base maps when fn returns nil; an error return or
// a panic discards it untouched.
func (m *Memory) Transaction(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		eng:     m,
		writes:  make(map[string]map[resource.Key]Attrs),
		deletes: make(map[string]map[resource.Key]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	eng     *Memory
	writes  map[string]map[resource.Key]Attrs
	deletes map[string]map[resource.Key]bool
}

var _ Tx = (*memTx)(nil)

func (t *memTx) Read(table string, key resource.Key) (Attrs, error) {
	base, ok := t.eng.tables[table]
	if !ok {
		return nil, ErrTableNotFound
	}
	if t.deletes[table][key] {
		return nil, ErrKeyNotFound
	}
	if attrs, ok := t.writes[table][key]; ok {
		return copyAttrs(attrs), nil
	}
	attrs, ok := base[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return copyAttrs(attrs), nil
}

func (t *memTx) Write(table string, key resource.Key, attrs Attrs) error {
	if _, ok := t.eng.tables[table]; !ok {
		return ErrTableNotFound
	}
	if t.writes[table] == nil {
		t.writes[table] = make(map[resource.Key]Attrs)
	}
	t.writes[table][key] = copyAttrs(attrs)
	delete(t.deletes[table], key)
	return nil
}

func (t *memTx) Delete(table string, key resource.Key) error {
	if _, ok := t.eng.tables[table]; !ok {
		return ErrTableNotFound
	}
	if t.deletes[table] == nil {
		t.deletes[table] = make(map[resource.Key]bool)
	}
	t.deletes[table][key] = true
	delete(t.writes[table], key)
	return nil
}

func (t *memTx) Scan(table string) ([]Row, error) {
	base, ok := t.eng.tables[table]
	if !ok {
		return nil, ErrTableNotFound
	}

	merged := make(map[resource.Key]Attrs, len(base)+len(t.writes[table]))
	for key, attrs := range base {
		if t.deletes[table][key] {
			continue
		}
		merged[key] = attrs
	}
	for key, attrs := range t.writes[table] {
		merged[key] = attrs
	}

	keys := make([]resource.Key, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	rows := make([]Row, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, Row{Key: key, Attrs: copyAttrs(merged[key])})
	}
	return rows, nil
}

func (t *memTx) commit() {
	for table, keys := range t.deletes {
		for key := range keys {
			delete(t.eng.tables[table], key)
		}
	}
	for table, rows := range t.writes {
		for key, attrs := range rows {
			t.eng.tables[table][key] = attrs
		}
	}
}

// copyAttrs guards the engine's maps against caller aliasing. Attribute
// values are scalars, so a shallow map copy is a full copy.
func copyAttrs(attrs Attrs) Attrs {
	out := make(Attrs, len(attrs))
	for name, v := range attrs {
		out[name] = v
	}
	return out
}
