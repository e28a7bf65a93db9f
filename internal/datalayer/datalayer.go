package datalayer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/stratumdb/stratum/internal/query"
	"github.com/stratumdb/stratum/internal/resource"
	"github.com/stratumdb/stratum/internal/store"
)

// DataLayer is resource persistence over one storage engine. Construct
// with New, register resources, then run queries and mutations.
//
// Thread-safety: the registry is guarded; operational concurrency is
// whatever the engine's transaction manager provides. Operations are
// synchronous on the caller's goroutine — there is no worker pool here.
type DataLayer struct {
	engine store.Engine
	log    *slog.Logger
	tokens TokenGenerator

	mu        sync.RWMutex
	resources map[string]*resource.Resource
	tables    map[string]string // resource name -> resolved table
}

// Option configures a DataLayer at construction.
type Option func(*DataLayer)

// WithLogger routes the layer's logging through log instead of
// slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(dl *DataLayer) {
		dl.log = log
	}
}

// WithTokens sets the transaction token generator. Tests pass a
// FixedGenerator to keep log output and golden traces deterministic.
func WithTokens(gen TokenGenerator) Option {
	return func(dl *DataLayer) {
		dl.tokens = gen
	}
}

// New creates a DataLayer on top of engine.
func New(engine store.Engine, opts ...Option) *DataLayer {
	dl := &DataLayer{
		engine:    engine,
		log:       slog.Default(),
		tokens:    UUIDv7Generator{},
		resources: make(map[string]*resource.Resource),
		tables:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(dl)
	}
	return dl
}

// Engine returns the backing storage engine.
func (dl *DataLayer) Engine() store.Engine {
	return dl.engine
}

// Register validates each resource schema, resolves its table name once,
// and creates the backing table. Registering a name twice is an error;
// nothing from a failed batch is rolled back, so register at startup and
// treat failure as fatal.
func (dl *DataLayer) Register(resources ...*resource.Resource) error {
	for _, res := range resources {
		if err := res.Validate(); err != nil {
			return fmt.Errorf("register resource: %w", err)
		}

		dl.mu.Lock()
		if _, exists := dl.resources[res.Name]; exists {
			dl.mu.Unlock()
			return fmt.Errorf("resource %q is already registered", res.Name)
		}
		table := res.TableName()
		dl.resources[res.Name] = res
		dl.tables[res.Name] = table
		dl.mu.Unlock()

		if err := dl.engine.CreateTable(table); err != nil {
			return fmt.Errorf("register resource %q: %w", res.Name, err)
		}
		dl.log.Debug("resource registered",
			"resource", res.Name,
			"table", table,
			"attributes", len(res.Attributes),
		)
	}
	return nil
}

// Resource looks up a registered resource by name.
func (dl *DataLayer) Resource(name string) (*resource.Resource, bool) {
	dl.mu.RLock()
	defer dl.mu.RUnlock()
	res, ok := dl.resources[name]
	return res, ok
}

// Resources returns the registered resource names in sorted order.
func (dl *DataLayer) Resources() []string {
	dl.mu.RLock()
	defer dl.mu.RUnlock()
	names := make([]string, 0, len(dl.resources))
	for name := range dl.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Table returns the resolved table name for a registered resource.
func (dl *DataLayer) Table(name string) (string, bool) {
	dl.mu.RLock()
	defer dl.mu.RUnlock()
	table, ok := dl.tables[name]
	return table, ok
}

// NewQuery starts a match-all query descriptor for a registered resource.
func (dl *DataLayer) NewQuery(name string) (query.Query, error) {
	res, ok := dl.Resource(name)
	if !ok {
		return query.Query{}, &UnknownResourceError{Name: name}
	}
	return query.New(res), nil
}

// tableFor resolves the table for a resource the operation was handed,
// insisting it is the registered one.
func (dl *DataLayer) tableFor(res *resource.Resource) (string, error) {
	if res == nil {
		return "", fmt.Errorf("operation has no resource")
	}
	table, ok := dl.Table(res.Name)
	if !ok {
		return "", &UnknownResourceError{Name: res.Name}
	}
	return table, nil
}

// logWith returns the layer logger, tagged with the ambient transaction
// token when there is one.
func (dl *DataLayer) logWith(ctx context.Context) *slog.Logger {
	if st, ok := txFrom(ctx); ok {
		return dl.log.With("txn", st.token)
	}
	return dl.log
}
