// Package db is the local store of the life-management app: a fixed set
// of named collections on top of a storage engine, seeded with sample data
// on first open, with whole-dataset export and import.
//
// A DB opens its engine lazily. Every operation first waits for
// initialization to complete, so callers never see an engine whose
// collections are missing or only partly seeded.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stevemurr/lifeos/metrics"
	"github.com/stevemurr/lifeos/store"
)

// DB is safe for concurrent use. Create one per process and pass it to
// whatever needs it.
type DB struct {
	open   func() (store.Store, error)
	engine store.Store
	ready  atomic.Bool
	group  singleflight.Group

	// Writers share the lock; ExportAllData holds it exclusively so a
	// snapshot never interleaves with a write.
	mu sync.RWMutex

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a DB.
type Option func(*DB)

func WithLogger(l *slog.Logger) Option {
	return func(d *DB) { d.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *DB) { d.metrics = m }
}

// WithClock overrides the clock used to stamp exports.
func WithClock(now func() time.Time) Option {
	return func(d *DB) { d.now = now }
}

// New returns a DB that opens the engine described by cfg on first use.
func New(cfg store.Config, opts ...Option) *DB {
	return newDB(func() (store.Store, error) { return store.New(cfg) }, opts)
}

// NewWithEngine returns a DB over an already opened engine.
func NewWithEngine(engine store.Store, opts ...Option) *DB {
	return newDB(func() (store.Store, error) { return engine, nil }, opts)
}

func newDB(open func() (store.Store, error), opts []Option) *DB {
	d := &DB{open: open, now: time.Now}
	for _, o := range opts {
		o(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Init opens the engine, applies pending schema upgrades and seeds empty
// collections. It is idempotent; concurrent callers share one run and
// receive its result. A failed run is retried by the next call.
//
// The first caller's context governs the shared run.
func (d *DB) Init(ctx context.Context) error {
	if d.ready.Load() {
		return nil
	}
	_, err, _ := d.group.Do("init", func() (any, error) {
		if d.ready.Load() {
			return nil, nil
		}
		return nil, d.initialize(ctx)
	})
	return err
}

func (d *DB) initialize(ctx context.Context) error {
	start := time.Now()
	if d.engine == nil {
		engine, err := d.open()
		if err != nil {
			d.logger.Error("failed to open storage engine", "err", err)
			return fmt.Errorf("%w: open engine: %w", ErrInitialization, err)
		}
		d.engine = engine
	}
	if err := d.upgrade(ctx); err != nil {
		d.logger.Error("schema upgrade failed", "err", err)
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	if err := d.seed(ctx); err != nil {
		d.logger.Error("seeding failed", "err", err)
		return fmt.Errorf("%w: seed: %w", ErrInitialization, err)
	}
	d.ready.Store(true)
	d.logger.Info("store ready", "schema_version", CurrentSchemaVersion, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// Close releases the engine. The DB must not be used afterwards.
func (d *DB) Close() error {
	if d.engine == nil {
		return nil
	}
	return d.engine.Close()
}

func (d *DB) prepare(ctx context.Context, collection string) error {
	if !knownCollection(collection) {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	return d.Init(ctx)
}

func (d *DB) done(op string, err error) error {
	d.metrics.StoreOp(op, err)
	return classify(op, err)
}

// GetAll returns every record of a collection in insertion order. An empty
// collection yields an empty, non-nil slice.
func (d *DB) GetAll(ctx context.Context, collection string) ([]map[string]any, error) {
	if err := d.prepare(ctx, collection); err != nil {
		return nil, d.done("getAll", err)
	}
	records, err := d.getAll(ctx, collection)
	return records, d.done("getAll", err)
}

func (d *DB) getAll(ctx context.Context, collection string) ([]map[string]any, error) {
	entries, err := d.engine.GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	records := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		records = append(records, e.Data)
	}
	return records, nil
}

// Get returns the record stored under key, or nil if there is none.
func (d *DB) Get(ctx context.Context, collection, key string) (map[string]any, error) {
	if err := d.prepare(ctx, collection); err != nil {
		return nil, d.done("get", err)
	}
	doc, err := d.engine.Get(ctx, collection, key)
	return doc, d.done("get", err)
}

// Save upserts one record by its key. The record shape is not checked.
func (d *DB) Save(ctx context.Context, collection string, record map[string]any) error {
	return d.SaveAll(ctx, collection, []map[string]any{record})
}

// SaveAll upserts records in a single transaction. On error none of them
// should be assumed written.
func (d *DB) SaveAll(ctx context.Context, collection string, records []map[string]any) error {
	op := "saveAll"
	if len(records) == 1 {
		op = "save"
	}
	if err := d.prepare(ctx, collection); err != nil {
		return d.done(op, err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.done(op, d.putAll(ctx, collection, records))
}

func (d *DB) putAll(ctx context.Context, collection string, records []map[string]any) error {
	entries := make([]store.Entry, 0, len(records))
	for _, r := range records {
		key, err := keyOf(collection, r)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransactionFailure, err)
		}
		entries = append(entries, store.Entry{Key: key, Data: r})
	}
	return d.engine.PutAll(ctx, collection, entries)
}

// Delete removes the record with key. A missing key is not an error.
func (d *DB) Delete(ctx context.Context, collection, key string) error {
	if err := d.prepare(ctx, collection); err != nil {
		return d.done("delete", err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, err := d.engine.Delete(ctx, collection, key)
	return d.done("delete", err)
}

// Count returns the number of records in a collection.
func (d *DB) Count(ctx context.Context, collection string) (int, error) {
	if err := d.prepare(ctx, collection); err != nil {
		return 0, d.done("count", err)
	}
	n, err := d.engine.Count(ctx, collection)
	return n, d.done("count", err)
}

// GetSetting returns the value stored under key, or nil if it was never set.
func (d *DB) GetSetting(ctx context.Context, key string) (any, error) {
	if err := d.prepare(ctx, Settings); err != nil {
		return nil, d.done("getSetting", err)
	}
	v, err := d.getSetting(ctx, key)
	return v, d.done("getSetting", err)
}

func (d *DB) getSetting(ctx context.Context, key string) (any, error) {
	doc, err := d.engine.Get(ctx, Settings, key)
	if err != nil || doc == nil {
		return nil, err
	}
	return doc["value"], nil
}

// SetSetting creates or overwrites a setting.
func (d *DB) SetSetting(ctx context.Context, key string, value any) error {
	if err := d.prepare(ctx, Settings); err != nil {
		return d.done("setSetting", err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	err := d.engine.Put(ctx, Settings, key, map[string]any{"key": key, "value": value})
	return d.done("setSetting", err)
}
