// Package backend executes SQL pipelines against a database/sql engine and
// materialises each result as a named table.
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/zeebo/xxh3"

	"duck-link/internal/dialect"
	"duck-link/internal/domain"
	"duck-link/internal/pipeline"
)

// Compile-time check.
var _ domain.PipelineExecutor = (*Backend)(nil)

// Backend materialises pipeline results on one database. Results with
// identical SQL are shared between callers: every Execute returns its own
// handle and the table is dropped when the last handle is released.
type Backend struct {
	db      *sql.DB
	dialect dialect.Dialect
	logger  *slog.Logger

	mu     sync.Mutex
	cache  map[string]*stored // compiled SQL hash -> live table
	tables map[string]*stored // physical name -> live table
}

// stored is one physical table and the number of open handles on it.
type stored struct {
	physical string
	key      string
	external bool
	refs     int
	dropped  bool
}

// Open connects to the engine behind d. An empty dsn opens an in-memory
// database where the engine supports one.
func Open(ctx context.Context, d dialect.Dialect, dsn string, logger *slog.Logger) (*Backend, error) {
	var (
		db  *sql.DB
		err error
	)
	switch d {
	case dialect.DuckDB:
		db, err = sql.Open("duckdb", dsn)
	case dialect.SQLite:
		db, err = openSQLite(dsn)
	case dialect.Postgres:
		if dsn == "" {
			return nil, domain.ErrValidation("postgres backend requires a DSN")
		}
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, domain.ErrValidation("no database driver for dialect %q; generate SQL only", d.Name())
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name(), err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.Name(), err)
	}
	return New(db, d, logger), nil
}

// New wraps an open pool.
func New(db *sql.DB, d dialect.Dialect, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		db:      db,
		dialect: d,
		logger:  logger.With("backend", d.Name()),
		cache:   make(map[string]*stored),
		tables:  make(map[string]*stored),
	}
}

// Dialect returns the SQL profile of the engine.
func (b *Backend) Dialect() dialect.Dialect { return b.dialect }

// DB returns the underlying pool.
func (b *Backend) DB() *sql.DB { return b.db }

// Close releases every live table and closes the pool.
func (b *Backend) Close(ctx context.Context) error {
	releaseErr := b.ReleaseAll(ctx)
	if err := b.db.Close(); err != nil {
		return err
	}
	return releaseErr
}

// ExecContext runs a statement that produces no result table.
func (b *Backend) ExecContext(ctx context.Context, query string) error {
	_, err := b.db.ExecContext(ctx, query)
	return err
}

// physicalName derives a stable table name from the templated name and the
// SQL that fills it.
func physicalName(templated, key string) string {
	return templated + "_" + key[:9]
}

func hashSQL(sql string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(sql))
}

// Execute compiles steps into one statement and materialises its result.
// Inputs are addressable inside the steps by their templated names.
func (b *Backend) Execute(ctx context.Context, steps []domain.SQLStep, inputs ...domain.ResultTable) (domain.ResultTable, error) {
	mapped := make([]pipeline.Input, len(inputs))
	for i, in := range inputs {
		mapped[i] = pipeline.Input{TemplatedName: in.TemplatedName(), PhysicalName: in.PhysicalName()}
	}
	query, output, err := pipeline.Compile(steps, mapped...)
	if err != nil {
		return nil, err
	}
	key := hashSQL(query)

	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.cache[key]; ok {
		st.refs++
		b.logger.Debug("reusing cached result", "table", st.physical, "refs", st.refs)
		return &Table{backend: b, templated: output, st: st}, nil
	}

	phys := physicalName(output, key)
	b.logger.Debug("materialising pipeline", "table", phys, "steps", len(steps))
	if _, err := b.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+phys); err != nil {
		return nil, fmt.Errorf("drop stale %s: %w", phys, err)
	}
	if _, err := b.db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s AS %s", phys, query)); err != nil {
		return nil, fmt.Errorf("materialise %s: %w", output, err)
	}

	st := &stored{physical: phys, key: key, refs: 1}
	b.cache[key] = st
	b.tables[phys] = st
	return &Table{backend: b, templated: output, st: st}, nil
}

// RegisterTable exposes an existing table as a pipeline input under its own name.
// Releasing it does not drop it.
func (b *Backend) RegisterTable(name string) domain.ResultTable {
	return &Table{backend: b, templated: name, st: &stored{physical: name, external: true, refs: 1}}
}

// RegisterQuery materialises query as table name and returns it as an input.
func (b *Backend) RegisterQuery(ctx context.Context, name, query string) (domain.ResultTable, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return nil, fmt.Errorf("drop stale %s: %w", name, err)
	}
	if _, err := b.db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s AS %s", name, query)); err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	st := &stored{physical: name, refs: 1}
	b.tables[name] = st
	return &Table{backend: b, templated: name, st: st}, nil
}

// LiveTables lists the physical names of tables not yet released.
func (b *Backend) LiveTables() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.tables))
	for name := range b.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ReleaseAll drops every live table the backend created, whatever handles
// remain open on them.
func (b *Backend) ReleaseAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for _, st := range b.tables {
		if err := b.drop(ctx, st); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// drop removes st from the backend and the database. Callers hold b.mu.
func (b *Backend) drop(ctx context.Context, st *stored) error {
	st.dropped = true
	delete(b.tables, st.physical)
	if st.key != "" && b.cache[st.key] == st {
		delete(b.cache, st.key)
	}
	if st.external {
		return nil
	}
	if _, err := b.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+st.physical); err != nil {
		return fmt.Errorf("drop %s: %w", st.physical, err)
	}
	b.logger.Debug("released table", "table", st.physical)
	return nil
}

// Table is one caller's handle on a materialised result.
type Table struct {
	backend   *Backend
	templated string
	st        *stored
	released  bool
}

// TemplatedName is the name steps use to reference the table.
func (t *Table) TemplatedName() string { return t.templated }

// PhysicalName is the table's name in the database.
func (t *Table) PhysicalName() string { return t.st.physical }

// Records reads every row of the table.
func (t *Table) Records(ctx context.Context) ([]domain.Record, error) {
	t.backend.mu.Lock()
	gone := t.released || t.st.dropped
	t.backend.mu.Unlock()
	if gone {
		return nil, domain.ErrNotFound("table %q was released", t.st.physical)
	}

	rows, err := t.backend.db.QueryContext(ctx, "SELECT * FROM "+t.st.physical)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.st.physical, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []domain.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.st.physical, err)
		}
		rec := make(domain.Record, len(cols))
		for i, c := range cols {
			rec[c] = vals[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Release closes the handle. The table is dropped and evicted from the cache
// once no other handle holds it. Releasing a handle twice fails.
func (t *Table) Release(ctx context.Context) error {
	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.released {
		return domain.ErrNotFound("table %q was already released", t.st.physical)
	}
	t.released = true
	if t.st.dropped {
		return nil
	}
	t.st.refs--
	if t.st.refs > 0 {
		return nil
	}
	return b.drop(ctx, t.st)
}
