// Package migrate applies ordered schema migrations through a
// duckdialect.Driver.
//
// Migrations are named, and names order them lexicographically. They come
// from SQL scripts on a filesystem (DirSource), from raw SQL (FromSQL), or
// from Go functions registered at init time (Register). The migrator
// records applied names in a bookkeeping table and runs each pending
// migration in its own transaction:
//
//	drv, err := duckdb.Open(duckdb.WithPath("app.db"))
//	// ...
//	m := migrate.New(drv, migrate.DirSource(migrationsFS, "migrations"))
//	if _, err := m.Up(ctx); err != nil {
//		// ...
//	}
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/oorabona/duckdialect"
	"github.com/oorabona/duckdialect/duckdb"
)

// DefaultTable is the bookkeeping table migrations are recorded in.
const DefaultTable = "schema_migrations"

var (
	// ErrOutOfOrder is returned by Up when a pending migration sorts before
	// one that is already applied and out-of-order application is off.
	ErrOutOfOrder = errors.New("migrate: out-of-order migration")
	// ErrIrreversible is returned when rolling back a migration that has no
	// Down function.
	ErrIrreversible = errors.New("migrate: migration is irreversible")
)

// AppliedMigration is one row of the bookkeeping table.
type AppliedMigration struct {
	Name      string
	AppliedAt time.Time
}

// MigrationStatus pairs a known migration with its applied state.
type MigrationStatus struct {
	Name       string
	Applied    bool
	AppliedAt  time.Time // zero unless Applied
	Reversible bool
}

// Migrator runs migrations from a Source against a driver.
type Migrator struct {
	drv duckdialect.Driver
	src Source

	table           string
	log             *slog.Logger
	allowOutOfOrder bool
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithTable overrides the bookkeeping table name.
func WithTable(name string) Option {
	return func(m *Migrator) { m.table = name }
}

// WithLogger sets the logger applied and rolled-back migrations are
// reported to. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Migrator) { m.log = l }
}

// WithAllowOutOfOrder lets Up apply pending migrations that sort before
// already-applied ones instead of failing with ErrOutOfOrder. Needed when
// parallel branches merge migrations with interleaved names.
func WithAllowOutOfOrder() Option {
	return func(m *Migrator) { m.allowOutOfOrder = true }
}

// New returns a Migrator reading migrations from src and applying them
// through drv.
func New(drv duckdialect.Driver, src Source, opts ...Option) *Migrator {
	m := &Migrator{drv: drv, src: src, table: DefaultTable, log: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies every pending migration in name order and reports how many
// ran. On failure the failing migration is rolled back; migrations applied
// earlier in the run stay applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	return m.up(ctx, "")
}

// UpTo applies pending migrations up to and including the named one.
func (m *Migrator) UpTo(ctx context.Context, name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("migrate: empty target name")
	}
	return m.up(ctx, name)
}

func (m *Migrator) up(ctx context.Context, target string) (int, error) {
	all, err := m.load()
	if err != nil {
		return 0, err
	}
	if target != "" && findMigration(all, target) == nil {
		return 0, fmt.Errorf("migrate: unknown migration %q", target)
	}
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	records, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}
	done := make(map[string]bool, len(records))
	var last string
	for _, rec := range records {
		done[rec.Name] = true
		if rec.Name > last {
			last = rec.Name
		}
	}
	var pending []*Migration
	for _, mg := range all {
		if done[mg.Name] {
			continue
		}
		if target != "" && mg.Name > target {
			break
		}
		if !m.allowOutOfOrder && mg.Name < last {
			return 0, fmt.Errorf("migrate: %s sorts before applied %s: %w", mg.Name, last, ErrOutOfOrder)
		}
		pending = append(pending, mg)
	}
	for n, mg := range pending {
		if err := m.apply(ctx, mg); err != nil {
			return n, err
		}
	}
	return len(pending), nil
}

// Down rolls back the most recently applied migration. It reports the
// number rolled back: one, or zero when nothing is applied.
func (m *Migrator) Down(ctx context.Context) (int, error) {
	return m.down(ctx, "", 1)
}

// DownTo rolls back applied migrations, newest first, until the named
// migration is the newest one left. An empty name rolls back everything.
func (m *Migrator) DownTo(ctx context.Context, name string) (int, error) {
	return m.down(ctx, name, -1)
}

func (m *Migrator) down(ctx context.Context, target string, limit int) (int, error) {
	all, err := m.load()
	if err != nil {
		return 0, err
	}
	if target != "" && findMigration(all, target) == nil {
		return 0, fmt.Errorf("migrate: unknown migration %q", target)
	}
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	records, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if target != "" && rec.Name <= target {
			break
		}
		if limit >= 0 && count >= limit {
			break
		}
		mg := findMigration(all, rec.Name)
		if mg == nil {
			return count, fmt.Errorf("migrate: applied migration %q not found in source", rec.Name)
		}
		if err := m.revert(ctx, mg); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Status reports every known and recorded migration in name order,
// including records whose source migration has disappeared.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	all, err := m.load()
	if err != nil {
		return nil, err
	}
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	records, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	applied := make(map[string]time.Time, len(records))
	for _, rec := range records {
		applied[rec.Name] = rec.AppliedAt
	}
	out := make([]MigrationStatus, 0, len(all))
	for _, mg := range all {
		st := MigrationStatus{Name: mg.Name, Reversible: mg.Down != nil}
		if at, ok := applied[mg.Name]; ok {
			st.Applied = true
			st.AppliedAt = at
			delete(applied, mg.Name)
		}
		out = append(out, st)
	}
	for name, at := range applied {
		out = append(out, MigrationStatus{Name: name, Applied: true, AppliedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Pending returns the migrations Up would run, in order.
func (m *Migrator) Pending(ctx context.Context) ([]*Migration, error) {
	all, err := m.load()
	if err != nil {
		return nil, err
	}
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	records, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(records))
	for _, rec := range records {
		done[rec.Name] = true
	}
	var out []*Migration
	for _, mg := range all {
		if !done[mg.Name] {
			out = append(out, mg)
		}
	}
	return out, nil
}

// Applied returns the recorded migrations, ordered by name.
func (m *Migrator) Applied(ctx context.Context) ([]AppliedMigration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	return m.applied(ctx)
}

func (m *Migrator) load() ([]*Migration, error) {
	ms, err := m.src.Migrations()
	if err != nil {
		return nil, err
	}
	sorted := make([]*Migration, 0, len(ms))
	for _, mg := range ms {
		switch {
		case mg == nil:
			return nil, fmt.Errorf("migrate: nil migration in source")
		case mg.Name == "":
			return nil, fmt.Errorf("migrate: migration with empty name")
		case mg.Up == nil:
			return nil, fmt.Errorf("migrate: %s: missing Up", mg.Name)
		}
		sorted = append(sorted, mg)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Name == sorted[i].Name {
			return nil, fmt.Errorf("migrate: duplicate migration name %q", sorted[i].Name)
		}
	}
	return sorted, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (name VARCHAR PRIMARY KEY, applied_at TIMESTAMP NOT NULL)",
		duckdb.QuoteIdent(m.table),
	)
	if err := m.drv.Exec(ctx, ddl, []any{}, nil); err != nil {
		return fmt.Errorf("migrate: ensure %s: %w", m.table, err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) ([]AppliedMigration, error) {
	query := fmt.Sprintf("SELECT name, applied_at FROM %s ORDER BY name", duckdb.QuoteIdent(m.table))
	var rows duckdb.Rows
	if err := m.drv.Query(ctx, query, []any{}, &rows); err != nil {
		return nil, fmt.Errorf("migrate: read %s: %w", m.table, err)
	}
	defer rows.Close()
	records, err := duckdb.CollectRows(&rows)
	if err != nil {
		return nil, fmt.Errorf("migrate: read %s: %w", m.table, err)
	}
	out := make([]AppliedMigration, 0, len(records))
	for _, rec := range records {
		name, _ := rec["name"].(string)
		out = append(out, AppliedMigration{Name: name, AppliedAt: recordTime(rec["applied_at"])})
	}
	return out, nil
}

func (m *Migrator) apply(ctx context.Context, mg *Migration) error {
	start := time.Now()
	tx, err := m.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("migrate: begin %s: %w", mg.Name, err)
	}
	if err := mg.Up(ctx, tx); err != nil {
		return m.rollback(tx, fmt.Errorf("migrate: apply %s: %w", mg.Name, err))
	}
	record := fmt.Sprintf("INSERT INTO %s (name, applied_at) VALUES (?, ?)", duckdb.QuoteIdent(m.table))
	if err := tx.Exec(ctx, record, []any{mg.Name, time.Now().UTC()}, nil); err != nil {
		return m.rollback(tx, fmt.Errorf("migrate: record %s: %w", mg.Name, err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit %s: %w", mg.Name, err)
	}
	m.log.Info("migration applied", "name", mg.Name, "elapsed", time.Since(start))
	return nil
}

func (m *Migrator) revert(ctx context.Context, mg *Migration) error {
	if mg.Down == nil {
		return fmt.Errorf("migrate: %s: %w", mg.Name, ErrIrreversible)
	}
	start := time.Now()
	tx, err := m.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("migrate: begin %s: %w", mg.Name, err)
	}
	if err := mg.Down(ctx, tx); err != nil {
		return m.rollback(tx, fmt.Errorf("migrate: revert %s: %w", mg.Name, err))
	}
	del := fmt.Sprintf("DELETE FROM %s WHERE name = ?", duckdb.QuoteIdent(m.table))
	if err := tx.Exec(ctx, del, []any{mg.Name}, nil); err != nil {
		return m.rollback(tx, fmt.Errorf("migrate: unrecord %s: %w", mg.Name, err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit %s: %w", mg.Name, err)
	}
	m.log.Info("migration rolled back", "name", mg.Name, "elapsed", time.Since(start))
	return nil
}

func (m *Migrator) rollback(tx duckdialect.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		m.log.Error("migration rollback failed", "err", rerr)
		return errors.Join(err, rerr)
	}
	return err
}

func findMigration(ms []*Migration, name string) *Migration {
	for _, m := range ms {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// recordTime coerces an applied_at value scanned from the engine. DuckDB
// hands back time.Time; engines without a native timestamp hand back the
// stored text.
func recordTime(v any) time.Time {
	switch v := v.(type) {
	case time.Time:
		return v
	case string:
		for _, layout := range []string{
			time.RFC3339Nano,
			"2006-01-02 15:04:05.999999999-07:00",
			"2006-01-02 15:04:05.999999999",
			"2006-01-02 15:04:05",
		} {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
