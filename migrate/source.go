package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/oorabona/duckdialect"
	"github.com/oorabona/duckdialect/duckdb"
)

// Apply is a single migration direction, executed on the transaction the
// migration runs in.
type Apply func(ctx context.Context, conn duckdialect.ExecQuerier) error

// Migration is one named schema change. Names order migrations
// lexicographically, so sources conventionally use a sortable prefix
// ("0001_users", "20240301093000_pets"). A nil Down marks the migration
// irreversible.
type Migration struct {
	Name string
	Up   Apply
	Down Apply
}

// Source yields migrations to run. The migrator sorts and validates the
// result, so implementations may return them in any order.
type Source interface {
	Migrations() ([]*Migration, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() ([]*Migration, error)

// Migrations returns f().
func (f SourceFunc) Migrations() ([]*Migration, error) { return f() }

// FromSQL builds a migration from raw SQL scripts. Each script is split
// into statements on semicolons outside literals and comments, and the
// statements run in order. An empty downSQL marks the migration
// irreversible.
func FromSQL(name, upSQL, downSQL string) (*Migration, error) {
	if name == "" {
		return nil, fmt.Errorf("migrate: migration name is empty")
	}
	up := duckdb.SplitStatements(upSQL)
	if len(up) == 0 {
		return nil, fmt.Errorf("migrate: %s: no statements in Up script", name)
	}
	m := &Migration{Name: name, Up: execAll(up)}
	if down := duckdb.SplitStatements(downSQL); len(down) > 0 {
		m.Down = execAll(down)
	}
	return m, nil
}

func execAll(statements []string) Apply {
	return func(ctx context.Context, conn duckdialect.ExecQuerier) error {
		for _, stmt := range statements {
			if err := conn.Exec(ctx, stmt, []any{}, nil); err != nil {
				return err
			}
		}
		return nil
	}
}

const directivePrefix = "-- +migrate"

// ParseSQL parses a .sql migration script into a Migration. Directive
// comments split the script into sections:
//
//	-- +migrate Up
//	CREATE TABLE pets (id BIGINT);
//	-- +migrate Down
//	DROP TABLE pets;
//
// A script without directives is one big Up section. A missing or empty
// Down section marks the migration irreversible.
func ParseSQL(name, script string) (*Migration, error) {
	up, down, err := splitSections(script)
	if err != nil {
		return nil, fmt.Errorf("migrate: %s: %w", name, err)
	}
	return FromSQL(name, up, down)
}

func splitSections(script string) (up, down string, err error) {
	// Section 0 collects lines seen before the first directive; only
	// comments and blank lines may live there.
	var bufs [3]strings.Builder
	section := 0
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, directivePrefix); ok {
			switch strings.TrimSpace(rest) {
			case "Up":
				section = 1
			case "Down":
				section = 2
			default:
				return "", "", fmt.Errorf("unknown directive %q", trimmed)
			}
			continue
		}
		bufs[section].WriteString(line)
		bufs[section].WriteByte('\n')
	}
	if section == 0 {
		return bufs[0].String(), "", nil
	}
	if len(duckdb.SplitStatements(bufs[0].String())) > 0 {
		return "", "", fmt.Errorf("statements before the first %q directive", directivePrefix+" Up")
	}
	return bufs[1].String(), bufs[2].String(), nil
}

// DirSource loads *.sql migration scripts found directly under root inside
// fsys, one migration per file, named after the file without its extension.
// It works with embed.FS as well as os.DirFS, so migrations can ship inside
// the binary or live on disk during development.
func DirSource(fsys fs.FS, root string) Source {
	return &dirSource{fsys: fsys, root: root}
}

type dirSource struct {
	fsys fs.FS
	root string
}

func (d *dirSource) Migrations() ([]*Migration, error) {
	root := d.root
	if root == "" {
		root = "."
	}
	entries, err := fs.ReadDir(d.fsys, root)
	if err != nil {
		return nil, fmt.Errorf("migrate: read migrations dir: %w", err)
	}
	var out []*Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		b, err := fs.ReadFile(d.fsys, path.Join(root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("migrate: read migration %s: %w", entry.Name(), err)
		}
		m, err := ParseSQL(strings.TrimSuffix(entry.Name(), ".sql"), string(b))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

var (
	registryMu sync.Mutex
	registry   []*Migration
)

// Register adds migrations to the process-wide registry, typically from an
// init function in the package that owns the schema. Registered exposes
// them as a Source.
func Register(ms ...*Migration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, ms...)
}

// Registered returns a Source over all migrations added with Register.
func Registered() Source {
	return SourceFunc(func() ([]*Migration, error) {
		registryMu.Lock()
		defer registryMu.Unlock()
		return append([]*Migration(nil), registry...), nil
	})
}

// Merge combines several sources into one. Name collisions across sources
// surface when the migrator loads them.
func Merge(sources ...Source) Source {
	return SourceFunc(func() ([]*Migration, error) {
		var out []*Migration
		for _, src := range sources {
			ms, err := src.Migrations()
			if err != nil {
				return nil, err
			}
			out = append(out, ms...)
		}
		return out, nil
	})
}
