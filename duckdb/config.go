package duckdb

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries everything Open needs: the database location, engine
// settings, extensions to install, table mappings to materialize and
// connection pool limits. The zero value opens an in-memory database;
// options adjust individual fields.
type Config struct {
	// Path locates the database file. Empty means a private in-memory
	// database that vanishes on Close.
	Path string

	// ReadOnly opens the database in read-only access mode. The database
	// file must exist.
	ReadOnly bool

	// Settings are engine configuration options passed through the DSN,
	// such as "memory_limit" or "threads".
	Settings map[string]string

	// Extensions are installed and loaded during bootstrap, in order.
	Extensions []string

	// AutoloadKnown lets the engine install and load known extensions on
	// first use instead of requiring explicit INSTALL statements.
	AutoloadKnown bool

	// TableMappings exposes external data under table names. Each entry
	// becomes a view: the key is the view name, the value a table
	// expression such as "read_json_auto('people.json')".
	TableMappings map[string]string

	// MappingsFile points to a YAML file whose mappings are merged into
	// TableMappings during Open. Explicit entries win on conflict.
	MappingsFile string

	// BootQueries run verbatim after extensions and mappings are set up.
	BootQueries []string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func defaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Option configures Open.
type Option func(*Config)

// WithPath sets the database file. An empty path means in-memory.
func WithPath(path string) Option {
	return func(c *Config) { c.Path = path }
}

// WithReadOnly opens the database in read-only access mode.
func WithReadOnly() Option {
	return func(c *Config) { c.ReadOnly = true }
}

// WithSetting passes one engine configuration option through the DSN.
func WithSetting(name, value string) Option {
	return func(c *Config) {
		if c.Settings == nil {
			c.Settings = make(map[string]string)
		}
		c.Settings[name] = value
	}
}

// WithSettings merges engine configuration options into the config.
func WithSettings(settings map[string]string) Option {
	return func(c *Config) {
		for k, v := range settings {
			WithSetting(k, v)(c)
		}
	}
}

// WithExtensions appends extensions to install and load during bootstrap.
func WithExtensions(names ...string) Option {
	return func(c *Config) { c.Extensions = append(c.Extensions, names...) }
}

// WithAutoloadKnownExtensions lets the engine fetch known extensions on
// first use.
func WithAutoloadKnownExtensions() Option {
	return func(c *Config) { c.AutoloadKnown = true }
}

// WithTableMapping exposes a table expression under a view name, e.g.
//
//	duckdb.WithTableMapping("trips", "read_parquet('trips/*.parquet')")
func WithTableMapping(name, tableExpr string) Option {
	return func(c *Config) {
		if c.TableMappings == nil {
			c.TableMappings = make(map[string]string)
		}
		c.TableMappings[name] = tableExpr
	}
}

// WithTableMappings merges table mappings into the config.
func WithTableMappings(mappings map[string]string) Option {
	return func(c *Config) {
		for k, v := range mappings {
			WithTableMapping(k, v)(c)
		}
	}
}

// WithMappingsFile loads additional table mappings from a YAML file during
// Open. Mappings given through options take precedence.
func WithMappingsFile(path string) Option {
	return func(c *Config) { c.MappingsFile = path }
}

// WithBootQueries appends statements to run at the end of bootstrap.
func WithBootQueries(queries ...string) Option {
	return func(c *Config) { c.BootQueries = append(c.BootQueries, queries...) }
}

// WithPool sets connection pool limits.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) Option {
	return func(c *Config) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
		c.ConnMaxLifetime = lifetime
	}
}

// DSN renders the data source name for the bindings: the database path,
// plus access mode and engine settings as query parameters.
func (c Config) DSN() string {
	if !c.ReadOnly && len(c.Settings) == 0 {
		return c.Path
	}
	v := url.Values{}
	if c.ReadOnly {
		v.Set("access_mode", "read_only")
	}
	for _, k := range sortedKeys(c.Settings) {
		v.Set(k, c.Settings[k])
	}
	return c.Path + "?" + v.Encode()
}

func (c Config) validate() error {
	for k := range c.Settings {
		if !isValidIdentifier(k) {
			return fmt.Errorf("duckdb: invalid setting name %q", k)
		}
	}
	for _, e := range c.Extensions {
		if !isValidIdentifier(e) {
			return fmt.Errorf("duckdb: invalid extension name %q", e)
		}
	}
	for name, expr := range c.TableMappings {
		if !isValidIdentifier(name) {
			return fmt.Errorf("duckdb: invalid table mapping name %q", name)
		}
		if expr == "" {
			return fmt.Errorf("duckdb: table mapping %q has an empty expression", name)
		}
	}
	return nil
}

// mappingsDoc is the YAML shape accepted by LoadMappings:
//
//	tables:
//	  people: read_json_auto('people.json')
//	  trips: read_parquet('trips/*.parquet')
type mappingsDoc struct {
	Tables map[string]string `yaml:"tables"`
}

// LoadMappings reads table mappings from YAML.
func LoadMappings(r io.Reader) (map[string]string, error) {
	var doc mappingsDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("duckdb: load table mappings: %w", err)
	}
	for name, expr := range doc.Tables {
		if !isValidIdentifier(name) {
			return nil, fmt.Errorf("duckdb: load table mappings: invalid table name %q", name)
		}
		if expr == "" {
			return nil, fmt.Errorf("duckdb: load table mappings: table %q has an empty expression", name)
		}
	}
	return doc.Tables, nil
}

// LoadMappingsFile reads table mappings from a YAML file.
func LoadMappingsFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("duckdb: load table mappings: %w", err)
	}
	defer f.Close()
	return LoadMappings(f)
}
