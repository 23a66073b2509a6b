// Package casing converts between snake_case database identifiers and
// camelCase application keys.
//
// A Mapper does the string work: Camelize("user_name") is "userName",
// Underscore("userName") is "user_name", and an acronym table keeps
// segments like ID and URL intact in both directions. Wrap turns any
// duckdialect.Driver into one whose query results carry camelCase column
// names, so rows collected into maps read like application objects.
package casing

import (
	"strings"
	"sync"
	"unicode"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// defaultAcronyms seed every Mapper. Keys are the lowercase segment as it
// appears in snake_case, values the spelling used inside camelCase names.
var defaultAcronyms = map[string]string{
	"api":  "API",
	"db":   "DB",
	"html": "HTML",
	"http": "HTTP",
	"id":   "ID",
	"ip":   "IP",
	"json": "JSON",
	"sql":  "SQL",
	"uri":  "URI",
	"url":  "URL",
	"uuid": "UUID",
}

// Mapper converts identifiers between snake_case and camelCase. Conversions
// are memoized per key, so repeated column names cost one map lookup. A
// Mapper is safe for concurrent use.
type Mapper struct {
	acronyms map[string]string
	rules    *inflect.Ruleset
	title    cases.Caser

	mu    sync.RWMutex
	camel map[string]string
	snake map[string]string
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithAcronyms adds acronyms in their camelCase spelling ("GPS", "OAuth").
// An acronym keeps that spelling when Camelize title-cases a segment;
// all-caps acronyms fold back to one segment in Underscore.
func WithAcronyms(words ...string) MapperOption {
	return func(m *Mapper) {
		for _, w := range words {
			if w == "" {
				continue
			}
			m.acronyms[strings.ToLower(w)] = w
		}
	}
}

// NewMapper returns a Mapper with the default acronym table.
func NewMapper(opts ...MapperOption) *Mapper {
	m := &Mapper{
		acronyms: make(map[string]string, len(defaultAcronyms)),
		rules:    inflect.NewDefaultRuleset(),
		title:    cases.Title(language.English),
		camel:    make(map[string]string),
		snake:    make(map[string]string),
	}
	for k, v := range defaultAcronyms {
		m.acronyms[k] = v
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Camelize converts a snake_case identifier to camelCase. The first segment
// is lowercased, later segments are title-cased or replaced with their
// acronym spelling: "user_name" becomes "userName", "user_id" becomes
// "userID".
func (m *Mapper) Camelize(name string) string {
	return m.memoized(m.camel, name, m.camelize)
}

// Underscore converts a camelCase identifier to snake_case, keeping acronym
// runs as single segments: "userAPIKey" becomes "user_api_key".
func (m *Mapper) Underscore(name string) string {
	return m.memoized(m.snake, name, underscore)
}

// ToColumn converts an application key to the column identifier used in
// query text. It is Underscore under a name that reads well at call sites.
func (m *Mapper) ToColumn(key string) string {
	return m.Underscore(key)
}

// Tableize derives a table name from a type name: "UserProfile" becomes
// "user_profiles".
func (m *Mapper) Tableize(name string) string {
	return m.rules.Tableize(name)
}

// Pluralize returns the plural form of a word.
func (m *Mapper) Pluralize(word string) string {
	return m.rules.Pluralize(word)
}

// Singularize returns the singular form of a word.
func (m *Mapper) Singularize(word string) string {
	return m.rules.Singularize(word)
}

// MapKeys returns a copy of row with camelized keys. Nested maps and
// slices, as produced for STRUCT and LIST columns, are converted too.
func (m *Mapper) MapKeys(row map[string]any) map[string]any {
	return m.convertKeys(row, m.Camelize)
}

// UnmapKeys returns a copy of row with underscored keys, for feeding
// camelCase application maps back into query builders.
func (m *Mapper) UnmapKeys(row map[string]any) map[string]any {
	return m.convertKeys(row, m.Underscore)
}

func (m *Mapper) convertKeys(row map[string]any, conv func(string) string) map[string]any {
	if row == nil {
		return nil
	}
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[conv(k)] = m.convertValue(v, conv)
	}
	return out
}

func (m *Mapper) convertValue(v any, conv func(string) string) any {
	switch v := v.(type) {
	case map[string]any:
		return m.convertKeys(v, conv)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = m.convertValue(e, conv)
		}
		return out
	default:
		return v
	}
}

func (m *Mapper) memoized(cache map[string]string, name string, conv func(string) string) string {
	m.mu.RLock()
	got, ok := cache[name]
	m.mu.RUnlock()
	if ok {
		return got
	}
	got = conv(name)
	m.mu.Lock()
	cache[name] = got
	m.mu.Unlock()
	return got
}

func (m *Mapper) camelize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	first := true
	for _, seg := range strings.Split(name, "_") {
		if seg == "" {
			continue
		}
		switch {
		case first:
			b.WriteString(strings.ToLower(seg))
			first = false
		default:
			lower := strings.ToLower(seg)
			if acr, ok := m.acronyms[lower]; ok {
				b.WriteString(acr)
			} else {
				b.WriteString(m.title.String(lower))
			}
		}
	}
	if b.Len() == 0 {
		return name
	}
	return b.String()
}

// underscore splits a camelCase name into segments and joins them with
// underscores. A split happens after a lowercase letter or digit, and
// inside an uppercase run right before its last letter when a lowercase
// letter follows, which keeps acronyms whole: "userAPIKey" splits into
// "user", "API", "Key".
func underscore(name string) string {
	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range runes {
		if r == '_' {
			b.WriteByte('_')
			continue
		}
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
