package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot is a serialized picture of a schema at a point in time. The
// introspector caches snapshots between catalog reads, and migration
// tooling compares them to detect drift.
type Snapshot struct {
	TakenAt time.Time
	Tables  []*Table
}

// NewSnapshot builds a snapshot of the given tables. Tables are sorted by
// qualified name so encoding and hashing are deterministic.
func NewSnapshot(tables []*Table) *Snapshot {
	sorted := make([]*Table, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].QualifiedName() < sorted[j].QualifiedName()
	})
	return &Snapshot{TakenAt: time.Now().UTC(), Tables: sorted}
}

// Table returns the named table and whether it exists. Both plain and
// schema-qualified names match.
func (s *Snapshot) Table(name string) (*Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name || t.QualifiedName() == name {
			return t, true
		}
	}
	return nil, false
}

// Encode serializes the snapshot.
func (s *Snapshot) Encode() ([]byte, error) {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("schema: encode snapshot: %w", err)
	}
	return b, nil
}

// DecodeSnapshot deserializes a snapshot produced by Encode.
func DecodeSnapshot(b []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("schema: decode snapshot: %w", err)
	}
	return &s, nil
}

// Sum reports a hex digest over the snapshot's tables. TakenAt is not part
// of the digest, so two snapshots of an identical schema compare equal.
func (s *Snapshot) Sum() (string, error) {
	b, err := msgpack.Marshal(s.Tables)
	if err != nil {
		return "", fmt.Errorf("schema: hash snapshot: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
