// Package catalog provides the read-only index of the layer catalog: every theme,
// group, layer and basemap with its chain of ancestors.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrCatalogUnavailable is returned when the catalog cannot be loaded at all.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// Kind is the type of a catalog entry.
type Kind string

const (
	KindTheme   Kind = "theme"
	KindLayer   Kind = "layer"
	KindGroup   Kind = "group"
	KindBasemap Kind = "basemap"
)

// ParseKind maps a raw catalog item type to a Kind. Layer flavours (l_wms, l_wmts…)
// and unknown types are layers.
func ParseKind(raw string) Kind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "theme":
		return KindTheme
	case "group":
		return KindGroup
	case "basemap":
		return KindBasemap
	default:
		return KindLayer
	}
}

// Entry is one catalog item. AncestorIDs runs from the root of the hierarchy down to
// the direct parent and is empty for top-level items.
type Entry struct {
	ID          int    `msgpack:"id"`
	Name        string `msgpack:"name"`
	Kind        Kind   `msgpack:"kind"`
	AncestorIDs []int  `msgpack:"ancestor_ids"`
}

// HasAncestor reports whether id appears in the entry's ancestor chain.
func (e Entry) HasAncestor(id int) bool {
	return slices.Contains(e.AncestorIDs, id)
}

// AncestorsBelow returns the part of the ancestor chain strictly below id. ok is false
// when id is not an ancestor.
func (e Entry) AncestorsBelow(id int) (chain []int, ok bool) {
	i := slices.Index(e.AncestorIDs, id)
	if i < 0 {
		return nil, false
	}
	return e.AncestorIDs[i+1:], true
}

// Resolver is the lookup surface the parser depends on.
type Resolver interface {
	// Lookup returns the first entry with the given name, restricted to kinds when any
	// are given.
	Lookup(name string, kinds ...Kind) (Entry, bool)
	// LookupUnder returns the first entry with the given name whose ancestor chain
	// contains ancestorID.
	LookupUnder(name string, ancestorID int) (Entry, bool)
	// Contains reports whether id is a known entry.
	Contains(id int) bool
}

// Provider lists all catalog entries with their ancestor chains.
type Provider interface {
	Entries(ctx context.Context) ([]Entry, error)
}

// Index is an immutable name/id index over catalog entries. It is safe for
// concurrent use.
type Index struct {
	entries []Entry
	byName  map[string][]int
	byID    map[int]int
}

var _ Resolver = (*Index)(nil)

// NewIndex builds an index. Entries keep their order; for duplicate names the first
// one loaded wins plain lookups. An item reachable through several groups appears once
// per path, sharing its id; ByID returns the first path.
func NewIndex(entries []Entry) *Index {
	idx := &Index{
		entries: make([]Entry, 0, len(entries)),
		byName:  make(map[string][]int),
		byID:    make(map[int]int, len(entries)),
	}
	for _, e := range entries {
		e.AncestorIDs = slices.Clone(e.AncestorIDs)
		pos := len(idx.entries)
		idx.entries = append(idx.entries, e)
		if _, seen := idx.byID[e.ID]; !seen {
			idx.byID[e.ID] = pos
		}
		idx.byName[e.Name] = append(idx.byName[e.Name], pos)
	}
	return idx
}

// Load fetches every entry from p and indexes them.
func Load(ctx context.Context, p Provider) (*Index, error) {
	entries, err := p.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return NewIndex(entries), nil
}

func (x *Index) Lookup(name string, kinds ...Kind) (Entry, bool) {
	for _, pos := range x.byName[name] {
		e := x.entries[pos]
		if len(kinds) == 0 || slices.Contains(kinds, e.Kind) {
			return e, true
		}
	}
	return Entry{}, false
}

func (x *Index) LookupUnder(name string, ancestorID int) (Entry, bool) {
	for _, pos := range x.byName[name] {
		if e := x.entries[pos]; e.HasAncestor(ancestorID) {
			return e, true
		}
	}
	return Entry{}, false
}

func (x *Index) Contains(id int) bool {
	_, ok := x.byID[id]
	return ok
}

// ByID returns the entry with the given id.
func (x *Index) ByID(id int) (Entry, bool) {
	pos, ok := x.byID[id]
	if !ok {
		return Entry{}, false
	}
	return x.entries[pos], true
}

// Len returns the number of indexed entries.
func (x *Index) Len() int {
	return len(x.entries)
}

// Entries returns a copy of the indexed entries in load order.
func (x *Index) Entries() []Entry {
	return slices.Clone(x.entries)
}

// CountByKind returns how many entries of each kind were loaded.
func (x *Index) CountByKind() map[Kind]int {
	counts := make(map[Kind]int)
	for _, e := range x.entries {
		counts[e.Kind]++
	}
	return counts
}
