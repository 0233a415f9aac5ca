package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/Sudo-Ivan/permalink-converter/pkg/sqlstore"
)

// SQLProvider reads the catalog tree from the geoportal main schema: items from
// treeitem and containment edges from layergroup_treeitem.
type SQLProvider struct {
	DB     *sql.DB
	Schema string
}

type treeItem struct {
	id       int
	name     string
	itemType string
}

// Entries returns one entry per path from an item up to a top-level item. An item
// reachable through several groups yields several entries.
func (p SQLProvider) Entries(ctx context.Context) ([]Entry, error) {
	items, err := p.loadItems(ctx)
	if err != nil {
		return nil, err
	}
	parents, err := p.loadParents(ctx)
	if err != nil {
		return nil, err
	}

	paths := newPathBuilder(parents)
	var entries []Entry
	for _, item := range items {
		kind := ParseKind(item.itemType)
		for _, chain := range paths.chains(item.id) {
			entries = append(entries, Entry{
				ID:          item.id,
				Name:        item.name,
				Kind:        kind,
				AncestorIDs: chain,
			})
		}
	}
	return entries, nil
}

func (p SQLProvider) loadItems(ctx context.Context) ([]treeItem, error) {
	table, err := sqlstore.Table(p.Schema, "treeitem")
	if err != nil {
		return nil, err
	}
	rows, err := p.DB.QueryContext(ctx, fmt.Sprintf(`SELECT id, name, type FROM %s ORDER BY id`, table))
	if err != nil {
		return nil, fmt.Errorf("select tree items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []treeItem
	for rows.Next() {
		var it treeItem
		if err := rows.Scan(&it.id, &it.name, &it.itemType); err != nil {
			return nil, fmt.Errorf("scan tree item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tree items: %w", err)
	}
	return items, nil
}

func (p SQLProvider) loadParents(ctx context.Context) (map[int][]int, error) {
	table, err := sqlstore.Table(p.Schema, "layergroup_treeitem")
	if err != nil {
		return nil, err
	}
	rows, err := p.DB.QueryContext(ctx, fmt.Sprintf(`SELECT treegroup_id, treeitem_id FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("select tree edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	parents := make(map[int][]int)
	for rows.Next() {
		var groupID, itemID int
		if err := rows.Scan(&groupID, &itemID); err != nil {
			return nil, fmt.Errorf("scan tree edge: %w", err)
		}
		parents[itemID] = append(parents[itemID], groupID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tree edges: %w", err)
	}
	for _, ids := range parents {
		sort.Ints(ids)
	}
	return parents, nil
}

// pathBuilder expands child -> parents edges into root-to-parent chains, memoizing per
// item. Edges that would revisit an item already on the current path are ignored.
type pathBuilder struct {
	parents map[int][]int
	memo    map[int][][]int
}

func newPathBuilder(parents map[int][]int) *pathBuilder {
	return &pathBuilder{parents: parents, memo: make(map[int][][]int)}
}

func (b *pathBuilder) chains(id int) [][]int {
	return b.walk(id, map[int]bool{})
}

func (b *pathBuilder) walk(id int, onPath map[int]bool) [][]int {
	if cached, ok := b.memo[id]; ok {
		return cached
	}
	ps := b.parents[id]
	if len(ps) == 0 {
		return [][]int{{}}
	}
	onPath[id] = true
	defer delete(onPath, id)

	var out [][]int
	cyclic := false
	for _, parent := range ps {
		if onPath[parent] {
			cyclic = true
			continue
		}
		for _, up := range b.walk(parent, onPath) {
			chain := make([]int, 0, len(up)+1)
			chain = append(chain, up...)
			chain = append(chain, parent)
			out = append(out, chain)
		}
	}
	if len(out) == 0 {
		out = [][]int{{}}
	}
	if !cyclic {
		b.memo[id] = out
	}
	return out
}
