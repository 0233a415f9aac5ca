// Copyright (c) 2025 Sudo-Ivan
// Licensed under the MIT License

// Package ngeo parses permalinks written by ngeo-based viewers and resolves the layer
// names they reference into a tree of catalog ids.
package ngeo

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/Sudo-Ivan/permalink-converter/pkg/catalog"
	"github.com/Sudo-Ivan/permalink-converter/pkg/state"
)

// ErrOriginMismatch is returned for URLs that do not start with the configured origin.
// Such records are skipped, not failed.
var ErrOriginMismatch = errors.New("url origin does not match the configured origin")

var themePathPattern = regexp.MustCompile(`/theme/([^/?]+)`)

// Config holds the values the parser depends on.
type Config struct {
	// Origin is the prefix every accepted URL starts with.
	Origin string
	// Resolutions maps zoom levels to map resolutions, coarsest first.
	Resolutions []float64
}

// Parser turns source URLs into a SourceState and a resolved layer tree. It holds no
// per-URL state and can be shared between goroutines as long as the resolver can.
type Parser struct {
	resolver    catalog.Resolver
	origin      string
	resolutions []float64
}

// Result is everything the parser extracted from one URL.
type Result struct {
	Source state.SourceState
	// Tree holds the resolved layer forest. Its order counter is local to this URL.
	Tree *state.LayerTree
	// View is nil when the URL carried no complete position.
	View *state.View
	// BasemapID is 0 when no background layer was given or it could not be resolved.
	BasemapID int
}

// NewParser creates a parser bound to a read-only catalog.
func NewParser(resolver catalog.Resolver, cfg Config) *Parser {
	return &Parser{
		resolver:    resolver,
		origin:      cfg.Origin,
		resolutions: append([]float64(nil), cfg.Resolutions...),
	}
}

// Parse reads one source URL.
//
// Parameter families are handled in a fixed order and each consumes the parameters it
// understands. Names that cannot be resolved, values that cannot be read and
// parameters nobody consumed end up in Source.UnresolvedFragments, in URL order within
// each family. Those never make Parse fail.
//
// Parameters:
//   - rawURL: The permalink to parse
//
// Returns:
//   - *Result: The parsed state
//   - error: ErrOriginMismatch when the URL belongs to another origin, or a parse error
func (p *Parser) Parse(rawURL string) (*Result, error) {
	if !strings.HasPrefix(rawURL, p.origin) {
		return nil, ErrOriginMismatch
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}

	r := &run{
		resolver: p.resolver,
		q:        parseQuery(u.RawQuery),
		tree:     state.NewLayerTree(),
		src: state.SourceState{
			GroupMemberships:   map[string][]string{},
			Toggles:            map[string]state.Toggle{},
			DimensionOverrides: map[string]string{},
			LegacyOpacity:      map[string]float64{},
		},
	}

	r.pathTheme(u.EscapedPath())
	view := r.position(p.resolutions)
	basemap := r.background()
	r.themes()
	r.groups()
	r.groupLayers()
	r.toggles()
	r.dimensions()
	r.legacyOpacity()
	r.geometry()
	r.src.UnresolvedFragments = append(r.src.UnresolvedFragments, r.q.remaining()...)

	return &Result{
		Source:    r.src,
		Tree:      r.tree,
		View:      view,
		BasemapID: basemap,
	}, nil
}

// ResolutionFor converts a zoom level to a resolution. Levels outside the table,
// negative ones included, give the finest resolution. An empty table gives nil.
func ResolutionFor(zoom int, resolutions []float64) *float64 {
	if len(resolutions) == 0 {
		return nil
	}
	i := zoom
	if i < 0 || i >= len(resolutions) {
		i = len(resolutions) - 1
	}
	res := resolutions[i]
	return &res
}

// run is the state of a single Parse call.
type run struct {
	resolver catalog.Resolver
	q        *query
	tree     *state.LayerTree
	src      state.SourceState

	// theme is the current theme root, nil until one resolves.
	theme *state.LayerNode
	// frontier lists the groups named by tree_groups in discovery order.
	frontier []frontierGroup
}

type frontierGroup struct {
	name string
	node *state.LayerNode
}

func (r *run) unresolved(name, value string) {
	r.src.UnresolvedFragments = append(r.src.UnresolvedFragments, fragment(name, value))
}

func (r *run) pathTheme(path string) {
	m := themePathPattern.FindStringSubmatch(path)
	if m == nil {
		return
	}
	name, err := url.PathUnescape(m[1])
	if err != nil {
		name = m[1]
	}
	r.src.ThemeName = name
	e, ok := r.resolver.Lookup(name, catalog.KindTheme)
	if !ok {
		r.unresolved(ParamTheme, name)
		return
	}
	r.theme = r.tree.AddRoot(e.ID, false)
}

// position consumes x, y and zoom together. When one of them is missing or unreadable
// all three are left in place.
func (r *run) position(resolutions []float64) *state.View {
	xs, okX := r.q.peek(ParamMapX)
	ys, okY := r.q.peek(ParamMapY)
	zs, okZ := r.q.peek(ParamMapZoom)
	if !okX || !okY || !okZ {
		return nil
	}
	x, errX := strconv.ParseFloat(xs, 64)
	y, errY := strconv.ParseFloat(ys, 64)
	zoom, errZ := parseZoom(zs)
	if errX != nil || errY != nil || errZ != nil || !finite(x) || !finite(y) {
		return nil
	}
	r.q.take(ParamMapX)
	r.q.take(ParamMapY)
	r.q.take(ParamMapZoom)

	r.src.Position = &state.MapPosition{X: x, Y: y, Zoom: zoom}
	return &state.View{
		Center:     [2]float64{x, y},
		Resolution: ResolutionFor(zoom, resolutions),
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func parseZoom(s string) (int, error) {
	if z, err := strconv.Atoi(s); err == nil {
		return z, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if !finite(f) {
		return 0, fmt.Errorf("invalid zoom %q", s)
	}
	return int(f), nil
}

func (r *run) background() int {
	name, ok := r.q.take(ParamBaseLayer)
	if !ok || name == "" {
		return 0
	}
	r.src.BackgroundLayerName = name
	e, ok := r.resolver.Lookup(name, catalog.KindBasemap)
	if !ok {
		e, ok = r.resolver.Lookup(name)
	}
	if !ok {
		r.unresolved(ParamBaseLayer, name)
		return 0
	}
	return e.ID
}

func (r *run) themes() {
	for _, name := range r.q.takeAll(ParamTheme) {
		r.src.ThemeName = name
		e, ok := r.resolver.Lookup(name, catalog.KindTheme)
		if !ok {
			r.unresolved(ParamTheme, name)
			continue
		}
		if r.theme != nil && r.theme.ID == e.ID {
			continue
		}
		r.theme = r.tree.AddRoot(e.ID, false)
	}
}

func (r *run) groups() {
	for _, value := range r.q.takeAll(ParamTreeGroups) {
		for _, name := range splitList(value) {
			r.src.LayerNames = append(r.src.LayerNames, name)
			e, ok := r.resolveGroup(name)
			if !ok {
				r.unresolved(ParamTreeGroups, name)
				continue
			}
			node := r.attach(r.theme, e, false)
			if !r.inFrontier(node) {
				r.frontier = append(r.frontier, frontierGroup{name: name, node: node})
			}
		}
	}
}

func (r *run) resolveGroup(name string) (catalog.Entry, bool) {
	if r.theme != nil {
		if e, ok := r.resolver.LookupUnder(name, r.theme.ID); ok {
			return e, true
		}
	}
	return r.resolver.Lookup(name, catalog.KindGroup, catalog.KindLayer)
}

func (r *run) inFrontier(node *state.LayerNode) bool {
	for _, g := range r.frontier {
		if g.node == node {
			return true
		}
	}
	return false
}

func (r *run) frontierByName(name string) (frontierGroup, bool) {
	for _, g := range r.frontier {
		if g.name == name {
			return g, true
		}
	}
	return frontierGroup{}, false
}

func (r *run) groupLayers() {
	for _, p := range r.q.takePrefix(PrefixGroupLayers) {
		groupName := strings.TrimPrefix(p.name, PrefixGroupLayers)
		items := splitList(p.value)
		r.src.GroupMemberships[groupName] = append(r.src.GroupMemberships[groupName], items...)
		r.src.LayerNames = append(r.src.LayerNames, items...)

		group, ok := r.frontierByName(groupName)
		for _, item := range items {
			if !ok {
				r.unresolved(p.name, item)
				continue
			}
			e, found := r.resolver.LookupUnder(item, group.node.ID)
			if !found {
				e, found = r.resolver.Lookup(item)
			}
			if !found {
				r.unresolved(p.name, item)
				continue
			}
			r.attach(group.node, e, true).Enabled = true
		}
	}
}

func (r *run) toggles() {
	params := r.q.takeMatching(func(name string) bool {
		return (strings.HasPrefix(name, PrefixEnable) && len(name) > len(PrefixEnable)) ||
			(strings.HasPrefix(name, PrefixOpacity) && len(name) > len(PrefixOpacity))
	})

	for _, p := range params {
		var (
			item    string
			enabled *bool
			opacity *float64
		)
		if strings.HasPrefix(p.name, PrefixEnable) {
			item = strings.TrimPrefix(p.name, PrefixEnable)
			v, err := strconv.ParseBool(p.value)
			if err != nil {
				r.unresolved(p.name, p.value)
				continue
			}
			enabled = &v
		} else {
			item = strings.TrimPrefix(p.name, PrefixOpacity)
			v, err := parseOpacity(p.value)
			if err != nil {
				r.unresolved(p.name, p.value)
				continue
			}
			opacity = &v
		}
		r.recordToggle(item, enabled, opacity)

		e, parent, ok := r.resolveItem(item)
		if !ok {
			r.unresolved(p.name, p.value)
			continue
		}

		node, exists := r.tree.Node(e.ID)
		if !exists {
			seed := enabled != nil && *enabled
			node = r.attach(parent, e, seed)
		}
		if enabled != nil {
			node.Enabled = *enabled
		}
		if opacity != nil {
			node.Opacity = opacity
		}
	}
}

func (r *run) recordToggle(item string, enabled *bool, opacity *float64) {
	t := r.src.Toggles[item]
	if enabled != nil {
		t.Enabled = enabled
	}
	if opacity != nil {
		t.Opacity = opacity
	}
	r.src.Toggles[item] = t
}

// resolveItem prefers an entry below one of the frontier groups, first group first,
// and falls back to a match on the name alone. The returned parent is where a new node
// for the entry belongs.
func (r *run) resolveItem(name string) (catalog.Entry, *state.LayerNode, bool) {
	for _, g := range r.frontier {
		if e, ok := r.resolver.LookupUnder(name, g.node.ID); ok {
			return e, g.node, true
		}
	}
	e, ok := r.resolver.Lookup(name)
	return e, r.theme, ok
}

// attach returns the node of e, creating it below parent when it does not exist yet.
// Catalog groups between parent and e are found or created on the way, disabled.
func (r *run) attach(parent *state.LayerNode, e catalog.Entry, enabled bool) *state.LayerNode {
	if n, ok := r.tree.Node(e.ID); ok {
		return n
	}
	if parent != nil {
		if chain, ok := e.AncestorsBelow(parent.ID); ok {
			for _, id := range chain {
				if !r.resolver.Contains(id) {
					continue
				}
				parent = r.tree.AddChild(parent, id, false)
			}
		}
	}
	return r.tree.AddChild(parent, e.ID, enabled)
}

func (r *run) dimensions() {
	for _, p := range r.q.takePrefix(PrefixDimension) {
		r.src.DimensionOverrides[strings.TrimPrefix(p.name, PrefixDimension)] = p.value
	}
}

func (r *run) legacyOpacity() {
	for _, p := range r.q.takePrefix(PrefixLegacyOpacity) {
		v, err := parseOpacity(p.value)
		if err != nil {
			r.unresolved(p.name, p.value)
			continue
		}
		r.src.LegacyOpacity[strings.TrimPrefix(p.name, PrefixLegacyOpacity)] = v
	}
}

func (r *run) geometry() {
	if token, ok := r.q.take(ParamFeatures); ok {
		r.src.GeometryToken = token
	}
}

// parseOpacity reads a number and clamps it to [0,1].
func parseOpacity(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) {
		return 0, fmt.Errorf("invalid opacity %q", s)
	}
	switch {
	case v < 0:
		return 0, nil
	case v > 1:
		return 1, nil
	}
	return v, nil
}

func splitList(value string) []string {
	var out []string
	for _, s := range strings.Split(value, ListSeparator) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
