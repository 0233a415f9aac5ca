package ngeo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sudo-Ivan/permalink-converter/pkg/catalog"
	"github.com/Sudo-Ivan/permalink-converter/pkg/state"
)

const origin = "https://origin"

var testResolutions = []float64{250, 100, 50, 20}

func testIndex() *catalog.Index {
	return catalog.NewIndex([]catalog.Entry{
		{ID: 1, Name: "Forestry", Kind: catalog.KindTheme},
		{ID: 2, Name: "Water", Kind: catalog.KindTheme},
		{ID: 10, Name: "Trees", Kind: catalog.KindGroup, AncestorIDs: []int{1}},
		{ID: 11, Name: "Soil", Kind: catalog.KindGroup, AncestorIDs: []int{1}},
		{ID: 12, Name: "Deep", Kind: catalog.KindGroup, AncestorIDs: []int{1, 10}},
		{ID: 100, Name: "oak", Kind: catalog.KindLayer, AncestorIDs: []int{1, 10}},
		{ID: 101, Name: "mixed", Kind: catalog.KindLayer, AncestorIDs: []int{1, 10}},
		{ID: 102, Name: "mixed", Kind: catalog.KindLayer, AncestorIDs: []int{1, 11}},
		{ID: 103, Name: "pine", Kind: catalog.KindLayer, AncestorIDs: []int{1, 10, 12}},
		{ID: 200, Name: "river", Kind: catalog.KindLayer, AncestorIDs: []int{2}},
		{ID: 7, Name: "ortho", Kind: catalog.KindBasemap},
	})
}

// countingResolver records how often the catalog is consulted.
type countingResolver struct {
	inner *catalog.Index
	calls int
}

func (c *countingResolver) Lookup(name string, kinds ...catalog.Kind) (catalog.Entry, bool) {
	c.calls++
	return c.inner.Lookup(name, kinds...)
}

func (c *countingResolver) LookupUnder(name string, ancestorID int) (catalog.Entry, bool) {
	c.calls++
	return c.inner.LookupUnder(name, ancestorID)
}

func (c *countingResolver) Contains(id int) bool {
	c.calls++
	return c.inner.Contains(id)
}

func newTestParser() *Parser {
	return NewParser(testIndex(), Config{Origin: origin, Resolutions: testResolutions})
}

func parse(t *testing.T, rawURL string) *Result {
	t.Helper()
	res, err := newTestParser().Parse(rawURL)
	require.NoError(t, err)
	return res
}

func TestParseThemePositionAndBasemap(t *testing.T) {
	res := parse(t, origin+"/theme/Forestry?map_x=100&map_y=200&map_zoom=3&baselayer_ref=ortho")

	require.NotNil(t, res.View)
	assert.Equal(t, [2]float64{100, 200}, res.View.Center)
	require.NotNil(t, res.View.Resolution)
	assert.Equal(t, 20.0, *res.View.Resolution)
	assert.Equal(t, 7, res.BasemapID)

	roots := res.Tree.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, 1, roots[0].ID)
	assert.Equal(t, state.FirstOrder, roots[0].Order)
	assert.False(t, roots[0].Enabled)
	assert.True(t, roots[0].Expanded)
	assert.Empty(t, roots[0].Children)

	assert.Equal(t, "Forestry", res.Source.ThemeName)
	assert.Equal(t, "ortho", res.Source.BackgroundLayerName)
	assert.Equal(t, &state.MapPosition{X: 100, Y: 200, Zoom: 3}, res.Source.Position)
	assert.Empty(t, res.Source.UnresolvedFragments)
}

func TestParseUnknownBaseLayer(t *testing.T) {
	res := parse(t, origin+"/theme/Forestry?map_x=100&map_y=200&map_zoom=3&baselayer_ref=unknown")
	assert.Equal(t, 0, res.BasemapID)
	assert.Equal(t, []string{"baselayer_ref=unknown"}, res.Source.UnresolvedFragments)
}

func TestParseOriginMismatchSkipsCatalog(t *testing.T) {
	resolver := &countingResolver{inner: testIndex()}
	p := NewParser(resolver, Config{Origin: origin, Resolutions: testResolutions})

	_, err := p.Parse("https://elsewhere/theme/Forestry?baselayer_ref=ortho&tree_groups=Trees")
	assert.ErrorIs(t, err, ErrOriginMismatch)
	assert.Zero(t, resolver.calls)

	_, err = p.Parse(origin + "/theme/Forestry?baselayer_ref=ortho")
	require.NoError(t, err)
	assert.NotZero(t, resolver.calls)
}

func TestParsePositionIsAtomic(t *testing.T) {
	res := parse(t, origin+"/?map_x=100&map_zoom=2&foo=bar")
	assert.Nil(t, res.View)
	assert.Nil(t, res.Source.Position)
	assert.Equal(t, []string{"map_x=100", "map_zoom=2", "foo=bar"}, res.Source.UnresolvedFragments)

	res = parse(t, origin+"/?map_x=abc&map_y=1&map_zoom=2")
	assert.Nil(t, res.View)
	assert.Len(t, res.Source.UnresolvedFragments, 3)
}

func TestParsePositionRejectsNonFiniteNumbers(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"nan x", "map_x=NaN&map_y=1&map_zoom=2"},
		{"infinite x", "map_x=Inf&map_y=1&map_zoom=2"},
		{"negative infinite y", "map_x=1&map_y=-Inf&map_zoom=2"},
		{"nan zoom", "map_x=1&map_y=2&map_zoom=NaN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := parse(t, origin+"/theme/Forestry?"+tt.query)
			assert.Nil(t, res.View)
			assert.Nil(t, res.Source.Position)
			assert.Len(t, res.Source.UnresolvedFragments, 3)
			assert.Len(t, res.Tree.Roots(), 1, "the theme still resolves")
		})
	}
}

func TestParseThemeWithEncodedSlash(t *testing.T) {
	res := parse(t, origin+"/theme/Forest%2Fry?map_x=1&map_y=2&map_zoom=0")
	assert.Equal(t, "Forest/ry", res.Source.ThemeName)
	assert.Equal(t, []string{"theme=Forest/ry"}, res.Source.UnresolvedFragments)

	res = parse(t, origin+"/theme/Fore%73try")
	assert.Equal(t, "Forestry", res.Source.ThemeName)
	require.Len(t, res.Tree.Roots(), 1)
}

func TestParseZoomClampsToFinestResolution(t *testing.T) {
	for _, zoom := range []string{"3", "9", "-1", "42"} {
		res := parse(t, origin+"/?map_x=1&map_y=2&map_zoom="+zoom)
		require.NotNil(t, res.View, zoom)
		assert.Equal(t, 20.0, *res.View.Resolution, zoom)
	}
	res := parse(t, origin+"/?map_x=1&map_y=2&map_zoom=0")
	assert.Equal(t, 250.0, *res.View.Resolution)
}

func TestResolutionFor(t *testing.T) {
	tests := []struct {
		name  string
		zoom  int
		table []float64
		want  *float64
	}{
		{"first", 0, testResolutions, ptr(250.0)},
		{"middle", 2, testResolutions, ptr(50.0)},
		{"beyond", 10, testResolutions, ptr(20.0)},
		{"negative", -3, testResolutions, ptr(20.0)},
		{"empty table", 1, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolutionFor(tt.zoom, tt.table))
		})
	}
}

func TestParseGroupsAndChildren(t *testing.T) {
	res := parse(t, origin+"/theme/Forestry?tree_groups=Trees,Soil,Nope"+
		"&tree_group_layers_Trees=oak,pine,ghost&tree_group_layers_Gone=x")

	roots := res.Tree.Roots()
	require.Len(t, roots, 1)
	theme := roots[0]
	require.Len(t, theme.Children, 2)

	trees, soil := theme.Children[0], theme.Children[1]
	assert.Equal(t, 10, trees.ID)
	assert.False(t, trees.Enabled)
	assert.Equal(t, 11, soil.ID)

	require.Len(t, trees.Children, 2)
	oak, deep := trees.Children[0], trees.Children[1]
	assert.Equal(t, 100, oak.ID)
	assert.True(t, oak.Enabled)
	assert.Equal(t, 12, deep.ID, "intermediate groups are created on the way")
	assert.False(t, deep.Enabled)
	require.Len(t, deep.Children, 1)
	assert.Equal(t, 103, deep.Children[0].ID)
	assert.True(t, deep.Children[0].Enabled)

	assert.Equal(t, []int{1000, 1001, 1002, 1003, 1004, 1005},
		[]int{theme.Order, trees.Order, soil.Order, oak.Order, deep.Order, deep.Children[0].Order})

	assert.Equal(t, []string{
		"tree_groups=Nope",
		"tree_group_layers_Trees=ghost",
		"tree_group_layers_Gone=x",
	}, res.Source.UnresolvedFragments)
	assert.Equal(t, []string{"oak", "pine", "ghost"}, res.Source.GroupMemberships["Trees"])
	assert.Equal(t, []string{"Trees", "Soil", "Nope", "oak", "pine", "ghost", "x"}, res.Source.LayerNames)
}

func TestParseFirstFrontierGroupWins(t *testing.T) {
	res := parse(t, origin+"/theme/Forestry?tree_groups=Trees,Soil&tree_enable_mixed=true")
	node, ok := res.Tree.Node(101)
	require.True(t, ok)
	assert.True(t, node.Enabled)
	_, ok = res.Tree.Node(102)
	assert.False(t, ok)
	assert.Equal(t, 101, res.Tree.Roots()[0].Children[0].Children[0].ID)

	res = parse(t, origin+"/theme/Forestry?tree_groups=Soil,Trees&tree_enable_mixed=true")
	_, ok = res.Tree.Node(102)
	assert.True(t, ok)
	_, ok = res.Tree.Node(101)
	assert.False(t, ok)
}

func TestParseTogglesMutateExistingNodes(t *testing.T) {
	res := parse(t, origin+"/theme/Forestry?tree_groups=Trees"+
		"&tree_group_layers_Trees=oak&tree_enable_oak=false&tree_opacity_oak=0.5"+
		"&tree_opacity_Trees=2&tree_enable_pine=maybe&tree_enable_nothing=true")

	oak, ok := res.Tree.Node(100)
	require.True(t, ok)
	assert.False(t, oak.Enabled)
	require.NotNil(t, oak.Opacity)
	assert.Equal(t, 0.5, *oak.Opacity)

	trees, _ := res.Tree.Node(10)
	require.NotNil(t, trees.Opacity)
	assert.Equal(t, 1.0, *trees.Opacity, "opacity is clamped")

	assert.Equal(t, 3, res.Tree.Len(), "no node is created twice")

	toggle := res.Source.Toggles["oak"]
	require.NotNil(t, toggle.Enabled)
	assert.False(t, *toggle.Enabled)
	assert.Equal(t, 0.5, *toggle.Opacity)

	assert.Equal(t, []string{
		"tree_enable_pine=maybe",
		"tree_enable_nothing=true",
	}, res.Source.UnresolvedFragments)
}

func TestParseToggleCreatesNodes(t *testing.T) {
	res := parse(t, origin+"/?tree_enable_river=true")
	roots := res.Tree.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, 200, roots[0].ID)
	assert.True(t, roots[0].Enabled)

	res = parse(t, origin+"/theme/Forestry?tree_groups=Trees&tree_opacity_pine=0.3")
	pine, ok := res.Tree.Node(103)
	require.True(t, ok)
	assert.False(t, pine.Enabled)
	assert.Equal(t, 0.3, *pine.Opacity)
	deep, ok := res.Tree.Node(12)
	require.True(t, ok)
	assert.Equal(t, []*state.LayerNode{pine}, deep.Children)

	// By-name fallback attaches under the theme root when no frontier group matches.
	res = parse(t, origin+"/theme/Forestry?tree_enable_oak=true")
	theme := res.Tree.Roots()[0]
	require.Len(t, theme.Children, 1)
	assert.Equal(t, 10, theme.Children[0].ID)
	assert.Equal(t, 100, theme.Children[0].Children[0].ID)
}

func TestParseThemeParameters(t *testing.T) {
	res := parse(t, origin+"/theme/Forestry?theme=Forestry&theme=Nope&theme=Water&tree_groups=river")
	roots := res.Tree.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, 1, roots[0].ID)
	assert.Equal(t, 2, roots[1].ID)
	require.Len(t, roots[1].Children, 1)
	assert.Equal(t, 200, roots[1].Children[0].ID)
	assert.Equal(t, []string{"theme=Nope"}, res.Source.UnresolvedFragments)
	assert.Equal(t, "Water", res.Source.ThemeName)

	res = parse(t, origin+"/theme/Unknown")
	assert.Empty(t, res.Tree.Roots())
	assert.Equal(t, []string{"theme=Unknown"}, res.Source.UnresolvedFragments)
}

func TestParseOtherFamilies(t *testing.T) {
	res := parse(t, origin+"/?dim_YEAR=2020&opacity_oak=0.4&opacity_bad=x"+
		"&rl_features=Fp(36zth-ngu4S~n*Point%25201)&zzz=1&dim_=odd")

	assert.Equal(t, map[string]string{"YEAR": "2020"}, res.Source.DimensionOverrides)
	assert.Equal(t, map[string]float64{"oak": 0.4}, res.Source.LegacyOpacity)
	assert.Equal(t, "Fp(36zth-ngu4S~n*Point%201)", res.Source.GeometryToken)
	assert.True(t, res.Source.HasGeometry())
	assert.Equal(t, []string{"opacity_bad=x", "zzz=1", "dim_=odd"}, res.Source.UnresolvedFragments)
}

func TestParseFragmentsAreStable(t *testing.T) {
	raw := origin + "/theme/Nope?b=2&a=1&tree_groups=X,Y&tree_enable_Z=true&baselayer_ref=none&c=3"
	first := parse(t, raw).Source.UnresolvedFragments
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, parse(t, raw).Source.UnresolvedFragments)
	}
	assert.Equal(t, []string{
		"theme=Nope",
		"baselayer_ref=none",
		"tree_groups=X",
		"tree_groups=Y",
		"tree_enable_Z=true",
		"b=2",
		"a=1",
		"c=3",
	}, first)
}

func TestParseOrdersAreUnique(t *testing.T) {
	res := parse(t, origin+"/theme/Forestry?theme=Water&tree_groups=Trees,Soil"+
		"&tree_group_layers_Trees=oak,pine&tree_enable_mixed=true&tree_enable_river=true")

	seen := map[int]bool{}
	state.Walk(res.Tree.Roots(), func(n *state.LayerNode) {
		assert.False(t, seen[n.Order], "order %d reused", n.Order)
		seen[n.Order] = true
		assert.GreaterOrEqual(t, n.Order, state.FirstOrder)
		assert.Less(t, n.Order, state.FirstOrder+res.Tree.Len())
	})
	assert.Len(t, seen, res.Tree.Len())
}

func TestParseRejectsBrokenURL(t *testing.T) {
	_, err := newTestParser().Parse(origin + "/%zz")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrOriginMismatch)
}

func ptr(v float64) *float64 {
	return &v
}
