package geogirafe

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sudo-Ivan/permalink-converter/pkg/catalog"
	"github.com/Sudo-Ivan/permalink-converter/pkg/ngeo"
	"github.com/Sudo-Ivan/permalink-converter/pkg/state"
)

const destination = "https://dest/map"

func parseScenario(t *testing.T, rawURL string) *ngeo.Result {
	t.Helper()
	idx := catalog.NewIndex([]catalog.Entry{
		{ID: 1, Name: "Forestry", Kind: catalog.KindTheme},
		{ID: 10, Name: "Trees", Kind: catalog.KindGroup, AncestorIDs: []int{1}},
		{ID: 100, Name: "oak", Kind: catalog.KindLayer, AncestorIDs: []int{1, 10}},
		{ID: 7, Name: "ortho", Kind: catalog.KindBasemap},
	})
	p := ngeo.NewParser(idx, ngeo.Config{Origin: "https://origin", Resolutions: []float64{250, 100, 50, 20}})
	res, err := p.Parse(rawURL)
	require.NoError(t, err)
	return res
}

func TestSerializeScenario(t *testing.T) {
	res := parseScenario(t, "https://origin/theme/Forestry?map_x=100&map_y=200&map_zoom=3&baselayer_ref=ortho")
	dst := Compose(res, nil)

	out, err := Serialize(destination, dst)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, destination+"#"))

	rawPrimary, rawExtended, err := DecodeFragment(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"position": {"center": [100, 200], "resolution": 20},
		"basemap": 7,
		"layers": [{"id": 1, "order": 1000, "checked": 0, "isExpanded": 1, "children": [], "excludedChildrenIds": []}]
	}`, string(rawPrimary))
	assert.Equal(t, "{}", string(rawExtended))

	p, e, err := Decode(out)
	require.NoError(t, err)
	require.NotNil(t, p.Position)
	assert.Equal(t, [2]float64{100, 200}, p.Position.Center)
	assert.Equal(t, 7, p.Basemap)
	require.Len(t, p.Layers, 1)
	assert.Equal(t, 1, p.Layers[0].ID)
	assert.Empty(t, e.Drawing)
}

func TestSerializeOmitsSentinelBasemap(t *testing.T) {
	res := parseScenario(t, "https://origin/theme/Forestry?baselayer_ref=unknown")
	out, err := Serialize(destination, Compose(res, nil))
	require.NoError(t, err)

	rawPrimary, _, err := DecodeFragment(out)
	require.NoError(t, err)
	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(rawPrimary, &generic))
	assert.NotContains(t, generic, "basemap")
	assert.NotContains(t, generic, "position")
}

func TestSerializeNestedLayersAndOverrides(t *testing.T) {
	res := parseScenario(t, "https://origin/theme/Forestry?tree_groups=Trees"+
		"&tree_group_layers_Trees=oak&tree_opacity_oak=0.5&dim_YEAR=2020&opacity_oak=0.7")
	p := Primary(Compose(res, nil))

	require.Len(t, p.Layers, 1)
	trees := p.Layers[0].Children
	require.Len(t, trees, 1)
	require.Len(t, trees[0].Children, 1)
	oak := trees[0].Children[0]
	assert.Equal(t, 100, oak.ID)
	assert.Equal(t, 1, oak.Checked)
	require.NotNil(t, oak.Opacity)
	assert.Equal(t, 0.5, *oak.Opacity)
	assert.Equal(t, 0, trees[0].Checked)

	assert.Equal(t, map[string]string{"YEAR": "2020"}, p.Dimensions)
	assert.Equal(t, map[string]float64{"oak": 0.7}, p.Opacity)
}

func TestSerializeDrawing(t *testing.T) {
	res := parseScenario(t, "https://origin/")
	features := []state.PresentationFeature{{
		Name:        "Point 1",
		StrokeColor: "#DB4436",
		FillColor:   "#DB443633",
		StrokeWidth: 12,
		GeoJSON:     json.RawMessage(`{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}`),
	}}
	out, err := Serialize(destination, Compose(res, features))
	require.NoError(t, err)

	_, rawExtended, err := DecodeFragment(out)
	require.NoError(t, err)
	var generic map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(rawExtended, &generic))
	require.Len(t, generic["drawing"], 1)
	f := generic["drawing"][0]
	assert.Equal(t, "Point 1", f["n"])
	assert.Equal(t, "#DB4436", f["sc"])
	assert.Equal(t, float64(0), f["t"])
	assert.Contains(t, f, "g")

	_, e, err := Decode(out)
	require.NoError(t, err)
	require.Len(t, e.Drawing, 1)
	assert.JSONEq(t, string(features[0].GeoJSON), string(e.Drawing[0].GeoJSON))
}

func TestCompressUsesFragmentAlphabet(t *testing.T) {
	data := []byte(strings.Repeat(`{"layers":[{"id":12345,"order":1000}]}`, 20) + "\x00\xff\xfe")
	out, err := Compress(data)
	require.NoError(t, err)
	for _, r := range out {
		assert.True(t, strings.ContainsRune(Alphabet, r), "unexpected %q", r)
	}
	assert.NotContains(t, out, Separator)
	assert.NotContains(t, Alphabet, Separator)

	back, err := Decompress(out)
	require.NoError(t, err)
	assert.Equal(t, data, back)
}

func TestCompressWritesZlibStream(t *testing.T) {
	out, err := Compress([]byte(`{"layers":[]}`))
	require.NoError(t, err)
	raw, err := fragmentEncoding.DecodeString(out)
	require.NoError(t, err)
	require.Greater(t, len(raw), 2)
	assert.Equal(t, byte(0x78), raw[0], "deflate method with a 32K window")
	assert.Zero(t, (uint16(raw[0])<<8|uint16(raw[1]))%31, "header check bits")

	back, err := Decompress(out)
	require.NoError(t, err)
	assert.Equal(t, `{"layers":[]}`, string(back))
}

func TestDecodeFragmentErrors(t *testing.T) {
	good, err := Compress([]byte("{}"))
	require.NoError(t, err)

	tests := []struct {
		name     string
		fragment string
	}{
		{"single half", good},
		{"three halves", good + "-" + good + "-" + good},
		{"foreign characters", good + "-" + "ab+/"},
		{"not zlib", good + "-" + "AAAA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeFragment(tt.fragment)
			assert.Error(t, err)
		})
	}

	p, e, err := DecodeFragment("#" + good + "-" + good)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(p))
	assert.Equal(t, "{}", string(e))
}
