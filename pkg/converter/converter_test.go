package converter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Sudo-Ivan/permalink-converter/pkg/catalog"
	"github.com/Sudo-Ivan/permalink-converter/pkg/geogirafe"
	"github.com/Sudo-Ivan/permalink-converter/pkg/metrics"
	"github.com/Sudo-Ivan/permalink-converter/pkg/ngeo"
	"github.com/Sudo-Ivan/permalink-converter/pkg/state"
)

const (
	origin      = "https://origin"
	destination = "https://dest/map"
	scenarioURL = origin + "/theme/Forestry?map_x=100&map_y=200&map_zoom=3&baselayer_ref=ortho"
)

func testParser() *ngeo.Parser {
	idx := catalog.NewIndex([]catalog.Entry{
		{ID: 1, Name: "Forestry", Kind: catalog.KindTheme},
		{ID: 10, Name: "Trees", Kind: catalog.KindGroup, AncestorIDs: []int{1}},
		{ID: 100, Name: "oak", Kind: catalog.KindLayer, AncestorIDs: []int{1, 10}},
		{ID: 7, Name: "ortho", Kind: catalog.KindBasemap},
	})
	return ngeo.NewParser(idx, ngeo.Config{Origin: origin, Resolutions: []float64{250, 100, 50, 20}})
}

// stubParser fails or panics for chosen URLs and delegates the rest.
type stubParser struct {
	inner  URLParser
	fail   map[string]error
	panics map[string]bool
}

func (s stubParser) Parse(rawURL string) (*ngeo.Result, error) {
	if s.panics[rawURL] {
		panic("catalog corrupted")
	}
	if err, ok := s.fail[rawURL]; ok {
		return nil, err
	}
	return s.inner.Parse(rawURL)
}

func TestConvertScenario(t *testing.T) {
	c := New(testParser(), destination)
	out := c.Convert(context.Background(), state.Record{Ref: "abc", URL: scenarioURL})

	require.True(t, out.Success, out.ErrorReason)
	assert.Equal(t, "abc", out.Ref)
	assert.Equal(t, scenarioURL, out.OriginalURL)
	assert.Empty(t, out.UnconvertibleFragments)
	assert.False(t, out.Partial())

	primary, extended, err := geogirafe.Decode(out.ConvertedURL)
	require.NoError(t, err)
	require.NotNil(t, primary.Position)
	assert.Equal(t, [2]float64{100, 200}, primary.Position.Center)
	require.NotNil(t, primary.Position.Resolution)
	assert.Equal(t, 20.0, *primary.Position.Resolution)
	assert.Equal(t, 7, primary.Basemap)
	require.Len(t, primary.Layers, 1)
	assert.Equal(t, 1, primary.Layers[0].ID)
	assert.Empty(t, extended.Drawing)
}

func TestConvertDrawingAndLeftovers(t *testing.T) {
	rawURL := origin + "/theme/Forestry?foo=bar&rl_features=p(36zth-ngu4S~n*Tree)q(EZ)p(36"
	c := New(testParser(), destination)
	out := c.Convert(context.Background(), state.Record{Ref: "d", URL: rawURL})

	require.True(t, out.Success, out.ErrorReason)
	assert.True(t, out.Partial())
	assert.Equal(t, []string{
		"foo=bar",
		`rl_features[1]=unsupported geometry type "q"`,
		"rl_features=p(36",
	}, out.UnconvertibleFragments)

	_, extended, err := geogirafe.Decode(out.ConvertedURL)
	require.NoError(t, err)
	require.Len(t, extended.Drawing, 1)
	assert.Equal(t, "Tree", extended.Drawing[0].Name)

	feature, err := geojson.UnmarshalFeature(extended.Drawing[0].GeoJSON)
	require.NoError(t, err)
	pt, ok := feature.Geometry.(orb.Point)
	require.True(t, ok)
	assert.InDelta(t, 2559137.7, pt.X(), 1e-6)
	assert.InDelta(t, 1212133.8, pt.Y(), 1e-6)
	assert.Equal(t, "Tree", feature.Properties["n"])
}

func TestConvertNonFiniteNumbersArePartial(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"nan position", "map_x=NaN&map_y=200&map_zoom=3&baselayer_ref=ortho", []string{"map_x=NaN", "map_y=200", "map_zoom=3"}},
		{"infinite position", "map_x=Inf&map_y=200&map_zoom=3&baselayer_ref=ortho", []string{"map_x=Inf", "map_y=200", "map_zoom=3"}},
		{"nan stroke width", "baselayer_ref=ortho&rl_features=p(36zth-ngu4S~n*x~strokeWidth*NaN)", nil},
	}
	c := New(testParser(), destination)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := c.Convert(context.Background(), state.Record{Ref: "n", URL: origin + "/theme/Forestry?" + tt.query})
			require.True(t, out.Success, out.ErrorReason)
			assert.Equal(t, tt.want, out.UnconvertibleFragments)

			primary, _, err := geogirafe.Decode(out.ConvertedURL)
			require.NoError(t, err)
			assert.Equal(t, 7, primary.Basemap)
			require.Len(t, primary.Layers, 1)
			assert.Equal(t, 1, primary.Layers[0].ID)
		})
	}
}

func TestConvertOriginMismatchIsSkipped(t *testing.T) {
	c := New(testParser(), destination)
	out := c.Convert(context.Background(), state.Record{Ref: "x", URL: "https://elsewhere/theme/Forestry", Expected: "e"})

	assert.False(t, out.Success)
	assert.True(t, out.Skipped())
	assert.Equal(t, state.KindOriginMismatch, out.ErrorKind)
	assert.Equal(t, ngeo.ErrOriginMismatch.Error(), out.ErrorReason)
	assert.Equal(t, "e", out.Expected)
	assert.Empty(t, out.ConvertedURL)
}

func TestConvertParseErrorFails(t *testing.T) {
	bad := origin + "/%zz"
	c := New(testParser(), destination)
	out := c.Convert(context.Background(), state.Record{Ref: "bad", URL: bad})

	assert.False(t, out.Success)
	assert.Equal(t, state.KindFailed, out.ErrorKind)
	assert.Contains(t, out.ErrorReason, "failed to parse url")
}

func TestConvertCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := New(testParser(), destination).Convert(ctx, state.Record{Ref: "c", URL: scenarioURL})
	assert.Equal(t, state.KindFailed, out.ErrorKind)
	assert.Equal(t, context.Canceled.Error(), out.ErrorReason)
}

func TestConvertExpectedMatch(t *testing.T) {
	c := New(testParser(), destination)
	first := c.Convert(context.Background(), state.Record{Ref: "a", URL: scenarioURL})
	require.True(t, first.Success)

	again := c.Convert(context.Background(), state.Record{Ref: "a", URL: scenarioURL, Expected: first.ConvertedURL})
	match, ok := again.ExpectedMatch()
	assert.True(t, ok)
	assert.True(t, match)

	wrong := c.Convert(context.Background(), state.Record{Ref: "a", URL: scenarioURL, Expected: destination + "#x-y"})
	match, ok = wrong.ExpectedMatch()
	assert.True(t, ok)
	assert.False(t, match)
}

func TestConvertBatchIsolatesFailures(t *testing.T) {
	parser := stubParser{
		inner:  testParser(),
		fail:   map[string]error{origin + "/fail": errors.New("boom")},
		panics: map[string]bool{origin + "/panic": true},
	}
	records := []state.Record{
		{Ref: "1", URL: scenarioURL},
		{Ref: "2", URL: origin + "/panic"},
		{Ref: "3", URL: "https://elsewhere/"},
		{Ref: "4", URL: origin + "/fail"},
		{Ref: "5", URL: scenarioURL + "&extra=1"},
	}

	rec := metrics.New()
	c := New(parser, destination, WithMetrics(rec))
	outcomes, stats := c.ConvertBatch(context.Background(), records)

	require.Len(t, outcomes, len(records))
	for i, o := range outcomes {
		assert.Equal(t, records[i].Ref, o.Ref)
	}
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, "panic: catalog corrupted", outcomes[1].ErrorReason)
	assert.Equal(t, state.KindFailed, outcomes[1].ErrorKind)
	assert.True(t, outcomes[2].Skipped())
	assert.Equal(t, "boom", outcomes[3].ErrorReason)
	assert.True(t, outcomes[4].Partial())

	assert.Equal(t, state.Stats{Total: 5, Converted: 2, Skipped: 1, Failed: 2}, stats)
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.Conversions.WithLabelValues(metrics.StatusFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Conversions.WithLabelValues(metrics.StatusPartial)))
}

func TestConvertBatchConcurrentKeepsOrderAndLocalCounters(t *testing.T) {
	records := make([]state.Record, 40)
	for i := range records {
		records[i] = state.Record{
			Ref: fmt.Sprintf("r%02d", i),
			URL: origin + "/theme/Forestry?tree_groups=Trees&tree_group_layers_Trees=oak",
		}
	}
	c := New(testParser(), destination, WithWorkers(8))
	outcomes, stats := c.ConvertBatch(context.Background(), records)

	assert.Equal(t, 40, stats.Converted)
	first := outcomes[0].ConvertedURL
	for i, o := range outcomes {
		assert.Equal(t, records[i].Ref, o.Ref)
		assert.Equal(t, first, o.ConvertedURL, "order counters must not leak between records")
	}
}

func TestConvertLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := New(testParser(), destination, WithLogger(zap.New(core)))

	c.Convert(context.Background(), state.Record{Ref: "p", URL: scenarioURL + "&extra=1"})
	c.Convert(context.Background(), state.Record{Ref: "s", URL: "https://elsewhere/"})

	dumps := logs.FilterMessage("parsed source state").All()
	require.Len(t, dumps, 1)
	assert.True(t, strings.Contains(dumps[0].ContextMap()["state"].(string), "ThemeName"))

	warn := logs.FilterMessage("record partially converted").All()
	require.Len(t, warn, 1)
	assert.Equal(t, zapcore.WarnLevel, warn[0].Level)
	assert.Equal(t, 1, logs.FilterMessage("record skipped").Len())
}
