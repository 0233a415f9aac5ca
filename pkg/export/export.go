// Package export writes the drawing of a converted permalink as KML, GPX or GeoJSON
// so it can be checked in a desktop GIS. Coordinates are reprojected from LV95 to
// WGS84.
package export

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/Sudo-Ivan/permalink-converter/pkg/state"
)

// item is a drawing feature with its geometry already in WGS84.
type item struct {
	feature    state.PresentationFeature
	geometry   orb.Geometry
	properties geojson.Properties
}

func decode(features []state.PresentationFeature) ([]item, error) {
	items := make([]item, 0, len(features))
	for i, f := range features {
		gf, err := geojson.UnmarshalFeature(f.GeoJSON)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		if gf.Geometry == nil {
			continue
		}
		items = append(items, item{feature: f, geometry: reproject(gf.Geometry), properties: gf.Properties})
	}
	return items, nil
}

// FormatFor picks the export format from a file extension.
func FormatFor(path string) (string, error) {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case FormatKML, FormatGPX, FormatGeoJSON:
		return ext, nil
	case "json":
		return FormatGeoJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", ext)
	}
}

// Drawing renders features in the given format.
func Drawing(format string, features []state.PresentationFeature, name string) (string, error) {
	switch format {
	case FormatKML:
		return KML(features, name)
	case FormatGPX:
		return GPX(features, name)
	case FormatGeoJSON:
		return GeoJSON(features)
	default:
		return "", fmt.Errorf("unsupported export format %q", format)
	}
}

// GeoJSON renders features as a WGS84 FeatureCollection. The presentation style is
// kept in the properties under the destination viewer's keys.
func GeoJSON(features []state.PresentationFeature) (string, error) {
	items, err := decode(features)
	if err != nil {
		return "", err
	}
	fc := geojson.NewFeatureCollection()
	for _, it := range items {
		gf := geojson.NewFeature(it.geometry)
		for k, v := range it.properties {
			gf.Properties[k] = v
		}
		gf.Properties["name"] = it.feature.Name
		gf.Properties["strokeColor"] = it.feature.StrokeColor
		gf.Properties["strokeWidth"] = it.feature.StrokeWidth
		gf.Properties["fillColor"] = it.feature.FillColor
		fc.Append(gf)
	}
	raw, err := json.Marshal(fc)
	if err != nil {
		return "", fmt.Errorf("failed to encode geojson: %w", err)
	}
	return string(raw), nil
}

// getFeatureName returns the display name of a feature.
func getFeatureName(f state.PresentationFeature) string {
	if f.Name != "" {
		return f.Name
	}
	return DefaultName
}

// formatProperties formats feature attributes, sorted by key.
func formatProperties(props map[string]interface{}, separator ...string) string {
	sep := PropertySepHTML
	if len(separator) > 0 {
		sep = separator[0]
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("<strong>%s</strong>: %s", escapeXML(k), escapeXML(fmt.Sprintf("%v", props[k]))))
	}
	return strings.Join(parts, sep)
}

// escapeXML escapes XML special characters in a string.
func escapeXML(s string) string {
	return strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
		"/", "&#x2F;",
	).Replace(s)
}
