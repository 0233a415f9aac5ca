// Copyright (c) 2025 Sudo-Ivan
// Licensed under the MIT License

// Package drawing turns decoded drawing features into the presentation features the
// destination viewer stores in its extended state.
package drawing

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/Sudo-Ivan/permalink-converter/pkg/featurehash"
	"github.com/Sudo-Ivan/permalink-converter/pkg/state"
)

// Map converts decoded features, keeping their order. Features whose geometry type is
// not supported, or that carry no coordinates, are left out and described in dropped.
//
// Parameters:
//   - features: Features in decode order
//
// Returns:
//   - []state.PresentationFeature: One presentation feature per kept feature
//   - []string: A fragment per dropped feature, usable as an unconvertible part
func Map(features []featurehash.DecodedFeature) ([]state.PresentationFeature, []string) {
	out := make([]state.PresentationFeature, 0, len(features))
	var dropped []string

	for i, f := range features {
		pf, err := mapFeature(i, f)
		if err != nil {
			dropped = append(dropped, fmt.Sprintf("%s[%d]=%s", DroppedFragmentParam, i, err))
			continue
		}
		out = append(out, pf)
	}
	return out, dropped
}

// ShapeName returns the display name of a shape kind.
func ShapeName(shape int) string {
	if name, ok := shapeNames[shape]; ok {
		return name
	}
	return strconv.Itoa(shape)
}

// ShapeFor maps a geometry kind to a shape kind.
func ShapeFor(kind featurehash.Kind) (int, bool) {
	switch kind {
	case featurehash.KindPoint:
		return ShapePoint, true
	case featurehash.KindLineString, featurehash.KindMultiLineString:
		return ShapePolyline, true
	case featurehash.KindPolygon, featurehash.KindMultiPolygon:
		return ShapePolygon, true
	default:
		return 0, false
	}
}

func mapFeature(index int, f featurehash.DecodedFeature) (state.PresentationFeature, error) {
	shape, ok := ShapeFor(f.Geometry.Kind)
	if !ok {
		return state.PresentationFeature{}, fmt.Errorf("unsupported geometry type %q", string(f.Code))
	}
	if len(f.Geometry.Points) == 0 {
		return state.PresentationFeature{}, fmt.Errorf("empty %s geometry", f.Geometry.Kind)
	}

	payload, err := GeoJSON(f)
	if err != nil {
		return state.PresentationFeature{}, err
	}

	attrs := f.Attributes
	color := DefaultColor
	if c := attrs[AttrColor]; c != "" {
		color = c
	}

	strokeColor := color
	if attrs[AttrText] == TrueValue {
		strokeColor = TransparentColor
	}

	name := attrs[AttrName]
	if name == "" {
		name = fmt.Sprintf("%s %d", ShapeName(shape), index+1)
	}

	return state.PresentationFeature{
		Name:            name,
		StrokeColor:     strokeColor,
		StrokeWidth:     strokeWidth(shape, f.Style),
		FillColor:       fillColor(color, attrs[AttrOpacity]),
		LineStyle:       LineStyleFull,
		ArrowStyle:      lookup(arrowStyles, attrs[AttrArrowStyle], ArrowStyleNone),
		ArrowPosition:   lookup(arrowPositions, attrs[AttrArrowPosition], ArrowPositionLast),
		LabelFontSize:   LabelFontSize,
		MeasureFontSize: MeasureFontSize,
		FontFamily:      FontFamily,
		GeoJSON:         payload,
		ShowLabel:       attrs[AttrShowLabel] == TrueValue,
		ShowMeasure:     attrs[AttrShowMeasure] == TrueValue,
		LabelColor:      TextColor,
		MeasureColor:    TextColor,
		ShapeKind:       shape,
	}, nil
}

// GeoJSON encodes a decoded feature as a GeoJSON Feature whose properties are the
// feature attributes. A single coordinate pair always yields a Point.
func GeoJSON(f featurehash.DecodedFeature) (json.RawMessage, error) {
	geom := toOrb(f.Geometry)
	if geom == nil {
		return nil, fmt.Errorf("no geometry for %s", f.Geometry.Kind)
	}

	feature := geojson.NewFeature(geom)
	for k, v := range f.Attributes {
		feature.Properties[k] = v
	}

	raw, err := json.Marshal(feature)
	if err != nil {
		return nil, fmt.Errorf("failed to encode geojson: %w", err)
	}
	return raw, nil
}

func toOrb(g featurehash.Geometry) orb.Geometry {
	if len(g.Points) == 0 {
		return nil
	}
	if len(g.Points) == 1 || g.Kind == featurehash.KindPoint {
		return orb.Point(g.Points[0])
	}

	line := make(orb.LineString, len(g.Points))
	for i, p := range g.Points {
		line[i] = orb.Point(p)
	}

	switch g.Kind {
	case featurehash.KindLineString:
		return line
	case featurehash.KindMultiLineString:
		return orb.MultiLineString{line}
	case featurehash.KindPolygon:
		return orb.Polygon{closeRing(line)}
	case featurehash.KindMultiPolygon:
		return orb.MultiPolygon{orb.Polygon{closeRing(line)}}
	default:
		return nil
	}
}

func closeRing(line orb.LineString) orb.Ring {
	ring := orb.Ring(line)
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring
}

// fillColor appends the opacity as a two-digit alpha byte. An alpha already present
// on the color is replaced.
func fillColor(color, opacity string) string {
	alpha := DefaultFillOpacity
	if opacity != "" {
		if v, err := strconv.ParseFloat(opacity, 64); err == nil && !math.IsNaN(v) {
			alpha = math.Min(1, math.Max(0, v))
		}
	}
	if strings.HasPrefix(color, "#") && len(color) == 9 {
		color = color[:7]
	}
	return fmt.Sprintf("%s%02X", color, int(math.Round(alpha*255)))
}

func strokeWidth(shape int, style map[string]string) float64 {
	if raw, ok := style[StyleStrokeWidth]; ok {
		if w, err := strconv.ParseFloat(raw, 64); err == nil && w >= 0 && !math.IsInf(w, 0) {
			return w
		}
	}
	if shape == ShapePoint {
		return PointStrokeWidth
	}
	return DefaultStrokeWidth
}

func lookup(table map[string]string, code, fallback string) string {
	if v, ok := table[code]; ok {
		return v
	}
	return fallback
}
