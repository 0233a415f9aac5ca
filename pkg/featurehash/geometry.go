package featurehash

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is a geometry type of the feature hash format.
type Kind int

const (
	KindUnknown Kind = iota
	KindPoint
	KindLineString
	KindMultiLineString
	KindPolygon
	KindMultiPolygon
)

var kindNames = map[Kind]string{
	KindUnknown:         "Unknown",
	KindPoint:           "Point",
	KindLineString:      "LineString",
	KindMultiLineString: "MultiLineString",
	KindPolygon:         "Polygon",
	KindMultiPolygon:    "MultiPolygon",
}

var kindCodes = map[byte]Kind{
	'p': KindPoint,
	'l': KindLineString,
	'L': KindMultiLineString,
	'a': KindPolygon,
	'A': KindMultiPolygon,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// KindFromCode maps a type character to a Kind; unknown characters give KindUnknown.
func KindFromCode(code byte) Kind {
	return kindCodes[code]
}

// Code returns the type character of k, or 0 for KindUnknown.
func (k Kind) Code() byte {
	for code, kind := range kindCodes {
		if kind == k {
			return code
		}
	}
	return 0
}

// Point is an x/y pair in the fixed planar coordinate system.
type Point [2]float64

// Geometry is a decoded geometry. Points holds every decoded pair in order.
type Geometry struct {
	Kind   Kind
	Points []Point
}

// Coordinates returns the nested coordinate array for the geometry kind. A single pair
// stays flat whatever the kind; polygon kinds wrap their ring once.
func (g Geometry) Coordinates() interface{} {
	if len(g.Points) == 1 {
		return g.Points[0]
	}
	pts := g.Points
	if pts == nil {
		pts = []Point{}
	}
	switch g.Kind {
	case KindPolygon, KindMultiPolygon:
		return [][]Point{pts}
	default:
		return pts
	}
}

func (g Geometry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        string      `json:"type"`
		Coordinates interface{} `json:"coordinates"`
	}{
		Type:        g.Kind.String(),
		Coordinates: g.Coordinates(),
	})
}

// WKT renders the geometry as Well-Known Text, closing polygon rings. It returns an
// empty string when there is nothing to draw.
func (g Geometry) WKT() string {
	if len(g.Points) == 0 {
		return ""
	}
	if len(g.Points) == 1 || g.Kind == KindPoint {
		return fmt.Sprintf("POINT (%s)", formatPoint(g.Points[0]))
	}

	switch g.Kind {
	case KindLineString:
		return fmt.Sprintf("LINESTRING (%s)", formatPoints(g.Points))
	case KindMultiLineString:
		return fmt.Sprintf("MULTILINESTRING ((%s))", formatPoints(g.Points))
	case KindPolygon:
		return fmt.Sprintf("POLYGON ((%s))", formatPoints(closeRing(g.Points)))
	case KindMultiPolygon:
		return fmt.Sprintf("MULTIPOLYGON (((%s)))", formatPoints(closeRing(g.Points)))
	default:
		return ""
	}
}

func closeRing(pts []Point) []Point {
	if pts[0] == pts[len(pts)-1] {
		return pts
	}
	ring := make([]Point, 0, len(pts)+1)
	ring = append(ring, pts...)
	return append(ring, pts[0])
}

func formatPoint(p Point) string {
	return fmt.Sprintf("%.1f %.1f", p[0], p[1])
}

func formatPoints(pts []Point) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = formatPoint(p)
	}
	return strings.Join(parts, ", ")
}
