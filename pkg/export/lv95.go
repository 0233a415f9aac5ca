package export

import "github.com/paulmach/orb"

// LV95 false origin of the Swiss projection (EPSG:2056).
const (
	lv95FalseEasting  = 2600000.0
	lv95FalseNorthing = 1200000.0
)

// ToWGS84 converts LV95 easting/northing to WGS84 longitude/latitude with the
// swisstopo approximation, which is accurate to about a metre inside Switzerland.
func ToWGS84(p orb.Point) orb.Point {
	y := (p[0] - lv95FalseEasting) / 1e6
	x := (p[1] - lv95FalseNorthing) / 1e6

	lon := 2.6779094 +
		4.728982*y +
		0.791484*y*x +
		0.1306*y*x*x -
		0.0436*y*y*y
	lat := 16.9023892 +
		3.238272*x -
		0.270978*y*y -
		0.002528*x*x -
		0.0447*y*y*x -
		0.0140*x*x*x

	// The formulas work in units of 10000 seconds.
	return orb.Point{lon * 100 / 36, lat * 100 / 36}
}

// reproject returns a copy of g in WGS84.
func reproject(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Point:
		return ToWGS84(v)
	case orb.LineString:
		return orb.LineString(reprojectPoints(v))
	case orb.Ring:
		return orb.Ring(reprojectPoints(v))
	case orb.Polygon:
		out := make(orb.Polygon, len(v))
		for i, r := range v {
			out[i] = orb.Ring(reprojectPoints(r))
		}
		return out
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(v))
		for i, l := range v {
			out[i] = orb.LineString(reprojectPoints(l))
		}
		return out
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(v))
		for i, p := range v {
			out[i] = reproject(p).(orb.Polygon)
		}
		return out
	default:
		return g
	}
}

func reprojectPoints(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = ToWGS84(p)
	}
	return out
}
