// Copyright (c) 2024 Sudo-Ivan
// Licensed under the MIT License

package export

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/Sudo-Ivan/permalink-converter/pkg/state"
)

// GPX renders features as a GPX document.
// The function handles:
//   - Point geometries as waypoints
//   - LineString geometries as tracks
//   - Polygon geometries as track boundaries
//
// Multi geometries yield one track segment per part.
//
// Parameters:
//   - features: Drawing features of a converted permalink
//   - documentName: Name to be used in the GPX metadata
//
// Returns:
//   - string: GPX document as a string
//   - error: Any error that occurred while reading the features
func GPX(features []state.PresentationFeature, documentName string) (string, error) {
	items, err := decode(features)
	if err != nil {
		return "", err
	}

	var waypoints strings.Builder
	var tracks strings.Builder

	for _, it := range items {
		name := getFeatureName(it.feature)
		desc := formatProperties(it.properties, PropertySepText)

		switch v := it.geometry.(type) {
		case orb.Point:
			waypoints.WriteString(fmt.Sprintf(`
    <wpt lat="%.10f" lon="%.10f">
        <name>%s</name>
        <desc>%s</desc>
    </wpt>`, v[1], v[0], escapeXML(name), escapeXML(desc)))
		case orb.LineString:
			writeTrack(&tracks, name, desc, v)
		case orb.Polygon:
			if len(v) > 0 {
				writeTrack(&tracks, name+" (Boundary)", desc, v[0])
			}
		case orb.MultiLineString:
			segs := make([][]orb.Point, len(v))
			for i, l := range v {
				segs[i] = l
			}
			writeTrack(&tracks, name, desc, segs...)
		case orb.MultiPolygon:
			segs := make([][]orb.Point, 0, len(v))
			for _, p := range v {
				if len(p) > 0 {
					segs = append(segs, p[0])
				}
			}
			writeTrack(&tracks, name+" (Boundary)", desc, segs...)
		}
	}

	gpxContent := waypoints.String() + tracks.String()

	gpx := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="permalink-converter"
    xmlns="http://www.topografix.com/GPX/1/1"
    xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
    xsi:schemaLocation="http://www.topografix.com/GPX/1/1 http://www.topografix.com/GPX/1/1/gpx.xsd">
    <metadata>
        <name>%s</name>
    </metadata>%s
</gpx>`, escapeXML(documentName), gpxContent)

	return gpx, nil
}

func writeTrack(b *strings.Builder, name, desc string, segments ...[]orb.Point) {
	b.WriteString(fmt.Sprintf(`
    <trk>
        <name>%s</name>
        <desc>%s</desc>`, escapeXML(name), escapeXML(desc)))
	for _, seg := range segments {
		b.WriteString(`
        <trkseg>`)
		for _, c := range seg {
			b.WriteString(fmt.Sprintf(GPXPointFormat, c[1], c[0]))
		}
		b.WriteString(`
        </trkseg>`)
	}
	b.WriteString(`
    </trk>`)
}
