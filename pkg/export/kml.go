package export

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/Sudo-Ivan/permalink-converter/pkg/state"
)

// KML renders features as a KML document, one styled placemark per feature.
func KML(features []state.PresentationFeature, documentName string) (string, error) {
	items, err := decode(features)
	if err != nil {
		return "", err
	}

	var placemarks strings.Builder
	for _, it := range items {
		geometryString := kmlGeometry(it.geometry)
		if geometryString == "" {
			continue
		}
		placemarks.WriteString(fmt.Sprintf(`
        <Placemark>
            <name>%s</name>
            <description><![CDATA[%s]]></description>
            %s
            %s
        </Placemark>`, escapeXML(getFeatureName(it.feature)), formatProperties(it.properties), kmlStyle(it.feature), geometryString))
	}

	kml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
    <Document>
        <name>%s</name>%s
    </Document>
</kml>`, escapeXML(documentName), placemarks.String())

	return kml, nil
}

func kmlGeometry(g orb.Geometry) string {
	switch v := g.(type) {
	case orb.Point:
		return fmt.Sprintf("<Point><coordinates>"+KMLCoordFormat+"</coordinates></Point>", v[0], v[1])
	case orb.LineString:
		return fmt.Sprintf("<LineString><coordinates>%s</coordinates></LineString>", kmlCoords(v))
	case orb.Polygon:
		if len(v) == 0 {
			return ""
		}
		var b strings.Builder
		b.WriteString("<Polygon>")
		b.WriteString(fmt.Sprintf("<outerBoundaryIs><LinearRing><coordinates>%s</coordinates></LinearRing></outerBoundaryIs>", kmlCoords(v[0])))
		for _, inner := range v[1:] {
			b.WriteString(fmt.Sprintf("<innerBoundaryIs><LinearRing><coordinates>%s</coordinates></LinearRing></innerBoundaryIs>", kmlCoords(inner)))
		}
		b.WriteString("</Polygon>")
		return b.String()
	case orb.MultiLineString:
		parts := make([]string, 0, len(v))
		for _, l := range v {
			parts = append(parts, kmlGeometry(l))
		}
		return "<MultiGeometry>" + strings.Join(parts, "") + "</MultiGeometry>"
	case orb.MultiPolygon:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			parts = append(parts, kmlGeometry(p))
		}
		return "<MultiGeometry>" + strings.Join(parts, "") + "</MultiGeometry>"
	default:
		return ""
	}
}

func kmlCoords(pts []orb.Point) string {
	coordStr := make([]string, len(pts))
	for i, c := range pts {
		coordStr[i] = fmt.Sprintf(KMLCoordFormat, c[0], c[1])
	}
	return strings.Join(coordStr, KMLSpace)
}

func kmlStyle(f state.PresentationFeature) string {
	return fmt.Sprintf("<Style><LineStyle><color>%s</color><width>%g</width></LineStyle><PolyStyle><color>%s</color></PolyStyle></Style>",
		kmlColor(f.StrokeColor), f.StrokeWidth, kmlColor(f.FillColor))
}

// kmlColor turns #RRGGBB or #RRGGBBAA into KML's aabbggrr. Anything else is opaque
// white.
func kmlColor(hex string) string {
	hex = strings.ToLower(strings.TrimPrefix(hex, "#"))
	alpha := opaqueAlpha
	switch len(hex) {
	case 8:
		alpha = hex[6:8]
	case 6:
	default:
		return opaqueAlpha + "ffffff"
	}
	return alpha + hex[4:6] + hex[2:4] + hex[0:2]
}
