package export

const (
	FormatKML     = "kml"
	FormatGPX     = "gpx"
	FormatGeoJSON = "geojson"

	KMLCoordFormat  = "%.10f,%.10f,0"
	KMLSpace        = " "
	GPXPointFormat  = `<trkpt lat="%.10f" lon="%.10f"></trkpt>`
	DefaultName     = "Feature"
	PropertySepHTML = "<br>"
	PropertySepText = ", "

	opaqueAlpha = "ff"
)
