package drawing

// Shape kinds understood by the destination viewer.
const (
	ShapePoint = iota
	ShapePolyline
	ShapePolygon
	ShapeSquare
	ShapeRectangle
	ShapeDisk
	ShapeFreehandPolyline
	ShapeFreehandPolygon
)

const (
	DefaultColor         = "#3399CC"
	DefaultFillOpacity   = 0.2
	TransparentColor     = "#00000000"
	TextColor            = "#000000"
	FontFamily           = "Arial"
	LabelFontSize        = 14
	MeasureFontSize      = 12
	LineStyleFull        = "full"
	PointStrokeWidth     = 12
	DefaultStrokeWidth   = 2
	ArrowStyleNone       = "none"
	ArrowPositionLast    = "last"
	AttrName             = "n"
	AttrColor            = "c"
	AttrOpacity          = "o"
	AttrText             = "t"
	AttrShowLabel        = "b"
	AttrShowMeasure      = "m"
	AttrArrowStyle       = "as"
	AttrArrowPosition    = "ap"
	StyleStrokeWidth     = "strokeWidth"
	TrueValue            = "true"
	DroppedFragmentParam = "rl_features"
)

var shapeNames = map[int]string{
	ShapePoint:            "Point",
	ShapePolyline:         "Polyline",
	ShapePolygon:          "Polygon",
	ShapeSquare:           "Square",
	ShapeRectangle:        "Rectangle",
	ShapeDisk:             "Disk",
	ShapeFreehandPolyline: "FreehandPolyline",
	ShapeFreehandPolygon:  "FreehandPolygon",
}

var arrowStyles = map[string]string{
	"0": ArrowStyleNone,
	"1": "default",
	"2": "circle",
	"3": "square",
}

var arrowPositions = map[string]string{
	"0": ArrowPositionLast,
	"1": "first",
	"2": "both",
	"3": "whole",
}
