// Package state holds the data model shared by the parser, the composer and the
// conversion pipeline.
package state

import "encoding/json"

// MapPosition is the map view as written by the source dialect.
type MapPosition struct {
	X    float64
	Y    float64
	Zoom int
}

// View is the map view as expected by the destination dialect.
type View struct {
	Center     [2]float64
	Resolution *float64
}

// Toggle carries the per-item enable/opacity values found in a source URL.
type Toggle struct {
	Enabled *bool
	Opacity *float64
}

// SourceState is the structured form of one source URL. It is built once by the
// parser and never mutated afterwards.
type SourceState struct {
	Position            *MapPosition
	BackgroundLayerName string
	ThemeName           string
	LayerNames          []string
	GroupMemberships    map[string][]string
	Toggles             map[string]Toggle
	DimensionOverrides  map[string]string
	LegacyOpacity       map[string]float64
	GeometryToken       string
	UnresolvedFragments []string
}

// HasGeometry reports whether the URL carried a drawing token.
func (s *SourceState) HasGeometry() bool {
	return s.GeometryToken != ""
}

// PresentationFeature is one drawing feature in the destination dialect. The JSON
// keys are the compact names the destination viewer reads.
type PresentationFeature struct {
	Name            string          `json:"n"`
	StrokeColor     string          `json:"sc"`
	StrokeWidth     float64         `json:"sw"`
	FillColor       string          `json:"fc"`
	LineStyle       string          `json:"ls"`
	ArrowStyle      string          `json:"as"`
	ArrowPosition   string          `json:"ap"`
	LabelFontSize   int             `json:"nfz"`
	MeasureFontSize int             `json:"mfz"`
	FontFamily      string          `json:"f"`
	GeoJSON         json.RawMessage `json:"g"`
	ShowLabel       bool            `json:"dn"`
	ShowMeasure     bool            `json:"dm"`
	LabelColor      string          `json:"nc"`
	MeasureColor    string          `json:"mc"`
	Selected        bool            `json:"s"`
	ShapeKind       int             `json:"t"`
}

// DestinationState is the composed state ready for serialization.
type DestinationState struct {
	View       *View
	BasemapID  int
	Layers     []*LayerNode
	Opacity    map[string]float64
	Dimensions map[string]string
	Drawing    []PresentationFeature
}

// Record is one stored permalink.
type Record struct {
	Ref      string `json:"ref"`
	URL      string `json:"url"`
	Expected string `json:"expected,omitempty"`
}

// ErrorKind classifies an unsuccessful outcome.
type ErrorKind string

const (
	KindNone           ErrorKind = ""
	KindOriginMismatch ErrorKind = "origin_mismatch"
	KindFailed         ErrorKind = "failed"
)

// Outcome is the result of converting one record.
type Outcome struct {
	Ref                    string
	Success                bool
	OriginalURL            string
	ConvertedURL           string
	ErrorKind              ErrorKind
	ErrorReason            string
	UnconvertibleFragments []string
	Expected               string
}

// Skipped reports whether the record was deliberately not converted.
func (o Outcome) Skipped() bool {
	return o.ErrorKind == KindOriginMismatch
}

// Partial reports a successful conversion that left fragments behind.
func (o Outcome) Partial() bool {
	return o.Success && len(o.UnconvertibleFragments) > 0
}

// ExpectedMatch compares the converted URL with the expected one. ok is false when
// the record carries no expectation.
func (o Outcome) ExpectedMatch() (match bool, ok bool) {
	if o.Expected == "" {
		return false, false
	}
	return o.ConvertedURL == o.Expected, true
}

// Stats aggregates a batch run.
type Stats struct {
	Total     int
	Converted int
	Skipped   int
	Failed    int
}

// Tally counts outcomes.
func Tally(outcomes []Outcome) Stats {
	s := Stats{Total: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.Success:
			s.Converted++
		case o.Skipped():
			s.Skipped++
		default:
			s.Failed++
		}
	}
	return s
}
