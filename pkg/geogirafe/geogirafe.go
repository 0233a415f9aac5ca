// Copyright (c) 2025 Sudo-Ivan
// Licensed under the MIT License

// Package geogirafe composes and serializes the map state read by GeoGirafe viewers.
package geogirafe

import (
	"encoding/json"
	"fmt"

	"github.com/Sudo-Ivan/permalink-converter/pkg/ngeo"
	"github.com/Sudo-Ivan/permalink-converter/pkg/state"
)

// PrimaryState is the JSON of the first fragment half.
type PrimaryState struct {
	Position   *Position          `json:"position,omitempty"`
	Basemap    int                `json:"basemap,omitempty"`
	Layers     []Layer            `json:"layers"`
	Opacity    map[string]float64 `json:"opacity,omitempty"`
	Dimensions map[string]string  `json:"dimensions,omitempty"`
}

// Position is the map view.
type Position struct {
	Center     [2]float64 `json:"center"`
	Resolution *float64   `json:"resolution,omitempty"`
}

// Layer is one node of the shared layer tree. Flags are written as 0 or 1.
type Layer struct {
	ID                  int      `json:"id"`
	Order               int      `json:"order"`
	Checked             int      `json:"checked"`
	IsExpanded          int      `json:"isExpanded"`
	Opacity             *float64 `json:"opacity,omitempty"`
	Children            []Layer  `json:"children"`
	ExcludedChildrenIDs []int    `json:"excludedChildrenIds"`
}

// ExtendedState is the JSON of the second fragment half. It encodes as {} when there
// is no drawing.
type ExtendedState struct {
	Drawing []state.PresentationFeature `json:"drawing,omitempty"`
}

// Compose assembles the destination state from what the parser resolved. It does not
// consult the catalog again.
func Compose(res *ngeo.Result, drawing []state.PresentationFeature) state.DestinationState {
	dst := state.DestinationState{
		View:       res.View,
		BasemapID:  res.BasemapID,
		Opacity:    res.Source.LegacyOpacity,
		Dimensions: res.Source.DimensionOverrides,
		Drawing:    drawing,
	}
	if res.Tree != nil {
		dst.Layers = res.Tree.Roots()
	}
	return dst
}

// Primary converts a destination state to its primary JSON shape.
func Primary(dst state.DestinationState) PrimaryState {
	p := PrimaryState{
		Basemap:    dst.BasemapID,
		Layers:     layers(dst.Layers),
		Opacity:    dst.Opacity,
		Dimensions: dst.Dimensions,
	}
	if dst.View != nil {
		p.Position = &Position{Center: dst.View.Center, Resolution: dst.View.Resolution}
	}
	return p
}

// Extended converts a destination state to its extended JSON shape.
func Extended(dst state.DestinationState) ExtendedState {
	return ExtendedState{Drawing: dst.Drawing}
}

func layers(nodes []*state.LayerNode) []Layer {
	out := make([]Layer, 0, len(nodes))
	for _, n := range nodes {
		excluded := n.ExcludedChildIDs
		if excluded == nil {
			excluded = []int{}
		}
		out = append(out, Layer{
			ID:                  n.ID,
			Order:               n.Order,
			Checked:             flag(n.Enabled),
			IsExpanded:          flag(n.Expanded),
			Opacity:             n.Opacity,
			Children:            layers(n.Children),
			ExcludedChildrenIDs: excluded,
		})
	}
	return out
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Serialize encodes dst as a fragment and appends it to base.
//
// Parameters:
//   - base: Destination viewer URL, without fragment
//   - dst: The composed state
//
// Returns:
//   - string: <base>#<primary>-<extended>
//   - error: Any error that occurred while encoding
func Serialize(base string, dst state.DestinationState) (string, error) {
	fragment, err := Fragment(dst)
	if err != nil {
		return "", err
	}
	return base + "#" + fragment, nil
}

// Fragment encodes both halves of dst and joins them with Separator.
func Fragment(dst state.DestinationState) (string, error) {
	primary, err := encodeHalf(Primary(dst))
	if err != nil {
		return "", fmt.Errorf("primary state: %w", err)
	}
	extended, err := encodeHalf(Extended(dst))
	if err != nil {
		return "", fmt.Errorf("extended state: %w", err)
	}
	return primary + Separator + extended, nil
}

func encodeHalf(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return Compress(data)
}

// Decode reads a fragment, or a URL carrying one, back into both JSON shapes.
func Decode(fragment string) (PrimaryState, ExtendedState, error) {
	var (
		p PrimaryState
		e ExtendedState
	)
	rawPrimary, rawExtended, err := DecodeFragment(fragment)
	if err != nil {
		return p, e, err
	}
	if err := json.Unmarshal(rawPrimary, &p); err != nil {
		return p, e, fmt.Errorf("failed to unmarshal primary state: %w", err)
	}
	if err := json.Unmarshal(rawExtended, &e); err != nil {
		return p, e, fmt.Errorf("failed to unmarshal extended state: %w", err)
	}
	return p, e, nil
}
