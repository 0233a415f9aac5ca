package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ThemesDocument is the subset of a geoportal themes.json response the converter reads.
type ThemesDocument struct {
	Themes           []ThemeNode `json:"themes"`
	BackgroundLayers []ThemeNode `json:"background_layers"`
	Errors           []string    `json:"errors"`
}

// ThemeNode is a theme, group or layer in a themes.json tree. Nodes with children are
// groups.
type ThemeNode struct {
	ID       int         `json:"id"`
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Children []ThemeNode `json:"children"`
}

// ThemesProvider fetches the catalog from a geoportal themes endpoint.
type ThemesProvider struct {
	HTTPClient *http.Client
	URL        string
}

// NewThemesProvider creates a provider with the given request timeout.
func NewThemesProvider(rawURL string, timeout time.Duration) *ThemesProvider {
	return &ThemesProvider{
		HTTPClient: &http.Client{Timeout: timeout},
		URL:        rawURL,
	}
}

func (p *ThemesProvider) Entries(ctx context.Context) ([]Entry, error) {
	var doc ThemesDocument
	if err := p.fetchAndDecode(ctx, &doc); err != nil {
		return nil, err
	}
	return Flatten(doc), nil
}

func (p *ThemesProvider) fetchAndDecode(ctx context.Context, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", p.URL, err)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		if urlErr, ok := err.(*url.Error); ok && urlErr.Timeout() {
			return fmt.Errorf("request timed out fetching themes from %s: %w", p.URL, err)
		}
		return fmt.Errorf("failed to fetch themes from %s: %w", p.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-OK HTTP status %d from %s", resp.StatusCode, p.URL)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to parse themes JSON from %s: %w", p.URL, err)
	}
	return nil
}

// Flatten turns a themes document into entries, depth first, each carrying the ids of
// the theme and groups above it. Background layers become top-level basemaps.
func Flatten(doc ThemesDocument) []Entry {
	var entries []Entry
	var visit func(node ThemeNode, path []int, kind Kind)
	visit = func(node ThemeNode, path []int, kind Kind) {
		entries = append(entries, Entry{
			ID:          node.ID,
			Name:        node.Name,
			Kind:        kind,
			AncestorIDs: append([]int{}, path...),
		})
		childPath := append(append([]int{}, path...), node.ID)
		for _, child := range node.Children {
			childKind := KindLayer
			if len(child.Children) > 0 || child.Type == "group" {
				childKind = KindGroup
			}
			visit(child, childPath, childKind)
		}
	}

	for _, theme := range doc.Themes {
		visit(theme, nil, KindTheme)
	}
	for _, bg := range doc.BackgroundLayers {
		visit(bg, nil, KindBasemap)
	}
	return entries
}
