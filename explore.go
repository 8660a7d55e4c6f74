package oddish

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Explorer renders toolkit objects as Leaflet maps under an explore
// directory and, by default, opens them in the configured browser.
type Explorer struct {
	exploreDir   string
	autoOpen     bool
	browserOpts  []BrowserOption
	overpassOpts []OverpassOption
	log          *zap.Logger
}

// ExplorerOption is a functional option for configuring an Explorer.
type ExplorerOption func(*Explorer)

// WithExploreDir sets the directory rendered maps are written to.
func WithExploreDir(dir string) ExplorerOption {
	return func(e *Explorer) {
		e.exploreDir = dir
	}
}

// WithAutoOpen controls whether rendered maps are opened in the browser.
func WithAutoOpen(open bool) ExplorerOption {
	return func(e *Explorer) {
		e.autoOpen = open
	}
}

// WithExplorerBrowser sets the browser options used when opening maps.
func WithExplorerBrowser(opts ...BrowserOption) ExplorerOption {
	return func(e *Explorer) {
		e.browserOpts = opts
	}
}

// WithExplorerOverpass sets the Overpass options used for street queries.
func WithExplorerOverpass(opts ...OverpassOption) ExplorerOption {
	return func(e *Explorer) {
		e.overpassOpts = opts
	}
}

// WithExplorerLogger sets the explorer's logger.
func WithExplorerLogger(l *zap.Logger) ExplorerOption {
	return func(e *Explorer) {
		e.log = l
	}
}

// NewExplorer creates an Explorer writing to ./data/explore that opens maps
// in the browser after rendering.
func NewExplorer(opts ...ExplorerOption) *Explorer {
	e := &Explorer{
		exploreDir: filepath.Join("data", "explore"),
		autoOpen:   true,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// save renders the map into the explore dir and opens it when configured.
func (e *Explorer) save(m *Map, name string) (string, error) {
	path := filepath.Join(e.exploreDir, slug(name)+".html")
	if err := m.Save(path); err != nil {
		return "", err
	}
	e.log.Info("rendered map", zap.String("path", path))

	if e.autoOpen {
		if err := OpenBrowser(path, e.browserOpts...); err != nil {
			return path, fmt.Errorf("opening map: %w", err)
		}
	}
	return path, nil
}

// ShowPolygon renders a single geometry as a filled polygon map.
func (e *Explorer) ShowPolygon(geometry MultiPolygon, name string) (string, error) {
	m := NewMap(name)
	m.AddLayer("polygon", NewFeatureCollection(PolygonFeature(geometry, map[string]any{"name": name})),
		LayerStyle{Color: "#3388ff", Weight: 2, FillOpacity: 0.2}, []string{"name"})
	return e.save(m, name)
}

// ShowHierarchy renders every hierarchy entry with name tooltips, the
// equivalent of plotting the whole polygon table at once.
func (e *Explorer) ShowHierarchy(h *Hierarchy) (string, error) {
	m := NewMap("polygons")
	m.AddLayer("polygons", HierarchyFeatures(h),
		LayerStyle{Color: "#3388ff", Weight: 1, FillOpacity: 0.15},
		[]string{"name", "geohash"})
	return e.save(m, "polygons")
}

// ViewSection fetches the walkable street network for a named hierarchy
// entry and renders it over the section outline. Unknown names produce a
// "did you mean" error using the closest display name.
func (e *Explorer) ViewSection(ctx context.Context, h *Hierarchy, name string) (string, error) {
	entry, ok := h.ByName(name)
	if !ok {
		closest, _ := h.ClosestName(name)
		return "", fmt.Errorf("unknown section %q (did you mean %q?)", name, closest.Name)
	}

	network, err := FetchStreets(ctx, entry.Polygon, e.overpassOpts...)
	if err != nil {
		return "", fmt.Errorf("fetching streets for %s: %w", entry.Name, err)
	}
	return e.viewStreets(network, entry)
}

// ViewStreets renders an already-fetched street network.
func (e *Explorer) ViewStreets(network *StreetNetwork, name string) (string, error) {
	return e.viewStreets(network, HierarchyEntry{Name: name})
}

func (e *Explorer) viewStreets(network *StreetNetwork, entry HierarchyEntry) (string, error) {
	m := NewMap(entry.Name)
	if len(entry.Polygon) > 0 {
		m.AddLayer("outline", NewFeatureCollection(PolygonFeature(entry.Polygon, map[string]any{"name": entry.Name})),
			LayerStyle{Color: "#888888", Weight: 1, FillOpacity: 0.05}, nil)
	}
	m.AddLayer("streets", StreetFeatures(network),
		LayerStyle{Color: "#d73027", Weight: 2}, []string{"name", "highway"})
	return e.save(m, entry.Name)
}

// ShowRun renders a run's track line plus per-point markers with
// time/speed/elevation tooltips.
func (e *Explorer) ShowRun(r *Run) (string, error) {
	m := NewMap(r.ID)
	m.AddLayer("track", NewFeatureCollection(RouteLineFeature(r.Route, map[string]any{"name": r.ID})),
		LayerStyle{Color: "#3388ff", Weight: 3}, nil)
	m.AddLayer("points", RoutePointFeatures(r.Route),
		LayerStyle{Color: "#1a9850", FillOpacity: 0.8, Radius: 3},
		[]string{"time", "speed", "ele"})
	return e.save(m, r.ID)
}

// slug converts a display name into a safe file name.
func slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}
