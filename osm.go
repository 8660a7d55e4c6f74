package oddish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultOverpassEndpoint is the public Overpass API interpreter.
const DefaultOverpassEndpoint = "https://overpass-api.de/api/interpreter"

// WalkableStreetsFilter selects named, publicly walkable streets. It excludes
// footways, paths, service roads and other non-street highway values so the
// result is the set of streets one would actually run or walk along.
const WalkableStreetsFilter = `["highway"]["area"!~"yes"]["access"!~"private"]` +
	`["highway"!~"abandoned|bridleway|bus_guideway|` +
	`motor|unclassified|construction|corridor|cycleway|` +
	`elevator|escalator|footway|no|path|pedestrian|` +
	`planned|platform|proposed|raceway|razed|service|` +
	`steps|track"]` +
	`["name"]["motor_vehicle"!~"no"]["motorcar"!~"no"]` +
	`["foot"!~"no"]["service"!~"private"]`

// overpassClient is a shared HTTP client with a generous timeout; Overpass
// queries over a whole city can take tens of seconds.
var overpassClient = &http.Client{
	Timeout: 120 * time.Second,
}

// StreetNode is one OSM node referenced by a fetched way.
type StreetNode struct {
	ID  int64
	Lat float64
	Lon float64
}

// StreetWay is one OSM way with its ordered node references.
type StreetWay struct {
	ID      int64
	Name    string
	Highway string
	NodeIDs []int64
	Tags    map[string]string
}

// StreetNetwork holds the ways and nodes returned for a polygon query.
type StreetNetwork struct {
	Nodes map[int64]StreetNode
	Ways  []StreetWay
}

// WayPoints resolves a way's node references to coordinates, skipping any
// node missing from the response.
func (n *StreetNetwork) WayPoints(w StreetWay) []Point {
	pts := make([]Point, 0, len(w.NodeIDs))
	for _, id := range w.NodeIDs {
		if node, ok := n.Nodes[id]; ok {
			pts = append(pts, Point{Lat: node.Lat, Lon: node.Lon})
		}
	}
	return pts
}

// overpassResponse mirrors the JSON envelope of an Overpass interpreter
// reply; nodes and ways share one element list.
type overpassResponse struct {
	Elements []struct {
		Type  string            `json:"type"`
		ID    int64             `json:"id"`
		Lat   float64           `json:"lat"`
		Lon   float64           `json:"lon"`
		Nodes []int64           `json:"nodes"`
		Tags  map[string]string `json:"tags"`
	} `json:"elements"`
}

// OverpassConfig contains configuration options for Overpass queries.
type OverpassConfig struct {
	Endpoint string      // Overpass interpreter URL (default: DefaultOverpassEndpoint)
	Filter   string      // way filter (default: WalkableStreetsFilter)
	Logger   *zap.Logger // query logging (default: zap.NewNop())
}

// OverpassOption is a functional option for configuring Overpass queries.
type OverpassOption func(*OverpassConfig)

// WithOverpassEndpoint sets the Overpass interpreter URL.
func WithOverpassEndpoint(endpoint string) OverpassOption {
	return func(c *OverpassConfig) {
		c.Endpoint = endpoint
	}
}

// WithStreetFilter sets the Overpass way filter clause.
func WithStreetFilter(filter string) OverpassOption {
	return func(c *OverpassConfig) {
		c.Filter = filter
	}
}

// WithOverpassLogger sets the logger used for query timing.
func WithOverpassLogger(l *zap.Logger) OverpassOption {
	return func(c *OverpassConfig) {
		c.Logger = l
	}
}

func defaultOverpassConfig() *OverpassConfig {
	return &OverpassConfig{
		Endpoint: DefaultOverpassEndpoint,
		Filter:   WalkableStreetsFilter,
		Logger:   zap.NewNop(),
	}
}

// FetchStreets downloads the street network inside the geometry from the
// Overpass API and resolves it into ways plus their nodes.
func FetchStreets(ctx context.Context, geometry MultiPolygon, opts ...OverpassOption) (*StreetNetwork, error) {
	cfg := defaultOverpassConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(geometry) == 0 {
		return nil, fmt.Errorf("empty geometry")
	}

	query := buildOverpassQuery(geometry, cfg.Filter)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint,
		strings.NewReader(url.Values{"data": {query}}.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building Overpass request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := overpassClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying Overpass: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("Overpass status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding Overpass response: %w", err)
	}

	network := &StreetNetwork{Nodes: make(map[int64]StreetNode)}
	for _, el := range decoded.Elements {
		switch el.Type {
		case "node":
			network.Nodes[el.ID] = StreetNode{ID: el.ID, Lat: el.Lat, Lon: el.Lon}
		case "way":
			network.Ways = append(network.Ways, StreetWay{
				ID:      el.ID,
				Name:    el.Tags["name"],
				Highway: el.Tags["highway"],
				NodeIDs: el.Nodes,
				Tags:    el.Tags,
			})
		}
	}

	cfg.Logger.Debug("fetched street network",
		zap.Int("ways", len(network.Ways)),
		zap.Int("nodes", len(network.Nodes)),
		zap.Duration("took", time.Since(start)))
	return network, nil
}

// buildOverpassQuery assembles an Overpass QL query selecting filtered ways
// inside each member polygon, with their referenced nodes recursed in.
func buildOverpassQuery(geometry MultiPolygon, filter string) string {
	var b strings.Builder
	b.WriteString("[out:json][timeout:90];\n(\n")
	for _, p := range geometry {
		b.WriteString("  way")
		b.WriteString(filter)
		b.WriteString(`(poly:"`)
		b.WriteString(polyClause(p))
		b.WriteString("\");\n")
	}
	b.WriteString(");\n(._;>;);\nout body;")
	return b.String()
}

// polyClause renders a ring as the space-separated "lat lon …" list Overpass
// expects inside a poly filter.
func polyClause(p Polygon) string {
	parts := make([]string, 0, len(p.Ring)*2)
	for _, pt := range p.Ring {
		parts = append(parts, fmt.Sprintf("%g %g", pt.Lat, pt.Lon))
	}
	return strings.Join(parts, " ")
}
