package oddish

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
)

// LayerStyle is the Leaflet path style applied to a layer. Zero-valued
// fields are omitted so Leaflet defaults apply.
type LayerStyle struct {
	Color       string  `json:"color,omitempty"`
	Weight      float64 `json:"weight,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	FillColor   string  `json:"fillColor,omitempty"`
	FillOpacity float64 `json:"fillOpacity,omitempty"`
	Radius      float64 `json:"radius,omitempty"`
}

// mapLayer pairs a feature collection with its style and tooltip fields in
// the shape the page script consumes.
type mapLayer struct {
	Name     string            `json:"name"`
	Features FeatureCollection `json:"features"`
	Style    LayerStyle        `json:"style"`
	Tooltip  []string          `json:"tooltip,omitempty"`
}

// Map accumulates GeoJSON layers and renders them as a self-contained
// Leaflet HTML page (tiles and assets from public CDNs), the same kind of
// artifact geopandas' explore() produces.
type Map struct {
	Title  string
	layers []mapLayer
}

// NewMap creates an empty map with a page title.
func NewMap(title string) *Map {
	return &Map{Title: title}
}

// AddLayer appends a styled feature collection. Tooltip lists the property
// keys shown when hovering a feature; nil disables tooltips for the layer.
func (m *Map) AddLayer(name string, fc FeatureCollection, style LayerStyle, tooltip []string) {
	m.layers = append(m.layers, mapLayer{Name: name, Features: fc, Style: style, Tooltip: tooltip})
}

// Save renders the map and writes it to path, creating parent directories.
func (m *Map) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating explore directory: %w", err)
		}
	}

	layersJSON, err := json.Marshal(m.layers)
	if err != nil {
		return fmt.Errorf("encoding map layers: %w", err)
	}

	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating map file: %w", err)
	}
	defer fh.Close()

	data := struct {
		Title      string
		LayersJSON template.JS
	}{
		Title:      m.Title,
		LayersJSON: template.JS(layersJSON),
	}
	if err := mapTemplate.Execute(fh, data); err != nil {
		return fmt.Errorf("rendering map: %w", err)
	}
	return fh.Close()
}

var mapTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8"/>
<title>{{.Title}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1.0"/>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css"/>
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>html, body, #map { height: 100%; margin: 0; }</style>
</head>
<body>
<div id="map"></div>
<script>
var map = L.map('map');
L.tileLayer('https://tile.openstreetmap.org/{z}/{x}/{y}.png', {
  maxZoom: 19,
  attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);

var layers = {{.LayersJSON}};
var bounds = null;
layers.forEach(function (layer) {
  var gj = L.geoJSON(layer.features, {
    style: function () { return layer.style; },
    pointToLayer: function (feature, latlng) {
      return L.circleMarker(latlng, Object.assign({radius: 4}, layer.style));
    },
    onEachFeature: function (feature, l) {
      if (!layer.tooltip || !layer.tooltip.length) return;
      var parts = [];
      layer.tooltip.forEach(function (key) {
        if (feature.properties && feature.properties[key] !== undefined) {
          parts.push('<b>' + key + '</b>: ' + feature.properties[key]);
        }
      });
      if (parts.length) l.bindTooltip(parts.join('<br>'));
    }
  }).addTo(map);
  var b = gj.getBounds();
  if (b.isValid()) bounds = bounds ? bounds.extend(b) : b;
});
if (bounds) map.fitBounds(bounds, {padding: [20, 20]});
</script>
</body>
</html>
`))
