package oddish

import "sort"

// GeoJSON structures for the Leaflet map layers. Coordinates follow the
// GeoJSON convention: [lon, lat].

// FeatureCollection is a standard GeoJSON feature collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a single geographic feature with geometry and properties.
type Feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Geometry   Geometry       `json:"geometry"`
}

// Geometry holds any GeoJSON geometry; Coordinates nesting depends on Type.
type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// NewFeatureCollection wraps features in a collection.
func NewFeatureCollection(features ...Feature) FeatureCollection {
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}

func ringCoordinates(ring []Point) [][2]float64 {
	coords := make([][2]float64, 0, len(ring))
	for _, pt := range ring {
		coords = append(coords, [2]float64{pt.Lon, pt.Lat})
	}
	return coords
}

// GeoJSON returns the polygon as a GeoJSON Polygon geometry.
func (p Polygon) GeoJSON() Geometry {
	return Geometry{Type: "Polygon", Coordinates: [][][2]float64{ringCoordinates(p.Ring)}}
}

// GeoJSON returns the collection as a GeoJSON MultiPolygon geometry.
func (mp MultiPolygon) GeoJSON() Geometry {
	coords := make([][][][2]float64, 0, len(mp))
	for _, p := range mp {
		coords = append(coords, [][][2]float64{ringCoordinates(p.Ring)})
	}
	return Geometry{Type: "MultiPolygon", Coordinates: coords}
}

// PolygonFeature wraps a geometry collection with display properties.
func PolygonFeature(mp MultiPolygon, props map[string]any) Feature {
	return Feature{Type: "Feature", Properties: props, Geometry: mp.GeoJSON()}
}

// HierarchyFeatures renders every hierarchy entry as a polygon feature with
// name/city/region/section/geohash properties for tooltips.
func HierarchyFeatures(h *Hierarchy) FeatureCollection {
	features := make([]Feature, 0, len(h.Entries))
	for _, e := range h.Entries {
		features = append(features, PolygonFeature(e.Polygon, map[string]any{
			"name":    e.Name,
			"city":    e.City,
			"region":  e.Region,
			"section": e.Section,
			"geohash": e.Geohash,
		}))
	}
	return NewFeatureCollection(features...)
}

// RouteLineFeature renders a route table's rows as a single LineString in
// time order. Rows without coordinates are skipped.
func RouteLineFeature(routes *Table, props map[string]any) Feature {
	rows := append([]Row(nil), routes.Rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		ti, _ := rows[i].Time("time")
		tj, _ := rows[j].Time("time")
		return ti.Before(tj)
	})

	coords := make([][2]float64, 0, len(rows))
	for _, row := range rows {
		lat, okLat := row.Float("lat")
		lon, okLon := row.Float("lon")
		if !okLat || !okLon {
			continue
		}
		coords = append(coords, [2]float64{lon, lat})
	}
	return Feature{
		Type:       "Feature",
		Properties: props,
		Geometry:   Geometry{Type: "LineString", Coordinates: coords},
	}
}

// RoutePointFeatures renders every track point as a Point feature carrying
// the row's time/speed/elevation for per-point tooltips.
func RoutePointFeatures(routes *Table) FeatureCollection {
	features := make([]Feature, 0, routes.Len())
	for _, row := range routes.Rows {
		lat, okLat := row.Float("lat")
		lon, okLon := row.Float("lon")
		if !okLat || !okLon {
			continue
		}
		features = append(features, Feature{
			Type: "Feature",
			Properties: map[string]any{
				"time":  row.String("time"),
				"speed": row.String("speed"),
				"ele":   row.String("ele"),
			},
			Geometry: Geometry{Type: "Point", Coordinates: [2]float64{lon, lat}},
		})
	}
	return NewFeatureCollection(features...)
}

// StreetFeatures renders every way of a street network as a LineString with
// its name and highway class.
func StreetFeatures(n *StreetNetwork) FeatureCollection {
	features := make([]Feature, 0, len(n.Ways))
	for _, way := range n.Ways {
		pts := n.WayPoints(way)
		if len(pts) < 2 {
			continue
		}
		features = append(features, Feature{
			Type: "Feature",
			Properties: map[string]any{
				"name":    way.Name,
				"highway": way.Highway,
			},
			Geometry: Geometry{Type: "LineString", Coordinates: ringCoordinates(pts)},
		})
	}
	return NewFeatureCollection(features...)
}
