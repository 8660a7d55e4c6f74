package oddish

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Polygon is a closed exterior ring of WGS84 coordinates. The only enforced
// invariant is closure: first and last vertex match, repaired on construction
// by appending the first vertex.
type Polygon struct {
	Ring []Point

	bbox [4]float64 // minLon, minLat, maxLon, maxLat
}

// MultiPolygon is a collection of polygons treated as one geometry. Unions
// are represented as collections; shared boundaries are not dissolved.
type MultiPolygon []Polygon

// NewPolygon builds a polygon from a ring, closing it if needed.
func NewPolygon(ring []Point) Polygon {
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	p := Polygon{Ring: ring}
	p.bbox = computeBBox(ring)
	return p
}

func computeBBox(ring []Point) [4]float64 {
	b := [4]float64{180, 90, -180, -90}
	for _, pt := range ring {
		if pt.Lon < b[0] {
			b[0] = pt.Lon
		}
		if pt.Lat < b[1] {
			b[1] = pt.Lat
		}
		if pt.Lon > b[2] {
			b[2] = pt.Lon
		}
		if pt.Lat > b[3] {
			b[3] = pt.Lat
		}
	}
	return b
}

// LoadPolygon loads a polygon from a CSV file with two unlabeled columns
// (longitude, latitude), the format produced by the Keene coordinate tool
// (https://www.keene.edu/campus/maps/tool/). The ring is closed automatically
// when the first and last rows differ.
func LoadPolygon(path string) (Polygon, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Polygon{}, fmt.Errorf("opening polygon file: %w", err)
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.FieldsPerRecord = -1 // tolerate trailing columns

	var ring []Point
	records, err := r.ReadAll()
	if err != nil {
		return Polygon{}, fmt.Errorf("reading polygon CSV %s: %w", path, err)
	}
	for i, rec := range records {
		if len(rec) < 2 {
			return Polygon{}, fmt.Errorf("polygon CSV %s row %d: want 2 columns, got %d", path, i+1, len(rec))
		}
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if errLon != nil || errLat != nil {
			return Polygon{}, fmt.Errorf("polygon CSV %s row %d: bad coordinate", path, i+1)
		}
		ring = append(ring, Point{Lat: lat, Lon: lon})
	}
	if len(ring) < 3 {
		return Polygon{}, fmt.Errorf("polygon CSV %s: need at least 3 vertices, got %d", path, len(ring))
	}
	return NewPolygon(ring), nil
}

// LoadPolygons loads multiple polygon CSV files.
func LoadPolygons(paths []string) ([]Polygon, error) {
	polygons := make([]Polygon, 0, len(paths))
	for _, path := range paths {
		p, err := LoadPolygon(path)
		if err != nil {
			return nil, err
		}
		polygons = append(polygons, p)
	}
	return polygons, nil
}

// Union combines polygons into a single MultiPolygon geometry.
func Union(polygons ...Polygon) MultiPolygon {
	out := make(MultiPolygon, 0, len(polygons))
	return append(out, polygons...)
}

// Contains reports whether the point lies inside the polygon, using even-odd
// ray casting with a bounding-box prefilter.
func (p Polygon) Contains(lat, lon float64) bool {
	b := p.bbox
	if b == [4]float64{} {
		b = computeBBox(p.Ring)
	}
	if lon < b[0] || lon > b[2] || lat < b[1] || lat > b[3] {
		return false
	}
	n := len(p.Ring)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := p.Ring[i].Lon, p.Ring[i].Lat
		xj, yj := p.Ring[j].Lon, p.Ring[j].Lat
		// The small epsilon keeps the division stable on horizontal edges.
		intersect := ((yi > lat) != (yj > lat)) &&
			(lon < (xj-xi)*(lat-yi)/(yj-yi+1e-12)+xi)
		if intersect {
			inside = !inside
		}
	}
	return inside
}

// Contains reports whether the point lies inside any member polygon.
func (mp MultiPolygon) Contains(lat, lon float64) bool {
	for _, p := range mp {
		if p.Contains(lat, lon) {
			return true
		}
	}
	return false
}

// earthRadiusKm scales unit-sphere steradian areas to km².
const earthRadiusKm = 6371.01

// s2Loop converts the ring (without the duplicate closing vertex) to an S2
// loop normalized to enclose the smaller area.
func (p Polygon) s2Loop() *s2.Loop {
	ring := p.Ring
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}
	pts := make([]s2.Point, 0, len(ring))
	for _, v := range ring {
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(v.Lat, v.Lon)))
	}
	loop := s2.LoopFromPoints(pts)
	loop.Normalize()
	return loop
}

// AreaKm2 returns the spherical area of the polygon in square kilometers.
func (p Polygon) AreaKm2() float64 {
	return p.s2Loop().Area() * earthRadiusKm * earthRadiusKm
}

// AreaKm2 returns the summed area of the member polygons.
func (mp MultiPolygon) AreaKm2() float64 {
	var sum float64
	for _, p := range mp {
		sum += p.AreaKm2()
	}
	return sum
}

// Centroid returns the area-weighted centroid of the polygon.
func (p Polygon) Centroid() Point {
	return centroidFromVector(p.s2Loop().Centroid(), p.Ring)
}

// Centroid returns the area-weighted centroid across all member polygons.
func (mp MultiPolygon) Centroid() Point {
	var sum r3.Vector
	var ring []Point
	for _, p := range mp {
		sum = sum.Add(p.s2Loop().Centroid().Vector)
		ring = append(ring, p.Ring...)
	}
	return centroidFromVector(s2.Point{Vector: sum}, ring)
}

// centroidFromVector converts an S2 area-weighted centroid back to lat/lon,
// falling back to a vertex average for degenerate (near-zero area) loops.
func centroidFromVector(c s2.Point, ring []Point) Point {
	if c.Vector.Norm() > 1e-12 {
		ll := s2.LatLngFromPoint(c)
		return Point{Lat: ll.Lat.Degrees(), Lon: ll.Lng.Degrees()}
	}
	if len(ring) == 0 {
		return Point{}
	}
	var lat, lon float64
	for _, v := range ring {
		lat += v.Lat
		lon += v.Lon
	}
	n := float64(len(ring))
	return Point{Lat: lat / n, Lon: lon / n}
}

// KeeneCSV renders the ring in the lon,lat CSV format the Keene map tool
// pastes back in, one vertex per line.
func (p Polygon) KeeneCSV() string {
	var b strings.Builder
	for _, pt := range p.Ring {
		fmt.Fprintf(&b, "%g,%g\n", pt.Lon, pt.Lat)
	}
	return b.String()
}
