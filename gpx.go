package oddish

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// gpxFile mirrors the subset of the GPX 1.1 schema Apple writes for workout
// routes (namespace http://www.topografix.com/GPX/1/1). Everything is kept as
// strings; the table coercion passes handle typing.
type gpxFile struct {
	XMLName xml.Name `xml:"gpx"`
	Tracks  []struct {
		Segments []struct {
			Points []gpxTrackPoint `xml:"trkpt"`
		} `xml:"trkseg"`
	} `xml:"trk"`
}

type gpxTrackPoint struct {
	Lat        string `xml:"lat,attr"`
	Lon        string `xml:"lon,attr"`
	Ele        string `xml:"ele"`
	Time       string `xml:"time"`
	Extensions struct {
		Speed  string `xml:"speed"`
		Course string `xml:"course"`
		HAcc   string `xml:"hAcc"`
		VAcc   string `xml:"vAcc"`
	} `xml:"extensions"`
}

// routeValueColumns are the numerically coerced columns of the route table.
var routeValueColumns = []string{"lat", "lon", "ele", "speed", "course", "hAcc", "vAcc"}

// buildRouteTable parses every sibling GPX file into a single table of track
// points keyed by route_id (the file basename without the .gpx suffix).
// Unparseable files are skipped with a warning; a missing workout-routes
// folder yields an empty table.
func (hk *HealthKit) buildRouteTable(dir string) (*Table, error) {
	start := time.Now()
	routes := NewTable("routes")

	files, err := filepath.Glob(filepath.Join(dir, "*.gpx"))
	if err != nil {
		return nil, fmt.Errorf("globbing route files: %w", err)
	}
	hk.log.Debug("found route files", zap.Int("count", len(files)), zap.String("dir", dir))

	for _, file := range files {
		routeID := strings.TrimSuffix(filepath.Base(file), ".gpx")
		points, err := parseGPX(file)
		if err != nil {
			hk.log.Warn("skipping unparseable route file", zap.String("file", file), zap.Error(err))
			continue
		}
		for _, pt := range points {
			routes.Append(map[string]string{
				"route_id": routeID,
				"lat":      pt.Lat,
				"lon":      pt.Lon,
				"ele":      pt.Ele,
				"time":     pt.Time,
				"speed":    pt.Extensions.Speed,
				"course":   pt.Extensions.Course,
				"hAcc":     pt.Extensions.HAcc,
				"vAcc":     pt.Extensions.VAcc,
			})
		}
		hk.log.Debug("processed route", zap.String("route", routeID), zap.Int("points", len(points)))
	}

	routes.CoerceDates("time")
	for _, col := range routeValueColumns {
		routes.CoerceNumeric(col)
	}

	hk.log.Debug("built route table",
		zap.Int("files", len(files)),
		zap.Int("rows", routes.Len()),
		zap.Duration("took", time.Since(start)))
	return routes, nil
}

// parseGPX reads one GPX file and returns its track points in document order.
func parseGPX(path string) ([]gpxTrackPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var g gpxFile
	if err := xml.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	var points []gpxTrackPoint
	for _, trk := range g.Tracks {
		for _, seg := range trk.Segments {
			points = append(points, seg.Points...)
		}
	}
	return points, nil
}
