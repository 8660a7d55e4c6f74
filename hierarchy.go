package oddish

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/TomiHiltunen/geohash-golang"
	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"
)

// geohashPrecision is the character length of the geohash carried on each
// hierarchy entry. 7 characters is a ~150m cell, plenty for tooltips and
// eyeballing which part of town an entry covers.
const geohashPrecision = 7

// HierarchyEntry is one row of the polygon hierarchy. Leaf entries come from
// a single CSV file; "All" entries hold the union of their children.
type HierarchyEntry struct {
	City    string
	Region  string
	Section string
	Name    string // display name, e.g. "San Francisco - Richmond" or the full section name
	Polygon MultiPolygon
	Center  Point  // area-weighted centroid of the geometry
	Geohash string // geohash of the centroid
}

// IsLeaf reports whether the entry is a single section (not an "All" union).
func (e HierarchyEntry) IsLeaf() bool {
	return e.Section != "All"
}

// Hierarchy is the city/region/section polygon tree, built by filename
// convention from a folder of `city-region-section.csv` files.
type Hierarchy struct {
	Entries []HierarchyEntry

	index map[[3]string]int
	log   *zap.Logger
}

// HierarchyOption is a functional option for configuring hierarchy loading.
type HierarchyOption func(*Hierarchy)

// WithHierarchyLogger sets the logger used while loading polygon files.
func WithHierarchyLogger(l *zap.Logger) HierarchyOption {
	return func(h *Hierarchy) {
		h.log = l
	}
}

// BuildHierarchy loads every `*.csv` in the folder as a section polygon and
// synthesizes city-level and region-level union entries. File names encode
// the hierarchy as `city-region-section.csv` with underscores for spaces,
// e.g. `san_francisco-presidio-main_post.csv`. Files that do not follow the
// convention or fail to parse are skipped with a warning.
func BuildHierarchy(folder string, opts ...HierarchyOption) (*Hierarchy, error) {
	h := &Hierarchy{index: make(map[[3]string]int), log: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}

	files, err := filepath.Glob(filepath.Join(folder, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("globbing polygon folder: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no polygon CSV files in %s", folder)
	}

	for _, file := range files {
		base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		names := strings.Split(base, "-")
		if len(names) != 3 {
			h.log.Warn("skipping polygon file without city-region-section name",
				zap.String("file", file))
			continue
		}
		polygon, err := LoadPolygon(file)
		if err != nil {
			h.log.Warn("skipping unparseable polygon file",
				zap.String("file", file), zap.Error(err))
			continue
		}
		city := formatHierarchyName(names[0])
		region := formatHierarchyName(names[1])
		section := formatHierarchyName(names[2])
		h.append(HierarchyEntry{
			City:    city,
			Region:  region,
			Section: section,
			Name:    city + " " + region + " " + section,
			Polygon: Union(polygon),
		})
	}
	if len(h.Entries) == 0 {
		return nil, fmt.Errorf("no usable polygon files in %s", folder)
	}

	h.appendUnions()
	for i := range h.Entries {
		e := &h.Entries[i]
		e.Center = e.Polygon.Centroid()
		e.Geohash = geohash.EncodeWithPrecision(e.Center.Lat, e.Center.Lon, geohashPrecision)
	}
	return h, nil
}

// appendUnions adds the synthesized city ("City / All / All") and region
// ("City / Region / All") rows holding the union of their sections.
func (h *Hierarchy) appendUnions() {
	leafs := append([]HierarchyEntry(nil), h.Entries...)

	var cities []string
	seenCity := make(map[string]bool)
	for _, e := range leafs {
		if !seenCity[e.City] {
			seenCity[e.City] = true
			cities = append(cities, e.City)
		}
	}

	for _, city := range cities {
		var mp MultiPolygon
		for _, e := range leafs {
			if e.City == city {
				mp = append(mp, e.Polygon...)
			}
		}
		h.append(HierarchyEntry{
			City: city, Region: "All", Section: "All",
			Name:    city,
			Polygon: mp,
		})
	}

	for _, city := range cities {
		var regions []string
		seenRegion := make(map[string]bool)
		for _, e := range leafs {
			if e.City == city && !seenRegion[e.Region] {
				seenRegion[e.Region] = true
				regions = append(regions, e.Region)
			}
		}
		for _, region := range regions {
			var mp MultiPolygon
			for _, e := range leafs {
				if e.City == city && e.Region == region {
					mp = append(mp, e.Polygon...)
				}
			}
			h.append(HierarchyEntry{
				City: city, Region: region, Section: "All",
				Name:    city + " - " + region,
				Polygon: mp,
			})
		}
	}
}

func (h *Hierarchy) append(e HierarchyEntry) {
	h.index[[3]string{e.City, e.Region, e.Section}] = len(h.Entries)
	h.Entries = append(h.Entries, e)
}

// Lookup returns the entry at (city, region, section); union rows use "All".
func (h *Hierarchy) Lookup(city, region, section string) (HierarchyEntry, bool) {
	if i, ok := h.index[[3]string{city, region, section}]; ok {
		return h.Entries[i], true
	}
	return HierarchyEntry{}, false
}

// ByName returns the entry with the given display name (case-insensitive).
func (h *Hierarchy) ByName(name string) (HierarchyEntry, bool) {
	for _, e := range h.Entries {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return HierarchyEntry{}, false
}

// ClosestName returns the entry whose display name has the smallest edit
// distance to the query, for "did you mean" suggestions when ByName misses.
func (h *Hierarchy) ClosestName(name string) (HierarchyEntry, int) {
	best := -1
	bestDist := 0
	lower := strings.ToLower(name)
	for i, e := range h.Entries {
		dist := levenshtein.ComputeDistance(lower, strings.ToLower(e.Name))
		if best < 0 || dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	if best < 0 {
		return HierarchyEntry{}, 0
	}
	return h.Entries[best], bestDist
}

// Locate returns the leaf section containing the point, if any. Bounding-box
// prefilter first, exact point-in-polygon second.
func (h *Hierarchy) Locate(lat, lon float64) (HierarchyEntry, bool) {
	for _, e := range h.Entries {
		if !e.IsLeaf() {
			continue
		}
		if e.Polygon.Contains(lat, lon) {
			return e, true
		}
	}
	return HierarchyEntry{}, false
}

// formatHierarchyName turns a filename fragment into a display name:
// underscores become spaces and each word is title-cased.
func formatHierarchyName(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
