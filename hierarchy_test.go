package oddish

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeHierarchyFixture lays out a small polygon folder with three sections
// across two regions, plus files that should be skipped.
func writeHierarchyFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	squares := map[string][2]float64{ // file -> center lat, lon
		"san_francisco-presidio-main_post.csv": {37.800, -122.455},
		"san_francisco-presidio-letterman.csv": {37.796, -122.447},
		"san_francisco-richmond-central.csv":   {37.780, -122.470},
	}
	for name, center := range squares {
		lat, lon := center[0], center[1]
		var csv strings.Builder
		for _, d := range [][2]float64{{-0.002, -0.002}, {0.002, -0.002}, {0.002, 0.002}, {-0.002, 0.002}} {
			fmt.Fprintf(&csv, "%g,%g\n", lon+d[1], lat+d[0])
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(csv.String()), 0644))
	}

	// Not city-region-section shaped; skipped with a warning.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.csv"), []byte("-122,37\n"), 0644))
	return dir
}

func TestBuildHierarchy(t *testing.T) {
	dir := writeHierarchyFixture(t)
	h, err := BuildHierarchy(dir)
	require.NoError(t, err)

	// 3 leafs + 1 city union + 2 region unions.
	require.Len(t, h.Entries, 6)

	leaf, ok := h.Lookup("San Francisco", "Presidio", "Main Post")
	require.True(t, ok)
	assert.Equal(t, "San Francisco Presidio Main Post", leaf.Name)
	assert.True(t, leaf.IsLeaf())
	assert.Len(t, leaf.Polygon, 1)
	assert.InDelta(t, 37.800, leaf.Center.Lat, 1e-3)
	assert.Len(t, leaf.Geohash, geohashPrecision)

	city, ok := h.Lookup("San Francisco", "All", "All")
	require.True(t, ok)
	assert.Equal(t, "San Francisco", city.Name)
	assert.False(t, city.IsLeaf())
	assert.Len(t, city.Polygon, 3)

	region, ok := h.Lookup("San Francisco", "Presidio", "All")
	require.True(t, ok)
	assert.Equal(t, "San Francisco - Presidio", region.Name)
	assert.Len(t, region.Polygon, 2)

	_, ok = h.Lookup("San Francisco", "Presidio", "Crissy Field")
	assert.False(t, ok)
}

func TestHierarchyByName(t *testing.T) {
	h, err := BuildHierarchy(writeHierarchyFixture(t))
	require.NoError(t, err)

	e, ok := h.ByName("san francisco presidio letterman")
	require.True(t, ok)
	assert.Equal(t, "Letterman", e.Section)

	_, ok = h.ByName("Letterman")
	assert.False(t, ok, "ByName matches the full display name only")

	closest, dist := h.ClosestName("San Francisco Presidio Leterman")
	assert.Equal(t, "San Francisco Presidio Letterman", closest.Name)
	assert.Equal(t, 1, dist)
}

func TestHierarchyLocate(t *testing.T) {
	h, err := BuildHierarchy(writeHierarchyFixture(t))
	require.NoError(t, err)

	e, ok := h.Locate(37.780, -122.470)
	require.True(t, ok)
	assert.Equal(t, "Central", e.Section)
	assert.Equal(t, "Richmond", e.Region)

	_, ok = h.Locate(37.750, -122.400)
	assert.False(t, ok)
}

func TestBuildHierarchyEmpty(t *testing.T) {
	_, err := BuildHierarchy(t.TempDir())
	assert.Error(t, err)
}

func TestFormatHierarchyName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"san_francisco", "San Francisco"},
		{"main_post", "Main Post"},
		{"GOLDEN_GATE", "Golden Gate"},
		{"richmond", "Richmond"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatHierarchyName(tt.in), tt.in)
	}
}
