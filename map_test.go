package oddish

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGeometry() MultiPolygon {
	return Union(NewPolygon([]Point{
		{Lat: 37.795, Lon: -122.460},
		{Lat: 37.805, Lon: -122.460},
		{Lat: 37.805, Lon: -122.450},
	}))
}

func TestMapSave(t *testing.T) {
	m := NewMap("Main Post")
	m.AddLayer("polygon", NewFeatureCollection(PolygonFeature(testGeometry(), map[string]any{"name": "Main Post"})),
		LayerStyle{Color: "#3388ff", Weight: 2, FillOpacity: 0.2}, []string{"name"})

	path := filepath.Join(t.TempDir(), "maps", "main_post.html")
	require.NoError(t, m.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)

	assert.Contains(t, html, "<title>Main Post</title>")
	assert.Contains(t, html, "leaflet@1.9.4")
	assert.Contains(t, html, "L.geoJSON")
	assert.Contains(t, html, `"name":"polygon"`)
	assert.Contains(t, html, `"MultiPolygon"`)
	assert.Contains(t, html, `"tooltip":["name"]`)
	assert.Contains(t, html, `"color":"#3388ff"`)
	// Zero-valued style fields stay out of the JSON.
	assert.NotContains(t, html, "fillColor")
}

func TestMapSaveMultipleLayers(t *testing.T) {
	m := NewMap("streets")
	m.AddLayer("outline", NewFeatureCollection(PolygonFeature(testGeometry(), nil)),
		LayerStyle{Color: "#888888"}, nil)
	m.AddLayer("streets", NewFeatureCollection(), LayerStyle{Color: "#d73027", Weight: 2}, []string{"name"})

	path := filepath.Join(t.TempDir(), "streets.html")
	require.NoError(t, m.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)

	assert.Equal(t, 1, strings.Count(html, `"name":"outline"`))
	assert.Equal(t, 1, strings.Count(html, `"name":"streets"`))
	assert.True(t, strings.Index(html, `"name":"outline"`) < strings.Index(html, `"name":"streets"`),
		"layers keep insertion order")
}
