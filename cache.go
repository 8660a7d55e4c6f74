package oddish

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cache file names inside the cache directory, one per ingested structure.
const (
	cacheMetaFile       = "hk.meta.dmp"
	cacheQuantitiesFile = "hk.q.dmp"
	cacheWorkoutsFile   = "hk.w.dmp"
	cacheRoutesFile     = "hk.r.dmp"
)

func init() {
	// Table rows are map[string]any; gob needs the concrete cell types
	// registered to round-trip them through the interface.
	gob.Register(time.Time{})
	gob.Register(float64(0))
	gob.Register("")
}

// healthKitMeta is the gob form of the non-tabular export fields.
type healthKitMeta struct {
	ExportDate      time.Time
	DateOfBirth     time.Time
	Characteristics map[string]string
}

// storeCache saves the ingested tables to the cache directory so subsequent
// loads skip the XML walk entirely.
func (hk *HealthKit) storeCache() error {
	dir := hk.config.CacheDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	meta := healthKitMeta{
		ExportDate:      hk.ExportDate,
		DateOfBirth:     hk.DateOfBirth,
		Characteristics: hk.Characteristics,
	}
	if err := writeGob(filepath.Join(dir, cacheMetaFile), meta); err != nil {
		return err
	}
	if err := writeGob(filepath.Join(dir, cacheQuantitiesFile), hk.Quantities); err != nil {
		return err
	}
	if err := writeGob(filepath.Join(dir, cacheWorkoutsFile), hk.Workouts); err != nil {
		return err
	}
	return writeGob(filepath.Join(dir, cacheRoutesFile), hk.Routes)
}

// loadCache restores the tables from the cache directory. Any missing or
// undecodable file fails the whole load; the caller falls back to a rebuild.
func (hk *HealthKit) loadCache() error {
	dir := hk.config.CacheDir

	var meta healthKitMeta
	if err := readGob(filepath.Join(dir, cacheMetaFile), &meta); err != nil {
		return err
	}
	quantities := make(map[string]*Table)
	if err := readGob(filepath.Join(dir, cacheQuantitiesFile), &quantities); err != nil {
		return err
	}
	workouts := make(map[string]*Table)
	if err := readGob(filepath.Join(dir, cacheWorkoutsFile), &workouts); err != nil {
		return err
	}
	routes := NewTable("routes")
	if err := readGob(filepath.Join(dir, cacheRoutesFile), routes); err != nil {
		return err
	}

	hk.ExportDate = meta.ExportDate
	hk.DateOfBirth = meta.DateOfBirth
	hk.Characteristics = meta.Characteristics
	hk.Quantities = quantities
	hk.Workouts = workouts
	hk.Routes = routes
	return nil
}

func writeGob(path string, v any) error {
	b := new(bytes.Buffer)
	if err := gob.NewEncoder(b).Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, b.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return nil
}

func readGob(path string, v any) error {
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer fh.Close()
	if err := gob.NewDecoder(fh).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}
