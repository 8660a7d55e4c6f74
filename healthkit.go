package oddish

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HealthKitConfig contains configuration options for HealthKit ingestion.
type HealthKitConfig struct {
	ExportDir string      // Apple Health export folder (default: "./apple_health_export")
	CacheDir  string      // Directory for gob cache files (default: "./oddish-cache")
	Logger    *zap.Logger // Logger used during ingestion (default: zap.NewNop())
}

// HealthKitOption is a functional option for configuring HealthKit.
type HealthKitOption func(*HealthKitConfig)

// WithExportDir sets the Apple Health export folder.
func WithExportDir(dir string) HealthKitOption {
	return func(c *HealthKitConfig) {
		c.ExportDir = dir
	}
}

// WithCacheDir sets the directory for cache files.
func WithCacheDir(dir string) HealthKitOption {
	return func(c *HealthKitConfig) {
		c.CacheDir = dir
	}
}

// WithLogger sets the logger used during ingestion.
func WithLogger(l *zap.Logger) HealthKitOption {
	return func(c *HealthKitConfig) {
		c.Logger = l
	}
}

func defaultHealthKitConfig() *HealthKitConfig {
	return &HealthKitConfig{
		ExportDir: "./apple_health_export",
		CacheDir:  "./oddish-cache",
		Logger:    zap.NewNop(),
	}
}

// Vendor prefixes stripped from record type identifiers to obtain the
// human-readable table keys.
var recordTypePrefixes = []string{
	"HKQuantityTypeIdentifier",
	"HKCategoryTypeIdentifier",
	"HKDataType",
}

const (
	workoutTypePrefix     = "HKWorkoutActivityType"
	characteristicPrefix  = "HKCharacteristicTypeIdentifier"
	statisticsTypePrefix  = "HKQuantityTypeIdentifier"
	routeFileReferenceCol = "route_file_reference"
)

// stripRecordType removes the known vendor prefixes from a record type name.
func stripRecordType(s string) string {
	for _, p := range recordTypePrefixes {
		s = strings.TrimPrefix(s, p)
	}
	return s
}

// HealthKit holds an Apple Health export parsed into tabular form.
//
// The export is a single XML file plus sibling GPX route files:
//
//	apple_health_export/
//	├── export.xml
//	├── export_cda.xml
//	└── workout-routes/
//	    └── route_2021-06-18_7.36am.gpx
//
// All data is kept raw: no timezone normalization, no unit conversion. Date
// and numeric columns are coerced best-effort; everything else stays a string.
//
// Example:
//
//	hk, err := NewHealthKit(WithExportDir("apple_health_export"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bodyMass := hk.Quantities["BodyMass"]
type HealthKit struct {
	ExportDate      time.Time         // From the ExportDate element
	Characteristics map[string]string // Prefix-stripped attributes of the Me element
	DateOfBirth     time.Time         // Parsed DateOfBirth characteristic
	Quantities      map[string]*Table // One table per prefix-stripped record type
	Workouts        map[string]*Table // One table per prefix-stripped activity type
	Routes          *Table            // All GPX track points keyed by route_id

	config *HealthKitConfig
	log    *zap.Logger
}

// NewHealthKit loads an Apple Health export into memory. The gob cache is
// tried first; on any cache miss or decode failure the export is re-ingested
// from the XML and the cache rewritten.
func NewHealthKit(opts ...HealthKitOption) (*HealthKit, error) {
	cfg := defaultHealthKitConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	hk := &HealthKit{config: cfg, log: cfg.Logger}

	if err := hk.loadCache(); err == nil && len(hk.Quantities) > 0 {
		hk.log.Debug("loaded HealthKit tables from cache",
			zap.String("dir", cfg.CacheDir),
			zap.Int("quantityTypes", len(hk.Quantities)),
			zap.Int("workoutTypes", len(hk.Workouts)))
		return hk, nil
	}

	if err := hk.Rebuild(); err != nil {
		return nil, err
	}
	return hk, nil
}

// Rebuild re-ingests the export from disk, replacing any cached tables.
func (hk *HealthKit) Rebuild() error {
	start := time.Now()
	hk.log.Info("ingesting Apple HealthKit data", zap.String("dir", hk.config.ExportDir))

	if err := hk.ingest(); err != nil {
		return fmt.Errorf("ingesting Apple Health export: %w", err)
	}
	if err := hk.storeCache(); err != nil {
		hk.log.Warn("failed to store HealthKit cache", zap.Error(err))
	}

	hk.log.Info("Apple HealthKit data ingestion complete",
		zap.Duration("took", time.Since(start)),
		zap.Int("quantityTypes", len(hk.Quantities)),
		zap.Int("workoutTypes", len(hk.Workouts)),
		zap.Int("routePoints", hk.Routes.Len()))
	return nil
}

func (hk *HealthKit) ingest() error {
	data, err := readExportXML(filepath.Join(hk.config.ExportDir, "export.xml"))
	if err != nil {
		return err
	}

	hk.Characteristics = make(map[string]string)
	hk.Quantities = make(map[string]*Table)
	hk.Workouts = make(map[string]*Table)

	if err := hk.walkExport(data); err != nil {
		return err
	}
	hk.coerceTables()

	routes, err := hk.buildRouteTable(filepath.Join(hk.config.ExportDir, "workout-routes"))
	if err != nil {
		return err
	}
	hk.Routes = routes
	return nil
}

// readExportXML loads export.xml and strips the DOCTYPE internal-subset block,
// which the XML decoder rejects, along with stray vertical-tab bytes that
// occasionally appear in device names.
func readExportXML(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading export XML: %w", err)
	}

	if start := bytes.Index(data, []byte("<!DOCTYPE")); start >= 0 {
		rest := data[start:]
		if end := bytes.Index(rest, []byte("]>")); end >= 0 {
			data = append(data[:start:start], rest[end+2:]...)
		}
	}
	data = bytes.ReplaceAll(data, []byte{0x0b}, nil)
	return data, nil
}

// walkExport traverses the export XML in a single pass, grouping Record and
// Workout elements into tables and picking up the fixed metadata elements.
func (hk *HealthKit) walkExport(data []byte) error {
	start := time.Now()
	dec := xml.NewDecoder(bytes.NewReader(data))

	var records, workouts int
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("parsing export XML: %w", err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "ExportDate":
			if ts, err := ParseTime(attrValue(se, "value")); err == nil {
				hk.ExportDate = ts
			}
		case "Me":
			for _, a := range se.Attr {
				key := strings.TrimPrefix(a.Name.Local, characteristicPrefix)
				hk.Characteristics[key] = a.Value
			}
			if ts, err := ParseTime(hk.Characteristics["DateOfBirth"]); err == nil {
				hk.DateOfBirth = ts
			}
		case "Record":
			hk.foldRecord(se)
			records++
			if err := dec.Skip(); err != nil {
				return fmt.Errorf("parsing export XML: %w", err)
			}
		case "Workout":
			if err := hk.foldWorkout(dec, se); err != nil {
				return fmt.Errorf("parsing workout: %w", err)
			}
			workouts++
		}
	}

	hk.log.Debug("walked export XML",
		zap.Int("records", records),
		zap.Int("workouts", workouts),
		zap.Duration("took", time.Since(start)))
	return nil
}

// foldRecord appends one Record element's attributes to its type table.
func (hk *HealthKit) foldRecord(se xml.StartElement) {
	cells := make(map[string]string, len(se.Attr))
	for _, a := range se.Attr {
		cells[a.Name.Local] = a.Value
	}
	key := stripRecordType(cells["type"])
	tbl, ok := hk.Quantities[key]
	if !ok {
		tbl = NewTable(key)
		hk.Quantities[key] = tbl
	}
	tbl.Append(cells)
}

// foldWorkout consumes a Workout element's subtree, flattening it into a
// single row:
//   - every MetadataEntry anywhere in the subtree contributes key→value;
//   - WorkoutStatistics contribute "<Type>_<attr>" cells, but only outside
//     WorkoutActivity subtrees;
//   - the first FileReference path becomes route_file_reference.
func (hk *HealthKit) foldWorkout(dec *xml.Decoder, start xml.StartElement) error {
	cells := make(map[string]string, len(start.Attr)+8)
	for _, a := range start.Attr {
		cells[a.Name.Local] = a.Value
	}
	key := strings.TrimPrefix(cells["workoutActivityType"], workoutTypePrefix)

	depth := 1
	activity := 0 // nesting depth inside WorkoutActivity elements
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			switch el.Name.Local {
			case "WorkoutActivity":
				activity++
			case "MetadataEntry":
				if k := attrValue(el, "key"); k != "" {
					cells[k] = attrValue(el, "value")
				}
			case "WorkoutStatistics":
				if activity == 0 {
					foldStatistics(el, cells)
				}
			case "FileReference":
				if _, seen := cells[routeFileReferenceCol]; !seen {
					cells[routeFileReferenceCol] = attrValue(el, "path")
				}
			}
		case xml.EndElement:
			depth--
			if el.Name.Local == "WorkoutActivity" && activity > 0 {
				activity--
			}
		}
	}

	tbl, ok := hk.Workouts[key]
	if !ok {
		tbl = NewTable(key)
		hk.Workouts[key] = tbl
	}
	tbl.Append(cells)
	return nil
}

// foldStatistics flattens one WorkoutStatistics element into prefixed cells,
// e.g. type=…HeartRate average=128 → "HeartRate_average": "128".
func foldStatistics(el xml.StartElement, cells map[string]string) {
	sType := strings.TrimPrefix(attrValue(el, "type"), statisticsTypePrefix)
	for _, a := range el.Attr {
		switch a.Name.Local {
		case "type", "startDate", "endDate":
			continue
		default:
			cells[sType+"_"+a.Name.Local] = a.Value
		}
	}
}

// coerceTables applies the date/numeric column coercions after grouping.
func (hk *HealthKit) coerceTables() {
	for key, tbl := range hk.Quantities {
		tbl.CoerceDates("date")
		tbl.CoerceNumeric("value")
		hk.log.Debug("built quantity table",
			zap.String("type", key),
			zap.Int("rows", tbl.Len()),
			zap.Int("columns", len(tbl.Columns)))
	}
	for key, tbl := range hk.Workouts {
		tbl.CoerceDates("date")
		hk.log.Debug("built workout table",
			zap.String("type", key),
			zap.Int("rows", tbl.Len()),
			zap.Int("columns", len(tbl.Columns)))
	}
}

func attrValue(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
