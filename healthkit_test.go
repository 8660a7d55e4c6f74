package oddish

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	check "gopkg.in/check.v1"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { check.TestingT(t) }

type HealthKitSuite struct {
	cacheDir string
}

var _ = check.Suite(&HealthKitSuite{})

var hk *HealthKit

func (s *HealthKitSuite) TestANewHealthKit(c *check.C) {
	s.cacheDir = c.MkDir()

	var err error
	hk, err = NewHealthKit(
		WithExportDir("testdata/apple_health_export"),
		WithCacheDir(s.cacheDir),
		WithLogger(zap.NewNop()),
	)
	c.Assert(err, check.IsNil)
	c.Assert(hk, check.Not(check.IsNil))

	c.Assert(hk.ExportDate.IsZero(), check.Equals, false)
	c.Assert(hk.ExportDate.Format("2006-01-02"), check.Equals, "2024-08-11")
	c.Assert(hk.DateOfBirth.Format("2006-01-02"), check.Equals, "1990-04-12")

	c.Assert(hk.Characteristics["BiologicalSex"], check.Equals, "HKBiologicalSexMale")
	c.Assert(hk.Characteristics["BloodType"], check.Equals, "HKBloodTypeOPositive")
	c.Assert(hk.Characteristics["DateOfBirth"], check.Equals, "1990-04-12")

	for _, key := range []string{"BodyMass", "HeartRate", "RestingHeartRate", "VO2Max", "HeartRateVariabilitySDNN", "SleepAnalysis", "SleepDurationGoal"} {
		_, ok := hk.Quantities[key]
		c.Assert(ok, check.Equals, true, check.Commentf("missing quantity table %s", key))
	}
	c.Assert(hk.Quantities["BodyMass"].Len(), check.Equals, 2)
	c.Assert(hk.Quantities["HeartRate"].Len(), check.Equals, 4)

	c.Assert(len(hk.Workouts), check.Equals, 2)
	c.Assert(hk.Workouts["Running"].Len(), check.Equals, 1)
	c.Assert(hk.Workouts["Walking"].Len(), check.Equals, 1)

	c.Assert(hk.Routes.Len(), check.Equals, 3)
}

func (s *HealthKitSuite) TestQuantityCoercion(c *check.C) {
	bodyMass := hk.Quantities["BodyMass"]
	v, ok := bodyMass.Rows[0]["value"].(float64)
	c.Assert(ok, check.Equals, true)
	c.Assert(v, check.Equals, 172.4)
	_, ok = bodyMass.Rows[0]["startDate"].(time.Time)
	c.Assert(ok, check.Equals, true)

	// A non-numeric cell keeps the whole column as strings.
	sleep := hk.Quantities["SleepAnalysis"]
	c.Assert(sleep.Rows[0]["value"], check.Equals, "HKCategoryValueSleepAnalysisAsleepCore")
}

func (s *HealthKitSuite) TestWorkoutFolding(c *check.C) {
	running := hk.Workouts["Running"]
	row := running.Rows[0]

	// Metadata entries from the whole subtree, including inside
	// WorkoutActivity and WorkoutRoute.
	c.Assert(row["HKMetadataKeySyncIdentifier"], check.Equals, "sync-123")
	c.Assert(row["HKAverageMETs"], check.Equals, "9.2 kcal/hr·kg")
	c.Assert(row["HKMetadataKeySyncVersion"], check.Equals, "2")

	// Statistics outside WorkoutActivity are folded; those inside are not.
	c.Assert(row["HeartRate_average"], check.Equals, "128")
	c.Assert(row["HeartRate_maximum"], check.Equals, "151")
	c.Assert(running.HasColumn("HeartRate_unit"), check.Equals, true)
	c.Assert(running.HasColumn("StepCount_sum"), check.Equals, false)

	c.Assert(row[routeFileReferenceCol], check.Equals, "/workout-routes/route_2024-06-01_7.00am.gpx")

	// Workout dates are coerced, values stay raw strings.
	start, ok := row["startDate"].(time.Time)
	c.Assert(ok, check.Equals, true)
	c.Assert(start.Format("15:04:05"), check.Equals, "07:00:00")
	c.Assert(row["duration"], check.Equals, "30.0")
}

func (s *HealthKitSuite) TestRouteTable(c *check.C) {
	routes := hk.Routes
	c.Assert(routes.Rows[0]["route_id"], check.Equals, "route_2024-06-01_7.00am")

	lat, ok := routes.Rows[0]["lat"].(float64)
	c.Assert(ok, check.Equals, true)
	c.Assert(lat, check.Equals, 37.802)
	speed, ok := routes.Rows[0]["speed"].(float64)
	c.Assert(ok, check.Equals, true)
	c.Assert(speed, check.Equals, 2.5)
	_, ok = routes.Rows[0]["time"].(time.Time)
	c.Assert(ok, check.Equals, true)
}

func (s *HealthKitSuite) TestZCacheLoad(c *check.C) {
	// A second load with a bogus export dir succeeds purely from the cache
	// populated by the first ingest.
	cached, err := NewHealthKit(
		WithExportDir("testdata/does-not-exist"),
		WithCacheDir(s.cacheDir),
	)
	c.Assert(err, check.IsNil)
	c.Assert(cached.ExportDate.Equal(hk.ExportDate), check.Equals, true)
	c.Assert(cached.Quantities["BodyMass"].Len(), check.Equals, 2)
	c.Assert(cached.Workouts["Running"].Len(), check.Equals, 1)
	c.Assert(cached.Routes.Len(), check.Equals, 3)

	// Cells round-trip the gob cache with their coerced types.
	v, ok := cached.Quantities["BodyMass"].Rows[0]["value"].(float64)
	c.Assert(ok, check.Equals, true)
	c.Assert(v, check.Equals, 172.4)

	// The column index is rebuilt lazily after decoding.
	c.Assert(cached.Workouts["Running"].HasColumn("HeartRate_average"), check.Equals, true)
}

func TestReadExportXML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.xml")
	raw := []byte("<?xml version=\"1.0\"?>\n<!DOCTYPE HealthData [\n<!ELEMENT HealthData ANY>\n]>\n<HealthData sourceName=\"Bad\x0bName\"/>")
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatal(err)
	}

	data, err := readExportXML(path)
	if err != nil {
		t.Fatalf("readExportXML: %v", err)
	}
	got := string(data)
	if want := "<?xml version=\"1.0\"?>\n\n<HealthData sourceName=\"BadName\"/>"; got != want {
		t.Errorf("stripped XML = %q, want %q", got, want)
	}
}

func TestStripRecordType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HKQuantityTypeIdentifierBodyMass", "BodyMass"},
		{"HKCategoryTypeIdentifierSleepAnalysis", "SleepAnalysis"},
		{"HKDataTypeSleepDurationGoal", "SleepDurationGoal"},
		{"AppleStandHour", "AppleStandHour"},
	}
	for _, tt := range tests {
		if got := stripRecordType(tt.in); got != tt.want {
			t.Errorf("stripRecordType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
