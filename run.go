package oddish

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// syncIdentifierCol is the workout metadata key used to address a single run.
const syncIdentifierCol = "HKMetadataKeySyncIdentifier"

// HeartRateSample is one point of the per-second heart-rate series. Status is
// "real" for measured samples and "sampled" for interpolated grid points.
type HeartRateSample struct {
	Time   time.Time
	Value  float64
	Status string
}

// Run joins a single running workout across the quantity, workout, and route
// tables: the workout row itself, the nearest-preceding physiological
// samples, the in-window heart-rate series interpolated to one second, and
// the GPX track points with a derived pace-per-heart-beat.
type Run struct {
	ID        string
	RouteID   string
	RouteFile string
	TimeZone  *time.Location

	DateOfBirth time.Time
	Sex         string

	Weight                   float64
	RestingHeartRate         float64
	VO2Max                   float64
	HeartRateVariabilitySDNN float64

	Temperature float64 // °F, from HKWeatherTemperature
	Humidity    float64 // fraction 0..1, from HKWeatherHumidity

	Duration  float64 // minutes
	StartDate time.Time
	EndDate   time.Time

	ActiveEnergy      float64
	BasalEnergy       float64
	Distance          float64
	ElevationAscended float64 // cm, from HKElevationAscended

	HeartRate        []HeartRateSample // 1s grid between first and last sample
	Route            *Table            // this run's track points
	PacePerHeartBeat []float64         // aligned with Route.Rows; NaN when HR unavailable
}

// NewRun composes a Run from the workout identified by its sync identifier.
func NewRun(hk *HealthKit, syncID string) (*Run, error) {
	running, ok := hk.Workouts["Running"]
	if !ok {
		return nil, fmt.Errorf("no Running workouts in export")
	}
	workout, ok := running.First(func(r Row) bool {
		return r.String(syncIdentifierCol) == syncID
	})
	if !ok {
		return nil, fmt.Errorf("no Running workout with sync identifier %q", syncID)
	}

	startDate, ok := workout.Time("startDate")
	if !ok {
		return nil, fmt.Errorf("workout %q has no startDate", syncID)
	}
	endDate, _ := workout.Time("endDate")

	r := &Run{
		ID:          syncID,
		DateOfBirth: hk.DateOfBirth,
		Sex:         strings.ToLower(strings.TrimPrefix(hk.Characteristics["BiologicalSex"], "HKBiologicalSex")),
		StartDate:   startDate,
		EndDate:     endDate,
	}

	if tz := workout.String("HKTimeZone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("workout time zone %q: %w", tz, err)
		}
		r.TimeZone = loc
	}

	var err error
	if r.Weight, err = lastValueBefore(hk, "BodyMass", startDate); err != nil {
		return nil, err
	}
	if r.RestingHeartRate, err = lastValueBefore(hk, "RestingHeartRate", startDate); err != nil {
		return nil, err
	}
	if r.VO2Max, err = lastValueBefore(hk, "VO2Max", startDate); err != nil {
		return nil, err
	}
	if r.HeartRateVariabilitySDNN, err = lastValueBefore(hk, "HeartRateVariabilitySDNN", startDate); err != nil {
		return nil, err
	}

	r.Duration, _ = workout.Float("duration")
	r.ActiveEnergy = workoutValue(workout, "HKQuantityTypeIdentifierActiveEnergyBurned", "ActiveEnergyBurned_sum")
	r.BasalEnergy = workoutValue(workout, "HKQuantityTypeIdentifierBasalEnergyBurned", "BasalEnergyBurned_sum")
	r.Distance = workoutValue(workout, "HKQuantityTypeIdentifierDistanceWalkingRunning", "DistanceWalkingRunning_sum")
	r.Temperature, _ = suffixedFloat(workout.String("HKWeatherTemperature"), "degF")
	if humidity, err := suffixedFloat(workout.String("HKWeatherHumidity"), "%"); err == nil {
		r.Humidity = humidity / 100
	}
	r.ElevationAscended, _ = suffixedFloat(workout.String("HKElevationAscended"), "cm")

	// Route rows for this workout's referenced GPX file.
	r.RouteFile = workout.String(routeFileReferenceCol)
	if r.RouteFile != "" {
		r.RouteID = strings.TrimSuffix(filepath.Base(r.RouteFile), ".gpx")
	}
	r.Route = hk.Routes.Filter(func(row Row) bool {
		return row.String("route_id") == r.RouteID
	})

	// In-window heart-rate samples interpolated to a one-second grid.
	heartRate, ok := hk.Quantities["HeartRate"]
	if !ok {
		return nil, fmt.Errorf("no HeartRate quantity table in export")
	}
	var samples []HeartRateSample
	for _, row := range heartRate.Rows {
		ts, tok := row.Time("startDate")
		v, vok := row.Float("value")
		if !tok || !vok || !ts.After(startDate) || !ts.Before(endDate) {
			continue
		}
		samples = append(samples, HeartRateSample{Time: ts, Value: v, Status: "real"})
	}
	r.HeartRate = interpolateHeartRate(samples)
	r.PacePerHeartBeat = r.calcPacePerHeartBeat()

	return r, nil
}

// lastValueBefore returns the value of the most recent sample of a quantity
// type strictly before the cutoff.
func lastValueBefore(hk *HealthKit, quantityType string, cutoff time.Time) (float64, error) {
	tbl, ok := hk.Quantities[quantityType]
	if !ok {
		return 0, fmt.Errorf("no %s quantity table in export", quantityType)
	}
	row, ok := tbl.LastBefore("startDate", cutoff)
	if !ok {
		return 0, fmt.Errorf("no %s sample before %s", quantityType, cutoff.Format(time.RFC3339))
	}
	v, ok := row.Float("value")
	if !ok {
		return 0, fmt.Errorf("non-numeric %s value", quantityType)
	}
	return v, nil
}

// workoutValue reads a workout cell by its metadata column, falling back to
// the statistics column newer exports use.
func workoutValue(workout Row, metadataCol, statisticsCol string) float64 {
	if v, ok := workout.Float(metadataCol); ok {
		return v
	}
	v, _ := workout.Float(statisticsCol)
	return v
}

// suffixedFloat parses values like "72.5 degF", "64 %", "3200 cm".
func suffixedFloat(s, suffix string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), suffix))
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(s, 64)
}

// interpolateHeartRate resamples measured heart-rate points onto a one-second
// grid spanning first to last sample. Grid slots hit by a measurement keep it
// with Status "real"; gaps are filled by linear interpolation in time with
// Status "sampled".
func interpolateHeartRate(samples []HeartRateSample) []HeartRateSample {
	if len(samples) == 0 {
		return nil
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Time.Before(samples[j].Time)
	})

	origin := samples[0].Time
	slots := int(math.Round(samples[len(samples)-1].Time.Sub(origin).Seconds()))

	// First measurement wins when two land in the same second.
	measured := make(map[int]float64, len(samples))
	var measuredSlots []int
	for _, s := range samples {
		slot := int(math.Round(s.Time.Sub(origin).Seconds()))
		if _, taken := measured[slot]; !taken {
			measured[slot] = s.Value
			measuredSlots = append(measuredSlots, slot)
		}
	}
	sort.Ints(measuredSlots)

	out := make([]HeartRateSample, 0, slots+1)
	prev := measuredSlots[0]
	nextIdx := 0
	for i := 0; i <= slots; i++ {
		t := origin.Add(time.Duration(i) * time.Second)
		if v, ok := measured[i]; ok {
			out = append(out, HeartRateSample{Time: t, Value: v, Status: "real"})
			prev = i
			continue
		}
		for nextIdx < len(measuredSlots) && measuredSlots[nextIdx] <= i {
			nextIdx++
		}
		v := measured[prev]
		if nextIdx < len(measuredSlots) {
			next := measuredSlots[nextIdx]
			frac := float64(i-prev) / float64(next-prev)
			v = measured[prev] + (measured[next]-measured[prev])*frac
		}
		out = append(out, HeartRateSample{Time: t, Value: v, Status: "sampled"})
	}
	return out
}

// heartRateAt returns the interpolated heart rate at the grid second nearest
// to t, clamped to the series bounds.
func (r *Run) heartRateAt(t time.Time) (float64, bool) {
	if len(r.HeartRate) == 0 {
		return 0, false
	}
	slot := int(math.Round(t.Sub(r.HeartRate[0].Time).Seconds()))
	if slot < 0 {
		slot = 0
	}
	if slot >= len(r.HeartRate) {
		slot = len(r.HeartRate) - 1
	}
	return r.HeartRate[slot].Value, true
}

// calcPacePerHeartBeat divides each track point's speed by the interpolated
// heart rate at that point's timestamp. NaN marks points where either side
// is unavailable.
func (r *Run) calcPacePerHeartBeat() []float64 {
	out := make([]float64, r.Route.Len())
	for i, row := range r.Route.Rows {
		out[i] = math.NaN()
		speed, okSpeed := row.Float("speed")
		ts, okTime := row.Time("time")
		if !okSpeed || !okTime {
			continue
		}
		hr, ok := r.heartRateAt(ts)
		if !ok || hr <= 0 {
			continue
		}
		out[i] = speed / hr
	}
	return out
}
