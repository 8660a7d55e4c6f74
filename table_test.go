package oddish

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestTableAppend(t *testing.T) {
	tbl := NewTable("BodyMass")
	tbl.Append(map[string]string{"type": "BodyMass", "value": "172.4", "unit": "lb"})
	tbl.Append(map[string]string{"type": "BodyMass", "value": "171.1", "unit": "lb", "device": "scale"})

	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
	// Columns keep first-seen order; within one record new columns register
	// in sorted key order.
	want := []string{"type", "unit", "value", "device"}
	if diff := cmp.Diff(want, tbl.Columns); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}
	if !tbl.HasColumn("device") || tbl.HasColumn("weight") {
		t.Errorf("HasColumn gave wrong answers")
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2024-06-01 07:00:00 -0700", "2024-06-01T07:00:00-07:00", false},
		{"2024-06-01T14:00:01Z", "2024-06-01T14:00:01Z", false},
		{"1990-04-12", "1990-04-12T00:00:00Z", false},
		{" 2024-06-01 07:00:00 -0700 ", "2024-06-01T07:00:00-07:00", false},
		{"not a date", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTime(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTime(%q): %v", tt.in, err)
			continue
		}
		if got.Format(time.RFC3339) != tt.want {
			t.Errorf("ParseTime(%q) = %s, want %s", tt.in, got.Format(time.RFC3339), tt.want)
		}
	}
}

func TestCoerceDates(t *testing.T) {
	tbl := NewTable("test")
	tbl.Append(map[string]string{"startDate": "2024-06-01 07:00:00 -0700", "endDate": "garbage", "value": "1"})
	tbl.CoerceDates("date")

	if _, ok := tbl.Rows[0]["startDate"].(time.Time); !ok {
		t.Errorf("startDate not coerced: %T", tbl.Rows[0]["startDate"])
	}
	// Unparseable cells stay strings instead of being dropped.
	if got := tbl.Rows[0]["endDate"]; got != "garbage" {
		t.Errorf("endDate = %v, want the raw string", got)
	}
	if got := tbl.Rows[0]["value"]; got != "1" {
		t.Errorf("non-date column touched: %v", got)
	}
}

func TestCoerceNumeric(t *testing.T) {
	t.Run("AllParse", func(t *testing.T) {
		tbl := NewTable("test")
		tbl.Append(map[string]string{"value": "1.5"})
		tbl.Append(map[string]string{"value": ""})
		tbl.Append(map[string]string{"value": "2"})
		if !tbl.CoerceNumeric("value") {
			t.Fatal("CoerceNumeric = false, want true")
		}
		if got := tbl.Rows[0]["value"]; got != 1.5 {
			t.Errorf("row 0 value = %v (%T), want 1.5", got, got)
		}
		// Empty cells are left alone.
		if got := tbl.Rows[1]["value"]; got != "" {
			t.Errorf("row 1 value = %v, want empty string", got)
		}
		if got := tbl.Rows[2]["value"]; got != 2.0 {
			t.Errorf("row 2 value = %v (%T), want 2", got, got)
		}
	})

	t.Run("OneBadCellAbortsAll", func(t *testing.T) {
		tbl := NewTable("test")
		tbl.Append(map[string]string{"value": "1.5"})
		tbl.Append(map[string]string{"value": "HKCategoryValueNotApplicable"})
		if tbl.CoerceNumeric("value") {
			t.Fatal("CoerceNumeric = true, want false")
		}
		if got := tbl.Rows[0]["value"]; got != "1.5" {
			t.Errorf("row 0 value = %v, want untouched string", got)
		}
	})

	t.Run("MissingColumn", func(t *testing.T) {
		tbl := NewTable("test")
		tbl.Append(map[string]string{"value": "1"})
		if tbl.CoerceNumeric("weight") {
			t.Error("CoerceNumeric on missing column = true, want false")
		}
	})
}

func TestFilter(t *testing.T) {
	tbl := NewTable("routes")
	tbl.Append(map[string]string{"route_id": "a", "lat": "1"})
	tbl.Append(map[string]string{"route_id": "b", "lat": "2"})
	tbl.Append(map[string]string{"route_id": "a", "lat": "3"})

	got := tbl.Filter(func(r Row) bool { return r.String("route_id") == "a" })
	if got.Len() != 2 {
		t.Fatalf("filtered Len() = %d, want 2", got.Len())
	}
	if diff := cmp.Diff(tbl.Columns, got.Columns); diff != "" {
		t.Errorf("filtered columns mismatch (-want +got):\n%s", diff)
	}
}

func TestLastBefore(t *testing.T) {
	tbl := NewTable("BodyMass")
	tbl.Append(map[string]string{"startDate": "2024-05-31 06:30:00 -0700", "value": "172.4"})
	tbl.Append(map[string]string{"startDate": "2024-06-10 06:30:00 -0700", "value": "171.1"})
	tbl.CoerceDates("date")

	cutoff, _ := ParseTime("2024-06-01 07:00:00 -0700")
	row, ok := tbl.LastBefore("startDate", cutoff)
	if !ok {
		t.Fatal("LastBefore found nothing")
	}
	if got := row["value"]; got != "172.4" {
		t.Errorf("LastBefore picked value %v, want 172.4", got)
	}

	early, _ := ParseTime("2024-01-01 00:00:00 -0700")
	if _, ok := tbl.LastBefore("startDate", early); ok {
		t.Error("LastBefore before all samples should miss")
	}
}

func TestRowAccessors(t *testing.T) {
	ts, _ := ParseTime("2024-06-01 07:00:00 -0700")
	row := Row{"when": ts, "raw": "2024-06-01 08:00:00 -0700", "value": 1.5, "text": "hi", "num": "2.5"}

	if got, ok := row.Time("when"); !ok || !got.Equal(ts) {
		t.Errorf("Time(when) = %v, %v", got, ok)
	}
	if got, ok := row.Time("raw"); !ok || got.Hour() != 8 {
		t.Errorf("Time(raw) = %v, %v", got, ok)
	}
	if _, ok := row.Time("text"); ok {
		t.Error("Time(text) should miss")
	}
	if got, ok := row.Float("value"); !ok || got != 1.5 {
		t.Errorf("Float(value) = %v, %v", got, ok)
	}
	if got, ok := row.Float("num"); !ok || got != 2.5 {
		t.Errorf("Float(num) = %v, %v", got, ok)
	}
	if got := row.String("value"); got != "1.5" {
		t.Errorf("String(value) = %q", got)
	}
	if got := row.String("missing"); got != "" {
		t.Errorf("String(missing) = %q, want empty", got)
	}
	if got := row.String("when"); got != "2024-06-01 07:00:00 -0700" {
		t.Errorf("String(when) = %q", got)
	}
}
