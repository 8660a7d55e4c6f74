package oddish

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Row is a loosely-typed table row. Cells start life as raw attribute strings
// from the export XML and are upgraded in place to time.Time or float64 by the
// column coercion passes.
type Row map[string]any

// Table is a flat record table grouped under a single type key. Columns keep
// first-seen order so a rebuilt table lines up with the export's layout.
type Table struct {
	Key     string
	Columns []string
	Rows    []Row

	colSeen map[string]bool
}

// NewTable creates an empty table for the given type key.
func NewTable(key string) *Table {
	return &Table{Key: key, colSeen: make(map[string]bool)}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// HasColumn reports whether the table has seen the named column.
func (t *Table) HasColumn(name string) bool {
	if t.colSeen != nil {
		return t.colSeen[name]
	}
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// registerColumn records a column the first time it appears.
func (t *Table) registerColumn(name string) {
	if t.colSeen == nil {
		// Tables decoded from the gob cache arrive without the index.
		t.colSeen = make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			t.colSeen[c] = true
		}
	}
	if !t.colSeen[name] {
		t.colSeen[name] = true
		t.Columns = append(t.Columns, name)
	}
}

// Append adds a row of raw string cells, registering any new columns.
func (t *Table) Append(cells map[string]string) {
	row := make(Row, len(cells))
	// Sorted key order keeps column registration deterministic when several
	// new columns appear in the same record.
	keys := make([]string, 0, len(cells))
	for k := range cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.registerColumn(k)
		row[k] = cells[k]
	}
	t.Rows = append(t.Rows, row)
}

// AppendRow adds an already-typed row, registering any new columns.
func (t *Table) AppendRow(row Row) {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.registerColumn(k)
	}
	t.Rows = append(t.Rows, row)
}

// healthKitTimeLayouts are the timestamp formats seen across export.xml and
// GPX route files, most specific first.
var healthKitTimeLayouts = []string{
	"2006-01-02 15:04:05 -0700",
	time.RFC3339,
	"2006-01-02",
}

// ParseTime parses a HealthKit or GPX timestamp string.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range healthKitTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// CoerceDates parses every column whose lowercased name contains substr
// (typically "date" or "time") into time.Time. Cells that fail to parse are
// left as strings; the data is kept raw rather than dropped.
func (t *Table) CoerceDates(substr string) {
	for _, col := range t.Columns {
		if !strings.Contains(strings.ToLower(col), substr) {
			continue
		}
		for _, row := range t.Rows {
			s, ok := row[col].(string)
			if !ok {
				continue
			}
			if ts, err := ParseTime(s); err == nil {
				row[col] = ts
			}
		}
	}
}

// CoerceNumeric converts a column to float64, all-or-nothing: if any non-empty
// cell fails to parse the column is left untouched. Matches the original
// ETL's behavior of abandoning the conversion on the first bad value.
func (t *Table) CoerceNumeric(col string) bool {
	if !t.HasColumn(col) {
		return false
	}
	parsed := make([]float64, len(t.Rows))
	present := make([]bool, len(t.Rows))
	for i, row := range t.Rows {
		cell, ok := row[col]
		if !ok {
			continue
		}
		s, isStr := cell.(string)
		if !isStr {
			if f, isFloat := cell.(float64); isFloat {
				parsed[i] = f
				present[i] = true
				continue
			}
			return false
		}
		if s == "" {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return false
		}
		parsed[i] = f
		present[i] = true
	}
	for i, row := range t.Rows {
		if present[i] {
			row[col] = parsed[i]
		}
	}
	return true
}

// Filter returns a new table holding the rows for which keep returns true.
// Rows are shared, not copied.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := NewTable(t.Key)
	for _, col := range t.Columns {
		out.registerColumn(col)
	}
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// First returns the first row matching keep.
func (t *Table) First(keep func(Row) bool) (Row, bool) {
	for _, row := range t.Rows {
		if keep(row) {
			return row, true
		}
	}
	return nil, false
}

// LastBefore returns the row with the greatest dateCol value strictly before
// cutoff. Used for "most recent sample before the workout" joins.
func (t *Table) LastBefore(dateCol string, cutoff time.Time) (Row, bool) {
	var best Row
	var bestTime time.Time
	for _, row := range t.Rows {
		ts, ok := row.Time(dateCol)
		if !ok || !ts.Before(cutoff) {
			continue
		}
		if best == nil || ts.After(bestTime) {
			best = row
			bestTime = ts
		}
	}
	return best, best != nil
}

// Time returns a cell as time.Time, parsing string cells on the fly.
func (r Row) Time(col string) (time.Time, bool) {
	switch v := r[col].(type) {
	case time.Time:
		return v, true
	case string:
		if ts, err := ParseTime(v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Float returns a cell as float64, parsing string cells on the fly.
func (r Row) Float(col string) (float64, bool) {
	switch v := r[col].(type) {
	case float64:
		return v, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// String returns a cell formatted as a string; empty if absent.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format("2006-01-02 15:04:05 -0700")
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
