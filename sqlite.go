package oddish

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ExportSQLite writes every ingested table into a SQLite database file:
// one `quantity_<Type>` table per quantity type, one `workout_<Type>` table
// per activity type, and a single `routes` table. Existing tables are
// replaced. The file ends up queryable with any SQLite client, which is the
// point — the export becomes a dataset instead of an XML blob.
func (hk *HealthKit) ExportSQLite(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening sqlite database: %w", err)
	}
	defer db.Close()

	for _, key := range sortedKeys(hk.Quantities) {
		if err := writeSQLiteTable(db, "quantity_"+key, hk.Quantities[key]); err != nil {
			return err
		}
	}
	for _, key := range sortedKeys(hk.Workouts) {
		if err := writeSQLiteTable(db, "workout_"+key, hk.Workouts[key]); err != nil {
			return err
		}
	}
	if hk.Routes != nil {
		if err := writeSQLiteTable(db, "routes", hk.Routes); err != nil {
			return err
		}
	}

	hk.log.Info("exported tables to sqlite", zap.String("path", path))
	return nil
}

func sortedKeys(m map[string]*Table) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeSQLiteTable replaces one SQLite table with a Table's rows, inserting
// inside a single transaction.
func writeSQLiteTable(db *sql.DB, name string, tbl *Table) error {
	if len(tbl.Columns) == 0 {
		return nil
	}

	quoted := make([]string, len(tbl.Columns))
	defs := make([]string, len(tbl.Columns))
	marks := make([]string, len(tbl.Columns))
	for i, col := range tbl.Columns {
		quoted[i] = quoteIdent(col)
		defs[i] = quoted[i] + " " + sqliteColumnType(tbl, col)
		marks[i] = "?"
	}

	if _, err := db.Exec("DROP TABLE IF EXISTS " + quoteIdent(name)); err != nil {
		return fmt.Errorf("dropping table %s: %w", name, err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := db.Exec(create); err != nil {
		return fmt.Errorf("creating table %s: %w", name, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction for %s: %w", name, err)
	}
	defer tx.Rollback()

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	stmt, err := tx.Prepare(insert)
	if err != nil {
		return fmt.Errorf("preparing insert for %s: %w", name, err)
	}
	defer stmt.Close()

	args := make([]any, len(tbl.Columns))
	for _, row := range tbl.Rows {
		for i, col := range tbl.Columns {
			args[i] = sqliteValue(row[col])
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("inserting into %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// sqliteColumnType infers REAL/TIMESTAMP/TEXT from the first typed cell.
func sqliteColumnType(tbl *Table, col string) string {
	for _, row := range tbl.Rows {
		switch row[col].(type) {
		case nil:
			continue
		case float64:
			return "REAL"
		case time.Time:
			return "TIMESTAMP"
		default:
			return "TEXT"
		}
	}
	return "TEXT"
}

// sqliteValue maps a cell to a driver-friendly value; timestamps are stored
// as RFC3339 text to stay portable across SQLite clients.
func sqliteValue(cell any) any {
	switch v := cell.(type) {
	case nil:
		return nil
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return v
	}
}

// quoteIdent double-quotes an identifier, escaping embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
