// Package externaldb imports canonical records from a third-party SQLite
// export database, such as the ones external sync tooling drops on disk.
// Known table layouts get a fast path; anything else goes through a
// heuristic column-name scan.  The whole read path treats the file as
// untrusted input: row counts are bounded, and every cell is type-checked
// before conversion.
package externaldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"health-analyzer/pkg/canonical"
	"health-analyzer/pkg/fieldmap"
	"health-analyzer/pkg/normalize"
)

// ErrSourceUnavailable marks a missing or unreadable export database.  The
// condition is fatal for this sub-import only; the caller's sibling imports
// proceed.
var ErrSourceUnavailable = errors.New("external database unavailable")

// maxRowsPerTable bounds how much of an arbitrary third-party table we will
// read.  An export with more history than this gets truncated, not trusted.
const maxRowsPerTable = 10000

// Source label stamped on records imported from an export database.
const sourceLabel = "external-db"

// Known table names, probed in order.  These follow the layout the common
// Garmin export tooling writes.
var (
	knownDailyTables     = []string{"daily_summary", "days_summary"}
	knownSleepTables     = []string{"sleep"}
	knownWeightTables    = []string{"weight"}
	knownRestingHRTables = []string{"resting_hr"}
)

// dailyColumns maps canonical metrics onto the column spellings seen in
// daily-summary tables.  Ordered most specific first, same contract as the
// tabular field mapper.
var dailyColumns = map[string][]string{
	"date":           {"day", "date", "timestamp"},
	"steps":          {"steps"},
	"calories":       {"calories_total", "calories_burned", "calories"},
	"distance":       {"distance"},
	"resting_hr":     {"rhr", "resting_heart_rate", "resting_hr"},
	"hr_min":         {"hr_min"},
	"hr_max":         {"hr_max"},
	"stress":         {"stress_avg", "stress"},
	"floors":         {"floors"},
	"active_minutes": {"moderate_activity_time", "intensity_time", "active_minutes"},
	"hydration":      {"hydration_intake", "hydration"},
	"spo2":           {"spo2_avg", "spo2"},
	"body_battery":   {"bb_max", "body_battery"},
}

var sleepColumns = map[string][]string{
	"date":     {"day", "date"},
	"duration": {"total_sleep", "duration"},
	"deep":     {"deep_sleep", "deep"},
	"rem":      {"rem_sleep", "rem"},
	"score":    {"score"},
	"start":    {"start"},
	"end":      {"end"},
}

// Import reads one export database and persists what it recognizes.  days
// bounds the window: rows older than now minus days are discarded; zero
// means no cutoff.
func Import(ctx context.Context, path string, userID int64, days int, store canonical.Store) (*canonical.ImportResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	res := canonical.NewImportResult()
	agg := canonical.NewAggregator(userID, sourceLabel)
	cutoff := cutoffDay(time.Now(), days)

	recognized := 0
	if table, ok := firstExistingTable(ctx, db, knownDailyTables); ok {
		importDaily(ctx, db, table, cutoff, true, agg, res)
		recognized++
	} else if table, ok := scanForTable(ctx, db, qualifiesAsDaily); ok {
		importDaily(ctx, db, table, cutoff, false, agg, res)
		recognized++
	}

	if table, ok := firstExistingTable(ctx, db, knownSleepTables); ok {
		importSleep(ctx, db, table, cutoff, agg, res)
		recognized++
	} else if table, ok := scanForTable(ctx, db, qualifiesAsSleep); ok {
		importSleep(ctx, db, table, cutoff, agg, res)
		recognized++
	}

	if table, ok := firstExistingTable(ctx, db, knownWeightTables); ok {
		importWeight(ctx, db, table, cutoff, agg, res)
		recognized++
	} else if table, ok := scanForTable(ctx, db, qualifiesAsWeight); ok {
		importWeight(ctx, db, table, cutoff, agg, res)
		recognized++
	}

	if table, ok := firstExistingTable(ctx, db, knownRestingHRTables); ok {
		importRestingHR(ctx, db, table, cutoff, agg, res)
		recognized++
	}

	if recognized == 0 {
		res.AddWarning("no recognizable tables in export database")
		return res, nil
	}
	res.FilesParsed = 1

	if err := agg.Flush().Persist(ctx, store, res); err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}
	return res, nil
}

// cutoffDay computes the ISO day floor for the import window.
func cutoffDay(now time.Time, days int) string {
	if days <= 0 {
		return ""
	}
	day := now.AddDate(0, 0, -days)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()).Format(normalize.ISODate)
}

// resolveRowDay pulls and normalizes a row's date column, applying the
// cutoff window.  ISO day strings compare lexically, so the cutoff is a
// plain string comparison.
func resolveRowDay(row map[string]string, columns map[string][]string, cutoff string) (string, bool) {
	raw, ok := fieldmap.Resolve(row, columns["date"])
	if !ok {
		return "", false
	}
	day, ok := normalize.Date(raw)
	if !ok {
		return "", false
	}
	if cutoff != "" && day < cutoff {
		return "", false
	}
	return day, true
}

// importDaily reads one daily-summary table.  metersKnown says the table
// follows the known Garmin layout, where distance is always meters; a table
// found by the heuristic scan only gets a magnitude guess.
func importDaily(ctx context.Context, db *sql.DB, table, cutoff string, metersKnown bool, agg *canonical.Aggregator, res *canonical.ImportResult) {
	rows, err := scanTable(ctx, db, table)
	if err != nil {
		res.AddError("read %s: %v", table, err)
		return
	}
	for _, row := range rows {
		day, ok := resolveRowDay(row, dailyColumns, cutoff)
		if !ok {
			continue
		}
		res.RowsParsed++
		rec := agg.Day(day)
		if v, ok := resolveNum(row, dailyColumns["steps"]); ok {
			rec.Steps = canonical.Int(int64(v))
		}
		if v, ok := resolveNum(row, dailyColumns["calories"]); ok {
			rec.Calories = canonical.Float(v)
		}
		if v, ok := resolveNum(row, dailyColumns["distance"]); ok {
			if metersKnown || v > 1000 {
				v = v / 1000
			}
			rec.DistanceKm = canonical.Float(v)
		}
		if v, ok := resolveNum(row, dailyColumns["resting_hr"]); ok {
			rec.RestingHeartRate = canonical.Int(int64(v))
		}
		if v, ok := resolveNum(row, dailyColumns["stress"]); ok {
			rec.StressAvg = canonical.Int(canonical.ClampStress(v))
		}
		if v, ok := resolveNum(row, dailyColumns["floors"]); ok {
			rec.Floors = canonical.Float(v)
		}
		if raw, ok := fieldmap.Resolve(row, dailyColumns["active_minutes"]); ok {
			if mins, ok := normalize.DurationMinutes(raw); ok {
				rec.ActiveMinutes = canonical.Float(mins)
			}
		}
		if v, ok := resolveNum(row, dailyColumns["spo2"]); ok {
			rec.SpO2Avg = canonical.Float(v)
		}
		if v, ok := resolveNum(row, dailyColumns["body_battery"]); ok {
			rec.BodyBattery = canonical.Int(int64(v))
		}
		if v, ok := resolveNum(row, dailyColumns["hydration"]); ok {
			rec.HydrationMl = canonical.Float(v)
		}

		// Daily HR extremes become samples keyed at the day's midnight so
		// they survive as observations without pretending to be averages.
		if t, ok := normalize.Time(day); ok {
			if v, ok := resolveNum(row, dailyColumns["hr_min"]); ok {
				agg.AddSample(canonical.BiometricSample{Type: "heart_rate_min", StartAt: t.Unix(), ValueNum: canonical.Float(v), Unit: "bpm"})
			}
			if v, ok := resolveNum(row, dailyColumns["hr_max"]); ok {
				agg.AddSample(canonical.BiometricSample{Type: "heart_rate_max", StartAt: t.Unix(), ValueNum: canonical.Float(v), Unit: "bpm"})
			}
		}
	}
}

func importSleep(ctx context.Context, db *sql.DB, table, cutoff string, agg *canonical.Aggregator, res *canonical.ImportResult) {
	rows, err := scanTable(ctx, db, table)
	if err != nil {
		res.AddError("read %s: %v", table, err)
		return
	}
	for _, row := range rows {
		day, ok := resolveRowDay(row, sleepColumns, cutoff)
		if !ok {
			continue
		}
		res.RowsParsed++
		rec := agg.Sleep(day)
		if raw, ok := fieldmap.Resolve(row, sleepColumns["duration"]); ok {
			if mins, ok := normalize.DurationMinutes(raw); ok && mins >= 0 {
				rec.DurationHours = canonical.Float(mins / 60)
			}
		}
		if raw, ok := fieldmap.Resolve(row, sleepColumns["deep"]); ok {
			if mins, ok := normalize.DurationMinutes(raw); ok && mins >= 0 {
				rec.DeepSleepHours = canonical.Float(mins / 60)
			}
		}
		if raw, ok := fieldmap.Resolve(row, sleepColumns["rem"]); ok {
			if mins, ok := normalize.DurationMinutes(raw); ok && mins >= 0 {
				rec.RemSleepHours = canonical.Float(mins / 60)
			}
		}
		if v, ok := resolveNum(row, sleepColumns["score"]); ok && v >= 1 && v <= 100 {
			rec.Score = canonical.Int(int64(v))
		}
		if raw, ok := fieldmap.Resolve(row, sleepColumns["start"]); ok {
			if t, ok := normalize.Time(raw); ok {
				rec.Bedtime = canonical.Str(normalize.ClockHHMM(t))
			}
		}
		if raw, ok := fieldmap.Resolve(row, sleepColumns["end"]); ok {
			if t, ok := normalize.Time(raw); ok {
				rec.WakeTime = canonical.Str(normalize.ClockHHMM(t))
			}
		}
	}
}

func importWeight(ctx context.Context, db *sql.DB, table, cutoff string, agg *canonical.Aggregator, res *canonical.ImportResult) {
	rows, err := scanTable(ctx, db, table)
	if err != nil {
		res.AddError("read %s: %v", table, err)
		return
	}
	columns := map[string][]string{"date": {"day", "date"}}
	for _, row := range rows {
		day, ok := resolveRowDay(row, columns, cutoff)
		if !ok {
			continue
		}
		v, ok := resolveNum(row, []string{"weight"})
		if !ok || v <= 0 {
			continue
		}
		res.RowsParsed++
		rec := agg.Body(day)
		rec.WeightKg = canonical.Float(v)
		if bmi, ok := resolveNum(row, []string{"bmi"}); ok {
			rec.BMI = canonical.Float(bmi)
		}
		if fat, ok := resolveNum(row, []string{"body_fat", "fat"}); ok {
			rec.BodyFatPct = canonical.Float(fat)
		}
	}
}

func importRestingHR(ctx context.Context, db *sql.DB, table, cutoff string, agg *canonical.Aggregator, res *canonical.ImportResult) {
	rows, err := scanTable(ctx, db, table)
	if err != nil {
		res.AddError("read %s: %v", table, err)
		return
	}
	columns := map[string][]string{"date": {"day", "date"}}
	for _, row := range rows {
		day, ok := resolveRowDay(row, columns, cutoff)
		if !ok {
			continue
		}
		v, ok := resolveNum(row, []string{"resting_heart_rate", "rhr"})
		if !ok || v <= 0 {
			continue
		}
		res.RowsParsed++
		rec := agg.Day(day)
		if rec.RestingHeartRate == nil {
			rec.RestingHeartRate = canonical.Int(int64(v))
		}
	}
}

func resolveNum(row map[string]string, candidates []string) (float64, bool) {
	raw, ok := fieldmap.Resolve(row, candidates)
	if !ok {
		return 0, false
	}
	return fieldmap.Number(raw)
}

// --- schema discovery -------------------------------------------------------

// firstExistingTable probes the known-layout names in order.
func firstExistingTable(ctx context.Context, db *sql.DB, names []string) (string, bool) {
	for _, name := range names {
		var found string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&found)
		if err == nil {
			return found, true
		}
	}
	return "", false
}

// scanForTable walks every table and returns the first whose column set
// satisfies the qualifier.  One table per entity kind: the scan stops at the
// first hit.
func scanForTable(ctx context.Context, db *sql.DB, qualifies func([]string) bool) (string, bool) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		return "", false
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", false
		}
		cols, err := tableColumns(ctx, db, name)
		if err != nil {
			continue
		}
		if qualifies(cols) {
			return name, true
		}
	}
	return "", false
}

// tableColumns lists lowercase column names via PRAGMA table_info.
func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, strings.ToLower(name))
	}
	return cols, rows.Err()
}

// qualifiesAsDaily: a table is an activity-daily table when it has both a
// date-like and a step-like column.
func qualifiesAsDaily(cols []string) bool {
	return hasColumnLike(cols, "date", "day", "time") && hasColumnLike(cols, "step")
}

func qualifiesAsSleep(cols []string) bool {
	return hasColumnLike(cols, "date", "day", "time") && hasColumnLike(cols, "sleep")
}

func qualifiesAsWeight(cols []string) bool {
	return hasColumnLike(cols, "date", "day", "time") && hasColumnLike(cols, "weight")
}

func hasColumnLike(cols []string, needles ...string) bool {
	for _, col := range cols {
		for _, needle := range needles {
			if strings.Contains(col, needle) {
				return true
			}
		}
	}
	return false
}

// quoteIdent wraps an untrusted table name for interpolation into PRAGMA
// and SELECT statements, which cannot take placeholders for identifiers.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// scanTable reads up to maxRowsPerTable rows into string maps.  Values are
// converted through a type switch — anything that is not a number, string,
// byte slice, or time comes through empty rather than panicking a cast.
func scanTable(ctx context.Context, db *sql.DB, table string) ([]map[string]string, error) {
	query := fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, quoteIdent(table), maxRowsPerTable)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]string, len(cols))
		for i, col := range cols {
			row[col] = cellToString(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func cellToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}
