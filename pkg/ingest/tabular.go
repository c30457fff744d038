package ingest

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"health-analyzer/pkg/canonical"
	"health-analyzer/pkg/fieldmap"
	"health-analyzer/pkg/normalize"
)

// rowShape classifies what kind of observations a tabular file carries.
type rowShape string

const (
	shapeSleep     rowShape = "sleep"
	shapeBody      rowShape = "body"
	shapeActivity  rowShape = "activity"
	shapeStress    rowShape = "stress"
	shapeHeartRate rowShape = "heart-rate"
	shapeUnknown   rowShape = "unknown"
)

// shapeRules is the ordered classification table: the first rule whose
// substring appears in any normalized header wins.  Order is deliberate —
// daily activity exports often include a resting-heart-rate column, so the
// step/calorie rule must run before the looser heart-rate rule.
var shapeRules = []struct {
	shape rowShape
	anyOf []string
}{
	{shapeSleep, []string{"sleep"}},
	{shapeBody, []string{"weight", "body fat", "bmi", "muscle mass"}},
	{shapeActivity, []string{"step", "calorie", "active minutes", "distance"}},
	{shapeStress, []string{"stress"}},
	{shapeHeartRate, []string{"heart rate", "bpm", "pulse"}},
}

// classifyHeader matches the shape rules against a header row.
func classifyHeader(headers []string) rowShape {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = fieldmap.NormalizeName(h)
	}
	for _, rule := range shapeRules {
		for _, needle := range rule.anyOf {
			for _, h := range normalized {
				if strings.Contains(h, needle) {
					return rule.shape
				}
			}
		}
	}
	return shapeUnknown
}

// parseTabular streams a delimited text file row by row: read the header,
// classify the shape once, then fold each row into the aggregator.  A bad
// row is counted and skipped, never fatal; an unclassifiable header is a
// warning because the whole file carries nothing we recognize.
func parseTabular(r io.Reader, agg *canonical.Aggregator, res *canonical.ImportResult) error {
	br := newHeaderReader(r)
	headerLine, err := br.peekLine()
	if err != nil {
		return err
	}

	cr := csv.NewReader(br)
	cr.Comma = detectDelimiter(headerLine)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	headers, err := cr.Read()
	if err != nil {
		return err
	}
	shape := classifyHeader(headers)
	if shape == shapeUnknown {
		res.AddWarning("no recognizable columns in tabular input")
		return nil
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.AddError("bad row: %v", err)
			continue
		}
		row := rowToMap(headers, record)
		res.RowsParsed++
		handleRow(shape, row, agg, res)
	}
	return nil
}

// rowToMap zips header names with row values; short rows leave the
// trailing columns absent rather than erroring.
func rowToMap(headers, record []string) map[string]string {
	row := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(record) {
			row[h] = strings.TrimSpace(record[i])
		}
	}
	return row
}

// handleRow dispatches one row map to the shape-specific extractor.
func handleRow(shape rowShape, row map[string]string, agg *canonical.Aggregator, res *canonical.ImportResult) {
	switch shape {
	case shapeActivity:
		handleActivityRow(row, agg, res)
	case shapeSleep:
		handleSleepRow(row, agg, res)
	case shapeBody:
		handleBodyRow(row, agg, res)
	case shapeStress:
		handleStressRow(row, agg, res)
	case shapeHeartRate:
		handleHeartRateRow(row, agg, res)
	}
}

// resolveDay finds and normalizes the row's date; rows without one cannot be
// keyed and count as errors.
func resolveDay(row map[string]string, res *canonical.ImportResult) (string, bool) {
	raw, ok := fieldmap.ResolveMetric(row, "date")
	if !ok {
		res.AddError("row has no date column")
		return "", false
	}
	day, ok := normalize.Date(raw)
	if !ok {
		res.AddError("unparseable date %q", raw)
		return "", false
	}
	return day, true
}

func handleActivityRow(row map[string]string, agg *canonical.Aggregator, res *canonical.ImportResult) {
	day, ok := resolveDay(row, res)
	if !ok {
		return
	}
	rec := agg.Day(day)
	if v, ok := fieldmap.ResolveNumber(row, "steps"); ok {
		rec.Steps = canonical.Int(int64(v))
	}
	if v, ok := fieldmap.ResolveNumber(row, "calories"); ok {
		rec.Calories = canonical.Float(v)
	}
	if v, ok := fieldmap.ResolveNumber(row, "active_minutes"); ok {
		rec.ActiveMinutes = canonical.Float(v)
	}
	// The resting-HR column satisfies the plain heart-rate candidates too;
	// only treat the match as an average when it came from a different column.
	if name, raw, ok := fieldmap.ResolveField(row, fieldmap.Candidates["heart_rate"]); ok {
		restingName, _, restingOK := fieldmap.ResolveField(row, fieldmap.Candidates["resting_hr"])
		if !restingOK || restingName != name {
			if v, ok := fieldmap.Number(raw); ok {
				rec.HeartRateAvg = canonical.Float(v)
			}
		}
	}
	if v, ok := fieldmap.ResolveNumber(row, "distance"); ok {
		rec.DistanceKm = canonical.Float(v)
	}
	if v, ok := fieldmap.ResolveNumber(row, "resting_hr"); ok {
		rec.RestingHeartRate = canonical.Int(int64(v))
	}
	if v, ok := fieldmap.ResolveNumber(row, "floors"); ok {
		rec.Floors = canonical.Float(v)
	}
	if v, ok := fieldmap.ResolveNumber(row, "spo2"); ok {
		rec.SpO2Avg = canonical.Float(v)
	}
	if v, ok := fieldmap.ResolveNumber(row, "stress"); ok {
		rec.StressAvg = canonical.Int(canonical.ClampStress(v))
	}
	if v, ok := fieldmap.ResolveNumber(row, "body_battery"); ok {
		rec.BodyBattery = canonical.Int(int64(v))
	}
	if v, ok := fieldmap.ResolveNumber(row, "hydration"); ok {
		rec.HydrationMl = canonical.Float(v)
	}
}

// hoursFromDurationField interprets a resolved duration value as hours.
// Clock strings parse exactly; bare numbers above 24 are minutes (nobody
// sleeps 450 hours), smaller ones are already hours.
func hoursFromDurationField(raw string) (float64, bool) {
	minutes, ok := normalize.DurationMinutes(raw)
	if !ok {
		return 0, false
	}
	if !strings.Contains(raw, ":") && minutes <= 24 {
		return minutes, true
	}
	return minutes / 60, true
}

// reClock pulls an HH:MM fragment out of bedtime/wake-time cells that may
// carry a full timestamp or just a wall-clock time.
var reClock = regexp.MustCompile(`\b(\d{1,2}:\d{2})`)

func clockFromRaw(raw string) (string, bool) {
	if t, ok := normalize.Time(raw); ok {
		return normalize.ClockHHMM(t), true
	}
	if m := reClock.FindStringSubmatch(raw); m != nil {
		hhmm := m[1]
		if len(hhmm) == 4 {
			hhmm = "0" + hhmm
		}
		return hhmm, true
	}
	return "", false
}

func handleSleepRow(row map[string]string, agg *canonical.Aggregator, res *canonical.ImportResult) {
	day, ok := resolveDay(row, res)
	if !ok {
		return
	}
	rec := agg.Sleep(day)
	if v, ok := fieldmap.ResolveNumber(row, "sleep_score"); ok && v >= 1 && v <= 100 {
		rec.Score = canonical.Int(int64(v))
	}
	if raw, ok := fieldmap.ResolveMetric(row, "sleep_duration"); ok {
		if hours, ok := hoursFromDurationField(raw); ok && hours >= 0 {
			rec.DurationHours = canonical.Float(hours)
		}
	}
	if raw, ok := fieldmap.ResolveMetric(row, "deep_sleep"); ok {
		if hours, ok := hoursFromDurationField(raw); ok && hours >= 0 {
			rec.DeepSleepHours = canonical.Float(hours)
		}
	}
	if raw, ok := fieldmap.ResolveMetric(row, "rem_sleep"); ok {
		if hours, ok := hoursFromDurationField(raw); ok && hours >= 0 {
			rec.RemSleepHours = canonical.Float(hours)
		}
	}
	if raw, ok := fieldmap.ResolveMetric(row, "bedtime"); ok {
		if hhmm, ok := clockFromRaw(raw); ok {
			rec.Bedtime = canonical.Str(hhmm)
		}
	}
	if raw, ok := fieldmap.ResolveMetric(row, "wake_time"); ok {
		if hhmm, ok := clockFromRaw(raw); ok {
			rec.WakeTime = canonical.Str(hhmm)
		}
	}
}

func handleBodyRow(row map[string]string, agg *canonical.Aggregator, res *canonical.ImportResult) {
	day, ok := resolveDay(row, res)
	if !ok {
		return
	}
	rec := agg.Body(day)
	if raw, err := json.Marshal(row); err == nil {
		rec.RawPayload = string(raw)
	}
	if v, ok := fieldmap.ResolveNumber(row, "weight"); ok {
		rec.WeightKg = canonical.Float(v)
	}
	if v, ok := fieldmap.ResolveNumber(row, "body_fat"); ok {
		rec.BodyFatPct = canonical.Float(v)
	}
	if v, ok := fieldmap.ResolveNumber(row, "bmi"); ok {
		rec.BMI = canonical.Float(v)
	}
	if v, ok := fieldmap.ResolveNumber(row, "hydration_pct"); ok {
		rec.HydrationPct = canonical.Float(v)
	}
	if v, ok := fieldmap.ResolveNumber(row, "muscle_mass"); ok {
		rec.MuscleMassKg = canonical.Float(v)
	}
	if v, ok := fieldmap.ResolveNumber(row, "visceral_fat"); ok {
		rec.VisceralFat = canonical.Float(v)
	}
	if v, ok := fieldmap.ResolveNumber(row, "bone_mass"); ok {
		rec.BoneMassKg = canonical.Float(v)
	}
	if v, ok := fieldmap.ResolveNumber(row, "bmr"); ok {
		rec.BMRKcal = canonical.Float(v)
	}
}

func handleStressRow(row map[string]string, agg *canonical.Aggregator, res *canonical.ImportResult) {
	day, ok := resolveDay(row, res)
	if !ok {
		return
	}
	if v, ok := fieldmap.ResolveNumber(row, "stress"); ok {
		agg.AddStress(day, v)
	}
}

func handleHeartRateRow(row map[string]string, agg *canonical.Aggregator, res *canonical.ImportResult) {
	rawDate, ok := fieldmap.ResolveMetric(row, "date")
	if !ok {
		res.AddError("heart-rate row has no timestamp column")
		return
	}
	ts, tsOK := normalize.Time(rawDate)
	day, dayOK := normalize.Date(rawDate)
	if !dayOK {
		res.AddError("unparseable timestamp %q", rawDate)
		return
	}
	v, ok := fieldmap.ResolveNumber(row, "heart_rate")
	if !ok {
		if v, ok = fieldmap.ResolveNumber(row, "value"); !ok {
			return
		}
	}
	agg.AddHeartRate(day, v)
	if tsOK {
		agg.AddSample(canonical.BiometricSample{
			Type:     "heart_rate",
			StartAt:  ts.Unix(),
			ValueNum: canonical.Float(v),
			Unit:     "bpm",
		})
	}
}
