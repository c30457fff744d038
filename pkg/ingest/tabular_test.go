package ingest

import (
	"strings"
	"testing"

	"health-analyzer/pkg/canonical"
)

// parseString runs the tabular adapter over literal CSV text and returns the
// flushed snapshot next to the result.
func parseString(t *testing.T, text string) (canonical.Snapshot, *canonical.ImportResult) {
	t.Helper()
	agg := canonical.NewAggregator(1, "csv")
	res := canonical.NewImportResult()
	if err := parseTabular(strings.NewReader(text), agg, res); err != nil {
		t.Fatalf("parseTabular: %v", err)
	}
	return agg.Flush(), res
}

// TestParseTabularActivity covers the daily-activity shape, including a
// quoted thousands separator and a unit suffix in the cells.
func TestParseTabularActivity(t *testing.T) {
	t.Parallel()

	csvText := "Date,Steps,Calories Burned,Distance (km),Resting Heart Rate\n" +
		"2024-01-05,\"8,532\",2100,6.4,55\n" +
		"01/06/2024,9001,1950,7.1,54\n"
	snap, res := parseString(t, csvText)

	if res.RowsParsed != 2 {
		t.Fatalf("RowsParsed = %d, want 2", res.RowsParsed)
	}
	if len(snap.Activity) != 2 {
		t.Fatalf("activity days = %d, want 2", len(snap.Activity))
	}

	day := snap.Activity[0]
	if day.Day != "2024-01-05" {
		t.Fatalf("first day = %s, want 2024-01-05", day.Day)
	}
	if day.Steps == nil || *day.Steps != 8532 {
		t.Errorf("steps = %v, want 8532", day.Steps)
	}
	if day.Calories == nil || *day.Calories != 2100 {
		t.Errorf("calories = %v, want 2100", day.Calories)
	}
	if day.RestingHeartRate == nil || *day.RestingHeartRate != 55 {
		t.Errorf("resting hr = %v, want 55", day.RestingHeartRate)
	}
	if day.HeartRateAvg != nil {
		t.Errorf("heart rate avg = %v, want nil: the resting column must not masquerade as an average", *day.HeartRateAvg)
	}

	// The US-format slash date normalizes onto the same ISO key space.
	if snap.Activity[1].Day != "2024-01-06" {
		t.Errorf("second day = %s, want 2024-01-06", snap.Activity[1].Day)
	}
}

// TestParseTabularStepGoalAmbiguity pins the priority rule end to end: a
// file with both "Steps" and "Step Goal" columns must feed the actual count,
// not the goal, into the day record.
func TestParseTabularStepGoalAmbiguity(t *testing.T) {
	t.Parallel()

	snap, _ := parseString(t, "Date,Steps,Step Goal\n2024-01-05,8532,10000\n")
	if len(snap.Activity) != 1 {
		t.Fatalf("activity days = %d, want 1", len(snap.Activity))
	}
	if got := snap.Activity[0].Steps; got == nil || *got != 8532 {
		t.Errorf("steps = %v, want 8532 (not the goal)", got)
	}
}

// TestParseTabularBothHeartRateColumns checks that a file carrying both an
// average and a resting column fills both fields from their own columns.
func TestParseTabularBothHeartRateColumns(t *testing.T) {
	t.Parallel()

	snap, _ := parseString(t, "Date,Steps,Avg Heart Rate,Resting Heart Rate\n2024-01-05,100,72,55\n")
	if len(snap.Activity) != 1 {
		t.Fatalf("activity days = %d, want 1", len(snap.Activity))
	}
	day := snap.Activity[0]
	if day.HeartRateAvg == nil || *day.HeartRateAvg != 72 {
		t.Errorf("heart rate avg = %v, want 72", day.HeartRateAvg)
	}
	if day.RestingHeartRate == nil || *day.RestingHeartRate != 55 {
		t.Errorf("resting hr = %v, want 55", day.RestingHeartRate)
	}
}

// TestParseTabularSleep covers the sleep shape: scores on the 1-100 scale,
// clock-style durations as fractional hours, and bedtime extraction.
func TestParseTabularSleep(t *testing.T) {
	t.Parallel()

	csvText := "Date,Sleep Score,Sleep Duration,Deep Sleep,Bedtime,Wake Time\n" +
		"2024-01-05,82,07:30,01:15,22:45,06:15\n"
	snap, _ := parseString(t, csvText)

	if len(snap.Sleep) != 1 {
		t.Fatalf("sleep days = %d, want 1", len(snap.Sleep))
	}
	rec := snap.Sleep[0]
	if rec.Score == nil || *rec.Score != 82 {
		t.Errorf("score = %v, want 82", rec.Score)
	}
	if rec.DurationHours == nil || *rec.DurationHours != 7.5 {
		t.Errorf("duration = %v, want 7.5", rec.DurationHours)
	}
	if rec.DeepSleepHours == nil || *rec.DeepSleepHours != 1.25 {
		t.Errorf("deep sleep = %v, want 1.25", rec.DeepSleepHours)
	}
	if rec.Bedtime == nil || *rec.Bedtime != "22:45" {
		t.Errorf("bedtime = %v, want 22:45", rec.Bedtime)
	}
	if rec.WakeTime == nil || *rec.WakeTime != "06:15" {
		t.Errorf("wake time = %v, want 06:15", rec.WakeTime)
	}
}

// TestParseTabularHeartRate checks that sample-level heart-rate files feed
// both the day average and the sample list.
func TestParseTabularHeartRate(t *testing.T) {
	t.Parallel()

	csvText := "Timestamp,Heart Rate\n" +
		"2024-01-05T08:00:00Z,62\n" +
		"2024-01-05T09:00:00Z,66\n"
	snap, res := parseString(t, csvText)

	if res.RowsParsed != 2 {
		t.Fatalf("RowsParsed = %d, want 2", res.RowsParsed)
	}
	if len(snap.Activity) != 1 {
		t.Fatalf("activity days = %d, want 1", len(snap.Activity))
	}
	if avg := snap.Activity[0].HeartRateAvg; avg == nil || *avg != 64 {
		t.Errorf("heart rate avg = %v, want 64", avg)
	}
	if len(snap.Samples) != 2 {
		t.Errorf("samples = %d, want 2", len(snap.Samples))
	}
}

// TestParseTabularSemicolonDelimiter checks European-style exports.
func TestParseTabularSemicolonDelimiter(t *testing.T) {
	t.Parallel()

	snap, _ := parseString(t, "Date;Steps\n2024-01-05;4000\n")
	if len(snap.Activity) != 1 || snap.Activity[0].Steps == nil || *snap.Activity[0].Steps != 4000 {
		t.Fatalf("semicolon CSV not parsed: %+v", snap.Activity)
	}
}

// TestParseTabularUnknownHeader verifies an unclassifiable file degrades to
// a warning instead of an error or a false parse.
func TestParseTabularUnknownHeader(t *testing.T) {
	t.Parallel()

	snap, res := parseString(t, "Foo,Bar\n1,2\n")
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", res.Warnings)
	}
	if res.RowsParsed != 0 {
		t.Errorf("RowsParsed = %d, want 0", res.RowsParsed)
	}
	if len(snap.Activity)+len(snap.Sleep)+len(snap.Body) != 0 {
		t.Error("unknown shape produced records")
	}
}

// TestParseTabularBadDateCounted verifies a row with a hopeless date is
// counted as an error while the rest of the file proceeds.
func TestParseTabularBadDateCounted(t *testing.T) {
	t.Parallel()

	csvText := "Date,Steps\nnot-a-date,5\n2024-01-05,100\n"
	snap, res := parseString(t, csvText)
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want exactly one", res.Errors)
	}
	if len(snap.Activity) != 1 || snap.Activity[0].Day != "2024-01-05" {
		t.Fatalf("good row lost: %+v", snap.Activity)
	}
}

// TestHoursFromDurationField pins the hours/minutes disambiguation for bare
// numbers against clock strings.
func TestHoursFromDurationField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"07:30", 7.5, true},
		{"07:30:00", 7.5, true},
		{"7.5", 7.5, true}, // small bare number is already hours
		{"450", 7.5, true}, // large bare number is minutes
		{"garbage", 0, false},
	}
	for _, c := range cases {
		got, ok := hoursFromDurationField(c.raw)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("hoursFromDurationField(%q) = (%v, %v), want (%v, %v)", c.raw, got, ok, c.want, c.ok)
		}
	}
}
