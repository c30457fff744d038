package canonical

import (
	"math"
	"testing"
	"time"
)

// TestAggregatorHeartRateAverage checks the running sum/count becomes an
// average at flush and never overwrites an explicit daily value.
func TestAggregatorHeartRateAverage(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(1, "test")
	agg.AddHeartRate("2024-01-05", 60)
	agg.AddHeartRate("2024-01-05", 70)
	agg.AddHeartRate("2024-01-05", 80)
	agg.AddHeartRate("2024-01-06", 100)
	agg.Day("2024-01-06").HeartRateAvg = Float(55) // explicit wins

	snap := agg.Flush()
	if len(snap.Activity) != 2 {
		t.Fatalf("expected 2 day records, got %d", len(snap.Activity))
	}
	if got := *snap.Activity[0].HeartRateAvg; math.Abs(got-70) > 1e-9 {
		t.Errorf("day 1 avg = %f, want 70", got)
	}
	if got := *snap.Activity[1].HeartRateAvg; math.Abs(got-55) > 1e-9 {
		t.Errorf("explicit avg overwritten: got %f, want 55", got)
	}
}

// TestAggregatorStepsSum checks sampled step records sum per day and yield
// to an explicit total from a daily-summary source.
func TestAggregatorStepsSum(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(1, "test")
	agg.AddSteps("2024-01-05", 500)
	agg.AddSteps("2024-01-05", 1500)
	agg.AddSteps("2024-01-05", -3) // ignored
	agg.Day("2024-01-06").Steps = Int(8000)
	agg.AddSteps("2024-01-06", 999)

	snap := agg.Flush()
	if got := *snap.Activity[0].Steps; got != 2000 {
		t.Errorf("summed steps = %d, want 2000", got)
	}
	if got := *snap.Activity[1].Steps; got != 8000 {
		t.Errorf("explicit steps = %d, want 8000", got)
	}
}

// TestAggregatorSleepInterval checks midnight-spanning sleep lands on both
// days and fragments accumulate.
func TestAggregatorSleepInterval(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(1, "test")
	loc := time.UTC
	agg.AddSleepInterval(
		time.Date(2024, 3, 1, 23, 0, 0, 0, loc),
		time.Date(2024, 3, 2, 3, 0, 0, 0, loc))
	agg.AddSleepInterval(
		time.Date(2024, 3, 2, 3, 30, 0, 0, loc),
		time.Date(2024, 3, 2, 7, 0, 0, 0, loc))

	snap := agg.Flush()
	if len(snap.Sleep) != 2 {
		t.Fatalf("expected 2 sleep records, got %d", len(snap.Sleep))
	}
	if got := *snap.Sleep[0].DurationHours; math.Abs(got-1) > 1e-9 {
		t.Errorf("first night hours = %f, want 1", got)
	}
	if got := *snap.Sleep[1].DurationHours; math.Abs(got-6.5) > 1e-9 {
		t.Errorf("second night hours = %f, want 6.5", got)
	}
}

// TestAggregatorSampleDedup verifies the natural key collapses repeated
// observations within one file.
func TestAggregatorSampleDedup(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(1, "test")
	s := BiometricSample{Type: "heart_rate", StartAt: 1700000000, ValueNum: Float(62)}
	agg.AddSample(s)
	agg.AddSample(s)
	s2 := s
	s2.StartAt = 1700000060
	agg.AddSample(s2)

	snap := agg.Flush()
	if len(snap.Samples) != 2 {
		t.Fatalf("expected 2 samples after dedup, got %d", len(snap.Samples))
	}
}

// TestClampStress pins the canonical 1-10 scale: 0-100 vendor values are
// rescaled, everything is rounded and clamped.
func TestClampStress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want int64
	}{
		{3.4, 3},
		{3.6, 4},
		{0.2, 1},
		{42, 4}, // 0-100 scale rescaled
		{100, 10},
		{9.9, 10},
	}
	for _, tc := range tests {
		if got := ClampStress(tc.in); got != tc.want {
			t.Errorf("ClampStress(%f) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

// TestComputePace covers the positive-only invariant: pace exists only when
// both distance and duration are positive.
func TestComputePace(t *testing.T) {
	t.Parallel()

	w := WorkoutSession{DurationMinutes: Float(30), DistanceKm: Float(5)}
	w.ComputePace()
	if w.PaceMinPerKm == nil || math.Abs(*w.PaceMinPerKm-6) > 1e-9 {
		t.Fatalf("pace = %v, want 6", w.PaceMinPerKm)
	}

	zero := WorkoutSession{DurationMinutes: Float(30), DistanceKm: Float(0)}
	zero.ComputePace()
	if zero.PaceMinPerKm != nil {
		t.Fatal("pace computed for zero distance")
	}

	missing := WorkoutSession{DistanceKm: Float(5)}
	missing.ComputePace()
	if missing.PaceMinPerKm != nil {
		t.Fatal("pace computed without duration")
	}
}

// TestImportResultErrorCap verifies errors past the cap are counted, not
// appended.
func TestImportResultErrorCap(t *testing.T) {
	t.Parallel()

	res := NewImportResult()
	for i := 0; i < ErrorCap+10; i++ {
		res.AddError("row %d bad", i)
	}
	if len(res.Errors) != ErrorCap {
		t.Fatalf("error list = %d entries, want %d", len(res.Errors), ErrorCap)
	}
	if res.ErrorsDropped != 10 {
		t.Fatalf("dropped = %d, want 10", res.ErrorsDropped)
	}
}
