package canonical

import (
	"math"
	"sort"
	"time"

	"health-analyzer/pkg/normalize"
)

// Aggregator folds partial per-day and per-sample observations from one
// import into in-memory maps keyed by day or natural key.  It is a plain
// caller-owned value threaded through the adapter call, so two concurrent
// imports never share state: each gets its own Aggregator, and only the
// store below is shared.
type Aggregator struct {
	UserID int64
	Source string

	activity map[string]*DayActivity
	sleep    map[string]*DaySleep
	body     map[string]*BodyComposition
	samples  map[sampleKey]*BiometricSample
	workouts []*WorkoutSession

	// Running sums for metrics that arrive as many samples per day and are
	// averaged at flush time.
	hrSum      map[string]float64
	hrCount    map[string]int
	stressSum  map[string]float64
	stressN    map[string]int
	stepsSum   map[string]int64
	sleepHours map[string]float64
}

type sampleKey struct {
	typ     string
	source  string
	startAt int64
}

// NewAggregator returns an empty accumulator for one import run.
func NewAggregator(userID int64, source string) *Aggregator {
	return &Aggregator{
		UserID:     userID,
		Source:     source,
		activity:   make(map[string]*DayActivity),
		sleep:      make(map[string]*DaySleep),
		body:       make(map[string]*BodyComposition),
		samples:    make(map[sampleKey]*BiometricSample),
		hrSum:      make(map[string]float64),
		hrCount:    make(map[string]int),
		stressSum:  make(map[string]float64),
		stressN:    make(map[string]int),
		stepsSum:   make(map[string]int64),
		sleepHours: make(map[string]float64),
	}
}

// Day returns the activity record for a date, creating it on first touch.
// At most one logical record per (user, day) exists by construction.
func (a *Aggregator) Day(day string) *DayActivity {
	rec, ok := a.activity[day]
	if !ok {
		rec = &DayActivity{UserID: a.UserID, Day: day}
		a.activity[day] = rec
	}
	return rec
}

// Sleep returns the sleep record for a date, creating it on first touch.
func (a *Aggregator) Sleep(day string) *DaySleep {
	rec, ok := a.sleep[day]
	if !ok {
		rec = &DaySleep{UserID: a.UserID, Day: day}
		a.sleep[day] = rec
	}
	return rec
}

// Body returns the body-composition record for a date, creating it on first
// touch with the aggregator's source stamped for provenance.
func (a *Aggregator) Body(day string) *BodyComposition {
	rec, ok := a.body[day]
	if !ok {
		rec = &BodyComposition{UserID: a.UserID, Day: day, Source: a.Source}
		a.body[day] = rec
	}
	return rec
}

// AddSteps accumulates a step contribution for a day.  Record-per-sample
// formats (health XML) report hundreds of small step records per day; the
// flush sums them into the day record only when no adapter set an explicit
// daily total.
func (a *Aggregator) AddSteps(day string, steps int64) {
	if steps <= 0 {
		return
	}
	a.stepsSum[day] += steps
}

// AddHeartRate feeds one heart-rate reading into the per-day running average.
func (a *Aggregator) AddHeartRate(day string, bpm float64) {
	if bpm <= 0 {
		return
	}
	a.hrSum[day] += bpm
	a.hrCount[day]++
}

// AddStress feeds one stress reading into the per-day running average.  The
// canonical scale is 1-10; some vendors report 0-100 and are rescaled at
// flush, not here, so mixed-scale files average on raw values consistently.
func (a *Aggregator) AddStress(day string, level float64) {
	if level <= 0 {
		return
	}
	a.stressSum[day] += level
	a.stressN[day]++
}

// AddSleepInterval apportions one sleep interval across the calendar days it
// touches.  Intervals accumulate, so fragmented sleep-analysis records sum
// to a nightly total.
func (a *Aggregator) AddSleepInterval(start, end time.Time) {
	for day, hours := range normalize.SplitIntervalIntoDays(start, end) {
		a.sleepHours[day] += hours
	}
}

// AddSample records a biometric sample, deduplicating on the natural key so
// one file repeating an observation contributes it once.
func (a *Aggregator) AddSample(s BiometricSample) {
	s.UserID = a.UserID
	if s.Source == "" {
		s.Source = a.Source
	}
	key := sampleKey{typ: s.Type, source: s.Source, startAt: s.StartAt}
	if _, exists := a.samples[key]; exists {
		return
	}
	copied := s
	a.samples[key] = &copied
}

// AddWorkout records a workout session, computing pace when possible.
func (a *Aggregator) AddWorkout(w WorkoutSession) {
	w.UserID = a.UserID
	if w.Source == "" {
		w.Source = a.Source
	}
	w.ComputePace()
	copied := w
	a.workouts = append(a.workouts, &copied)
}

// Snapshot is the flushed, ready-to-persist view of an Aggregator.  Slices
// are sorted by day/natural key so imports are deterministic run to run.
type Snapshot struct {
	Activity []DayActivity
	Sleep    []DaySleep
	Body     []BodyComposition
	Samples  []BiometricSample
	Workouts []WorkoutSession
}

// Flush materializes the snapshot: running sums become averages, sampled
// step counts fill days without an explicit total, accumulated sleep hours
// fill duration, and bounded scales are clamped.
func (a *Aggregator) Flush() Snapshot {
	for day, sum := range a.stepsSum {
		rec := a.Day(day)
		if rec.Steps == nil {
			rec.Steps = Int(sum)
		}
	}
	for day, n := range a.hrCount {
		if n == 0 {
			continue
		}
		rec := a.Day(day)
		if rec.HeartRateAvg == nil {
			avg := a.hrSum[day] / float64(n)
			rec.HeartRateAvg = Float(math.Round(avg*10) / 10)
		}
	}
	for day, n := range a.stressN {
		if n == 0 {
			continue
		}
		rec := a.Day(day)
		if rec.StressAvg == nil {
			rec.StressAvg = Int(ClampStress(a.stressSum[day] / float64(n)))
		}
	}
	for day, hours := range a.sleepHours {
		rec := a.Sleep(day)
		if rec.DurationHours == nil {
			rec.DurationHours = Float(math.Round(hours*100) / 100)
		}
	}

	var snap Snapshot
	for _, rec := range a.activity {
		snap.Activity = append(snap.Activity, *rec)
	}
	for _, rec := range a.sleep {
		snap.Sleep = append(snap.Sleep, *rec)
	}
	for _, rec := range a.body {
		snap.Body = append(snap.Body, *rec)
	}
	for _, s := range a.samples {
		snap.Samples = append(snap.Samples, *s)
	}
	for _, w := range a.workouts {
		snap.Workouts = append(snap.Workouts, *w)
	}

	sort.Slice(snap.Activity, func(i, j int) bool { return snap.Activity[i].Day < snap.Activity[j].Day })
	sort.Slice(snap.Sleep, func(i, j int) bool { return snap.Sleep[i].Day < snap.Sleep[j].Day })
	sort.Slice(snap.Body, func(i, j int) bool { return snap.Body[i].Day < snap.Body[j].Day })
	sort.Slice(snap.Samples, func(i, j int) bool {
		si, sj := snap.Samples[i], snap.Samples[j]
		if si.Type != sj.Type {
			return si.Type < sj.Type
		}
		return si.StartAt < sj.StartAt
	})
	sort.Slice(snap.Workouts, func(i, j int) bool {
		wi, wj := snap.Workouts[i], snap.Workouts[j]
		if wi.Day != wj.Day {
			return wi.Day < wj.Day
		}
		return wi.ExternalID < wj.ExternalID
	})
	return snap
}

// ClampStress maps a raw stress average onto the canonical 1-10 integer
// scale.  Vendors reporting 0-100 are rescaled by ten first.
func ClampStress(avg float64) int64 {
	if avg > 10 {
		avg = avg / 10
	}
	v := int64(math.Round(avg))
	if v < 1 {
		v = 1
	}
	if v > 10 {
		v = 10
	}
	return v
}
