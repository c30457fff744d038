// Package canonical defines the normalized health records every adapter
// emits and the accumulator that folds partial observations into them before
// they reach the store.  The types are plain values so adapters, the store,
// and tests can share them without any wiring.
package canonical

import "fmt"

// Entity kind labels used for ImportResult counters and import history rows.
const (
	KindDayActivity     = "day_activity"
	KindDaySleep        = "day_sleep"
	KindBodyComposition = "body_composition"
	KindBiometricSample = "biometric_sample"
	KindWorkoutSession  = "workout_session"
)

// Workout session types.  Anything a source reports outside run/strength is
// folded into "other" rather than inventing an open-ended enum.
const (
	WorkoutRun      = "run"
	WorkoutStrength = "strength"
	WorkoutOther    = "other"
)

// DayActivity is the per-day activity record.  Every field is independently
// optional; nil means the source never reported it, which the fill-if-absent
// merge must not confuse with zero.
type DayActivity struct {
	UserID int64  `json:"userID"`
	Day    string `json:"day"` // ISO date key

	Steps         *int64   `json:"steps,omitempty"`
	Calories      *float64 `json:"caloriesBurned,omitempty"`
	ActiveMinutes *float64 `json:"activeMinutes,omitempty"`
	HeartRateAvg  *float64 `json:"heartRateAvg,omitempty"`
	DistanceKm    *float64 `json:"distanceKm,omitempty"`

	// Extended wearable metrics.
	RestingHeartRate *int64   `json:"restingHeartRate,omitempty"`
	Floors           *float64 `json:"floors,omitempty"`
	SpO2Avg          *float64 `json:"spo2Avg,omitempty"`
	StressAvg        *int64   `json:"stressAvg,omitempty"`
	BodyBattery      *int64   `json:"bodyBattery,omitempty"`
	HydrationMl      *float64 `json:"hydrationMl,omitempty"`
}

// DaySleep is the per-day sleep record.  Score, when present, is an integer
// on a 1-100 scale; duration fields are fractional hours and never negative.
type DaySleep struct {
	UserID int64  `json:"userID"`
	Day    string `json:"day"`

	Score          *int64   `json:"score,omitempty"`
	DurationHours  *float64 `json:"durationHours,omitempty"`
	DeepSleepHours *float64 `json:"deepSleepHours,omitempty"`
	RemSleepHours  *float64 `json:"remSleepHours,omitempty"`
	Bedtime        *string  `json:"bedtime,omitempty"`  // HH:MM
	WakeTime       *string  `json:"wakeTime,omitempty"` // HH:MM
}

// BodyComposition is the per-day body composition record.  Unlike the other
// day records it retains its source and raw payload for provenance, because
// smart-scale vendors disagree wildly and audits need the original row.
type BodyComposition struct {
	UserID int64  `json:"userID"`
	Day    string `json:"day"`

	WeightKg     *float64 `json:"weightKg,omitempty"`
	BodyFatPct   *float64 `json:"bodyFatPct,omitempty"`
	BMI          *float64 `json:"bmi,omitempty"`
	HydrationPct *float64 `json:"hydrationPct,omitempty"`
	MuscleMassKg *float64 `json:"muscleMassKg,omitempty"`
	VisceralFat  *float64 `json:"visceralFat,omitempty"`

	// Extended composition metrics, present on a handful of scales only.
	BoneMassKg         *float64 `json:"boneMassKg,omitempty"`
	BMRKcal            *float64 `json:"bmrKcal,omitempty"`
	MetabolicAge       *float64 `json:"metabolicAge,omitempty"`
	ProteinPct         *float64 `json:"proteinPct,omitempty"`
	SubcutaneousFatPct *float64 `json:"subcutaneousFatPct,omitempty"`
	SkeletalMusclePct  *float64 `json:"skeletalMusclePct,omitempty"`
	FatFreeMassKg      *float64 `json:"fatFreeMassKg,omitempty"`
	BodyWaterKg        *float64 `json:"bodyWaterKg,omitempty"`
	ImpedanceOhm       *float64 `json:"impedanceOhm,omitempty"`
	LeanMassKg         *float64 `json:"leanMassKg,omitempty"`
	TrunkFatPct        *float64 `json:"trunkFatPct,omitempty"`
	PhysiqueRating     *float64 `json:"physiqueRating,omitempty"`

	Source     string `json:"source,omitempty"`
	RawPayload string `json:"rawPayload,omitempty"`
}

// BiometricSample is a point-in-time or interval observation.  The natural
// key (user, type, source, startAt) makes re-ingesting identical samples a
// no-op at the store layer.
type BiometricSample struct {
	UserID  int64  `json:"userID"`
	Type    string `json:"type"`
	Source  string `json:"source"`
	StartAt int64  `json:"startAt"` // UNIX seconds

	EndAt      *int64   `json:"endAt,omitempty"`
	ValueNum   *float64 `json:"valueNum,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	RawPayload string   `json:"rawPayload,omitempty"`
}

// WorkoutSession is one recorded workout.  Sessions with a known external ID
// dedup on (user, source, externalID); sessions without one are always fresh.
type WorkoutSession struct {
	UserID     int64  `json:"userID"`
	Source     string `json:"source"`
	ExternalID string `json:"externalID,omitempty"`
	Day        string `json:"day"`
	Type       string `json:"type"`

	DurationMinutes *float64 `json:"durationMinutes,omitempty"`
	DistanceKm      *float64 `json:"distanceKm,omitempty"`
	PaceMinPerKm    *float64 `json:"paceMinPerKm,omitempty"`
	Calories        *float64 `json:"calories,omitempty"`
	AvgHeartRate    *int64   `json:"avgHeartRate,omitempty"`
	MaxHeartRate    *int64   `json:"maxHeartRate,omitempty"`
	TrainingLoad    *float64 `json:"trainingLoad,omitempty"`
	RawPayload      string   `json:"rawPayload,omitempty"`
}

// ComputePace fills PaceMinPerKm from duration and distance.  Pace is only
// meaningful when both are positive; otherwise it stays nil.
func (w *WorkoutSession) ComputePace() {
	if w.DurationMinutes == nil || w.DistanceKm == nil {
		return
	}
	if *w.DurationMinutes <= 0 || *w.DistanceKm <= 0 {
		return
	}
	pace := *w.DurationMinutes / *w.DistanceKm
	w.PaceMinPerKm = &pace
}

// ErrorCap bounds the per-row error list on an ImportResult so a 500 MB file
// of garbage cannot balloon the response.
const ErrorCap = 25

// ImportResult summarizes one import: per-entity insert/update counters, a
// capped error list, warnings, and parse metadata.  It is transient — the
// caller translates it into whatever response shape it needs.
type ImportResult struct {
	Inserted map[string]int `json:"inserted"`
	Updated  map[string]int `json:"updated"`

	FilesParsed int `json:"filesParsed"`
	RowsParsed  int `json:"rowsParsed"`

	Warnings      []string `json:"warnings,omitempty"`
	Errors        []string `json:"errors,omitempty"`
	ErrorsDropped int      `json:"errorsDropped,omitempty"`
}

// NewImportResult returns a result with initialized counter maps.
func NewImportResult() *ImportResult {
	return &ImportResult{
		Inserted: make(map[string]int),
		Updated:  make(map[string]int),
	}
}

// CountInsert and CountUpdate bump the per-entity counters.
func (r *ImportResult) CountInsert(kind string) { r.Inserted[kind]++ }
func (r *ImportResult) CountUpdate(kind string) { r.Updated[kind]++ }

// AddError records a per-row error, dropping (but counting) everything past
// the cap.  Adapters call this instead of failing the whole file.
func (r *ImportResult) AddError(format string, args ...any) {
	if len(r.Errors) >= ErrorCap {
		r.ErrorsDropped++
		return
	}
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// AddWarning records a whole-file advisory, e.g. "no recognizable data".
func (r *ImportResult) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// TotalInserted sums the insert counters across entity kinds.
func (r *ImportResult) TotalInserted() int {
	n := 0
	for _, v := range r.Inserted {
		n += v
	}
	return n
}

// TotalUpdated sums the update counters across entity kinds.
func (r *ImportResult) TotalUpdated() int {
	n := 0
	for _, v := range r.Updated {
		n += v
	}
	return n
}

// Helper constructors for optional fields.  Adapters build records with far
// too many of these for address-of-temporary noise to be readable.

func Int(v int64) *int64       { return &v }
func Float(v float64) *float64 { return &v }
func Str(v string) *string     { return &v }
