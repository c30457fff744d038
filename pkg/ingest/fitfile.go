package ingest

import (
	"bytes"
	"io"
	"time"

	"github.com/tormoder/fit"

	"health-analyzer/pkg/canonical"
	"health-analyzer/pkg/normalize"
)

// Invalid sentinels the FIT profile uses for unset numeric fields.
const (
	fitInvalidUint8  = 0xFF
	fitInvalidUint16 = 0xFFFF
)

// parseFIT decodes a Garmin FIT activity file and emits one workout session
// per session message.  FIT activity files are compact, so reading the whole
// payload before decoding is fine here — the streaming discipline matters
// for the multi-hundred-megabyte XML exports, not these.
func parseFIT(r io.Reader, agg *canonical.Aggregator, res *canonical.ImportResult) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f, err := fit.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	activity, err := f.Activity()
	if err != nil {
		return err
	}
	if len(activity.Sessions) == 0 {
		res.AddWarning("fit: no sessions in activity file")
		return nil
	}

	for _, sess := range activity.Sessions {
		if sess == nil || sess.StartTime.IsZero() {
			res.AddError("fit: session without start time")
			continue
		}
		res.RowsParsed++
		w := canonical.WorkoutSession{
			ExternalID: sess.StartTime.UTC().Format(time.RFC3339),
			Day:        sess.StartTime.Format(normalize.ISODate),
			Type:       workoutTypeForFitSport(sess.Sport),
		}
		if secs := sess.GetTotalTimerTimeScaled(); secs > 0 {
			w.DurationMinutes = canonical.Float(secs / 60)
		}
		if meters := sess.GetTotalDistanceScaled(); meters > 0 {
			w.DistanceKm = canonical.Float(meters / 1000)
		}
		if sess.TotalCalories > 0 && sess.TotalCalories != fitInvalidUint16 {
			w.Calories = canonical.Float(float64(sess.TotalCalories))
		}
		if sess.AvgHeartRate > 0 && sess.AvgHeartRate != fitInvalidUint8 {
			w.AvgHeartRate = canonical.Int(int64(sess.AvgHeartRate))
		}
		if sess.MaxHeartRate > 0 && sess.MaxHeartRate != fitInvalidUint8 {
			w.MaxHeartRate = canonical.Int(int64(sess.MaxHeartRate))
		}
		if load := sess.GetTrainingStressScoreScaled(); load > 0 {
			w.TrainingLoad = canonical.Float(load)
		}
		agg.AddWorkout(w)
	}
	return nil
}

// workoutTypeForFitSport folds the FIT sport enum onto the canonical type.
func workoutTypeForFitSport(sport fit.Sport) string {
	switch sport {
	case fit.SportRunning:
		return canonical.WorkoutRun
	case fit.SportTraining, fit.SportFitnessEquipment:
		return canonical.WorkoutStrength
	default:
		return canonical.WorkoutOther
	}
}
