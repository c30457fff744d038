package ingest

import (
	"encoding/xml"
	"io"
	"strings"
	"time"

	"health-analyzer/pkg/canonical"
	"health-analyzer/pkg/normalize"
)

// tcxLap mirrors the Activity/Lap subtree.  Heart-rate values sit one level
// down in a <Value> child on both the average and maximum elements.
type tcxLap struct {
	TotalTimeSeconds float64 `xml:"TotalTimeSeconds"`
	DistanceMeters   float64 `xml:"DistanceMeters"`
	Calories         float64 `xml:"Calories"`
	AverageHeartRate struct {
		Value float64 `xml:"Value"`
	} `xml:"AverageHeartRateBpm"`
	MaximumHeartRate struct {
		Value float64 `xml:"Value"`
	} `xml:"MaximumHeartRateBpm"`
}

// tcxActivity is one top-level <Activity>: a sport attribute, an <Id>
// timestamp, and a lap list.
type tcxActivity struct {
	Sport string   `xml:"Sport,attr"`
	ID    string   `xml:"Id"`
	Laps  []tcxLap `xml:"Lap"`
}

// parseTCX walks a TrainingCenterDatabase one <Activity> element at a time.
// Per the format's habit of repeating summary fields per lap, distance,
// calories, and time are summed across laps while the last non-zero average
// and maximum heart rate win.  A malformed activity element is skipped and
// counted, not fatal.
func parseTCX(r io.Reader, agg *canonical.Aggregator, res *canonical.ImportResult) error {
	dec := xml.NewDecoder(r)
	found := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if found == 0 {
				return err
			}
			res.AddError("tcx: %v", err)
			break
		}
		el, ok := tok.(xml.StartElement)
		if !ok || el.Name.Local != "Activity" {
			continue
		}
		var act tcxActivity
		if err := dec.DecodeElement(&act, &el); err != nil {
			res.AddError("tcx: bad activity element: %v", err)
			continue
		}
		found++
		res.RowsParsed++
		if w, ok := workoutFromTCX(act); ok {
			agg.AddWorkout(w)
		} else {
			res.AddError("tcx: activity %q has no usable timestamp", act.ID)
		}
	}
	if found == 0 {
		res.AddWarning("tcx: no activities found")
	}
	return nil
}

// workoutFromTCX reduces one activity's laps to a session record.
func workoutFromTCX(act tcxActivity) (canonical.WorkoutSession, bool) {
	start, ok := normalize.Time(act.ID)
	if !ok {
		return canonical.WorkoutSession{}, false
	}

	var meters, calories, seconds, avgHR, maxHR float64
	for _, lap := range act.Laps {
		meters += lap.DistanceMeters
		calories += lap.Calories
		seconds += lap.TotalTimeSeconds
		if lap.AverageHeartRate.Value > 0 {
			avgHR = lap.AverageHeartRate.Value
		}
		if lap.MaximumHeartRate.Value > 0 {
			maxHR = lap.MaximumHeartRate.Value
		}
	}

	w := canonical.WorkoutSession{
		ExternalID: start.UTC().Format(time.RFC3339),
		Day:        start.Format(normalize.ISODate),
		Type:       workoutTypeForSport(act.Sport),
	}
	if seconds > 0 {
		w.DurationMinutes = canonical.Float(seconds / 60)
	}
	if meters > 0 {
		w.DistanceKm = canonical.Float(meters / 1000)
	}
	if calories > 0 {
		w.Calories = canonical.Float(calories)
	}
	if avgHR > 0 {
		w.AvgHeartRate = canonical.Int(int64(avgHR))
	}
	if maxHR > 0 {
		w.MaxHeartRate = canonical.Int(int64(maxHR))
	}
	return w, true
}

// workoutTypeForSport folds vendor sport labels onto the canonical enum.
func workoutTypeForSport(sport string) string {
	switch s := strings.ToLower(strings.TrimSpace(sport)); {
	case strings.Contains(s, "run"):
		return canonical.WorkoutRun
	case strings.Contains(s, "strength"), strings.Contains(s, "training"), strings.Contains(s, "weight"):
		return canonical.WorkoutStrength
	default:
		return canonical.WorkoutOther
	}
}
