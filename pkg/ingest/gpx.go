package ingest

import (
	"encoding/xml"
	"io"
	"math"
	"strconv"
	"time"

	"health-analyzer/pkg/canonical"
	"health-analyzer/pkg/normalize"
)

// stepsPerMile is the rough walking estimate used when a GPS track carries
// no step field at all.
const stepsPerMile = 2000.0

const milesPerKm = 1.0 / 1.609344

// gpxPoint is one <trkpt> with the fields the pipeline cares about.
type gpxPoint struct {
	lat, lon float64
	t        time.Time
	hasTime  bool
}

// parseGPX streams track points off an xml.Decoder in a parser goroutine and
// folds them into a workout on the consumer side, so even a long track never
// materializes as a slice.  Tracks with at most one point yield a workout
// without distance — not a zero — and a malformed document past the first
// points keeps what was already read.
func parseGPX(r io.Reader, agg *canonical.Aggregator, res *canonical.ImportResult) error {
	type item struct {
		pt  gpxPoint
		err error
	}
	out := make(chan item)

	go func() {
		defer close(out)
		dec := xml.NewDecoder(r)
		var cur gpxPoint
		var inTrkpt, inTime bool
		for {
			tok, err := dec.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				out <- item{err: err}
				return
			}
			switch el := tok.(type) {
			case xml.StartElement:
				switch el.Name.Local {
				case "trkpt":
					cur = gpxPoint{}
					inTrkpt = true
					for _, attr := range el.Attr {
						v, convErr := strconv.ParseFloat(attr.Value, 64)
						if convErr != nil {
							continue
						}
						switch attr.Name.Local {
						case "lat":
							cur.lat = v
						case "lon":
							cur.lon = v
						}
					}
				case "time":
					inTime = inTrkpt
				}
			case xml.CharData:
				if inTime {
					if t, ok := normalize.Time(string(el)); ok {
						cur.t = t
						cur.hasTime = true
					}
				}
			case xml.EndElement:
				switch el.Name.Local {
				case "time":
					inTime = false
				case "trkpt":
					inTrkpt = false
					out <- item{pt: cur}
				}
			}
		}
	}()

	var (
		points      int
		distanceKm  float64
		prev        gpxPoint
		first, last time.Time
	)
	for it := range out {
		if it.err != nil {
			res.AddError("gpx: %v", it.err)
			break
		}
		pt := it.pt
		if math.Abs(pt.lat) > 90 || math.Abs(pt.lon) > 180 {
			res.AddError("gpx: coordinate out of range (%f, %f)", pt.lat, pt.lon)
			continue
		}
		res.RowsParsed++
		if points > 0 {
			distanceKm += normalize.HaversineKm(prev.lat, prev.lon, pt.lat, pt.lon)
		}
		if pt.hasTime {
			if first.IsZero() {
				first = pt.t
			}
			last = pt.t
		}
		prev = pt
		points++
	}

	if points == 0 {
		res.AddWarning("gpx: no track points found")
		return nil
	}

	day := time.Now().UTC().Format(normalize.ISODate)
	var externalID string
	if !first.IsZero() {
		day = first.Format(normalize.ISODate)
		externalID = first.UTC().Format(time.RFC3339)
	}

	w := canonical.WorkoutSession{
		ExternalID: externalID,
		Day:        day,
		Type:       canonical.WorkoutRun,
	}
	if points > 1 && distanceKm > 0 {
		w.DistanceKm = canonical.Float(distanceKm)
	}
	if !first.IsZero() && last.After(first) {
		w.DurationMinutes = canonical.Float(last.Sub(first).Minutes())
	}
	agg.AddWorkout(w)

	// GPS tracks carry no step counter; estimate one from distance so the
	// day record is not empty.  An import with a real counter overwrites
	// this guess.
	if w.DistanceKm != nil {
		rec := agg.Day(day)
		if rec.DistanceKm == nil {
			rec.DistanceKm = canonical.Float(distanceKm)
		}
		if rec.Steps == nil {
			est := int64(math.Round(distanceKm * milesPerKm * stepsPerMile))
			if est > 0 {
				rec.Steps = canonical.Int(est)
			}
		}
	}
	return nil
}
