// Package normalize converts the date, time, and duration encodings found in
// wearable exports into canonical forms.  Every producer disagrees: some emit
// RFC3339, some US-style slashes, some timestamps with a bare "+0000" offset.
// All helpers share one contract borrowed from the upload parsers: they never
// panic and never return an error for malformed input — the caller gets a
// false/empty result and decides whether that row matters.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISODate is the canonical key format for all per-day records.
const ISODate = "2006-01-02"

// dateLayouts are probed in order.  US slashes come before DD/MM because the
// exports we actually see (Fitbit, Garmin Connect CSV) are US-convention; a
// DD/MM date only wins when the first segment cannot be a month.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	ISODate,
	"01/02/2006 15:04:05",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006",
}

// reBareOffset matches vendor timestamps ending in a numeric timezone offset
// without a colon ("2024-01-05T00:00:00+0000").  Go's RFC3339 layouts want
// the colon form, so we rewrite the tail before probing layouts.
var reBareOffset = regexp.MustCompile(`([+-]\d{2})(\d{2})$`)

// Date normalizes an arbitrary vendor date/timestamp string to an ISO date
// key.  ok is false when nothing parseable was found.
func Date(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if reBareOffset.MatchString(s) {
		s = reBareOffset.ReplaceAllString(s, "$1:$2")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(ISODate), true
		}
	}
	// Numeric epoch seconds show up in a few SQLite exports.
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 1e9 && secs < 1e11 {
		return time.Unix(secs, 0).UTC().Format(ISODate), true
	}
	return "", false
}

// Time extracts an instant, not just a day, for point-in-time samples.
// The same offset rewrite and layout probing applies.
func Time(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if reBareOffset.MatchString(s) {
		s = reBareOffset.ReplaceAllString(s, "$1:$2")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 1e9 && secs < 1e11 {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}

// DurationMinutes parses "HH:MM", "HH:MM:SS", "HH:MM:SS.ffffff", or a bare
// numeric minute count.  Wrong segment counts and non-numeric parts yield
// ok=false rather than a partial guess.
func DurationMinutes(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if !strings.Contains(s, ":") {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	hours, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, false
	}
	var secs float64
	if len(parts) == 3 {
		secs, err = strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return 0, false
		}
	}
	return hours*60 + mins + secs/60, true
}

// SplitIntervalIntoDays apportions [start,end) into per-day fractional-hour
// contributions, clipped at local midnight.  A sleep interval crossing one or
// more day boundaries produces one entry per calendar day touched.  An empty
// or inverted interval yields an empty map.
func SplitIntervalIntoDays(start, end time.Time) map[string]float64 {
	out := make(map[string]float64)
	if !end.After(start) {
		return out
	}
	cur := start
	for cur.Before(end) {
		dayEnd := time.Date(cur.Year(), cur.Month(), cur.Day(), 0, 0, 0, 0, cur.Location()).AddDate(0, 0, 1)
		if dayEnd.After(end) {
			dayEnd = end
		}
		out[cur.Format(ISODate)] += dayEnd.Sub(cur).Hours()
		cur = dayEnd
	}
	return out
}

// earthRadiusKm is the mean Earth radius used by the great-circle formula.
const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two coordinates.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := lat1 * math.Pi / 180
	p2 := lat2 * math.Pi / 180
	dp := (lat2 - lat1) * math.Pi / 180
	dl := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dp/2)*math.Sin(dp/2) +
		math.Cos(p1)*math.Cos(p2)*math.Sin(dl/2)*math.Sin(dl/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// ClockHHMM renders a timestamp's wall-clock time as "HH:MM" for the
// bedtime/wake-time fields on sleep records.
func ClockHHMM(t time.Time) string {
	return t.Format("15:04")
}
