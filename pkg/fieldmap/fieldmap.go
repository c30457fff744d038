// Package fieldmap resolves the human-authored column and attribute names of
// vendor exports to canonical metrics.  Matching is heuristic by design: a
// candidate list is an ordered set of substrings, most specific first, and
// the first field whose normalized name contains a candidate wins.  A wrong
// column is an accepted risk; candidate ordering is the mitigation, and the
// known ambiguous cases are pinned in tests.
package fieldmap

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Candidates holds the ordered substring lists for every canonical metric
// the adapters extract.  Keeping them in one table means new vendor spellings
// are an additive data change, not new control flow inside a parser.
var Candidates = map[string][]string{
	"date":           {"date", "day", "start time", "timestamp", "time"},
	"steps":          {"total steps", "steps", "step count"},
	"calories":       {"calories burned", "active calories", "total calories", "calories"},
	"active_minutes": {"active minutes", "activity minutes", "very active", "active time"},
	"heart_rate":     {"avg heart rate", "average heart rate", "heart rate", "avg hr", "bpm", "pulse"},
	"resting_hr":     {"resting heart rate", "resting hr", "rhr"},
	"distance":       {"distance (km)", "distance km", "total distance", "distance"},
	"floors":         {"floors climbed", "floors", "flights"},
	"spo2":           {"spo2", "blood oxygen", "oxygen saturation"},
	"stress":         {"stress level", "stress score", "avg stress", "stress"},
	"body_battery":   {"body battery", "bodybattery", "energy level"},
	"hydration":      {"hydration", "water intake", "water (ml)", "water"},

	"sleep_score":    {"sleep score", "sleep quality", "score"},
	"sleep_duration": {"total sleep", "sleep duration", "time asleep", "duration", "hours of sleep"},
	"deep_sleep":     {"deep sleep", "deep"},
	"rem_sleep":      {"rem sleep", "rem"},
	"bedtime":        {"bedtime", "sleep start", "start"},
	"wake_time":      {"wake time", "wake up", "sleep end", "end"},

	"weight":        {"weight (kg)", "body weight", "weight"},
	"body_fat":      {"body fat %", "body fat", "fat %", "fat percentage"},
	"bmi":           {"bmi", "body mass index"},
	"hydration_pct": {"body water", "hydration %", "water %"},
	"muscle_mass":   {"muscle mass", "skeletal muscle mass", "muscle"},
	"visceral_fat":  {"visceral fat", "visceral"},
	"bone_mass":     {"bone mass", "bone"},
	"bmr":           {"bmr", "basal metabolic"},

	"value": {"value", "amount", "reading", "measurement"},
}

// NormalizeName lowercases, trims, and collapses internal whitespace so
// "Total  Steps " and "total steps" compare equal.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), " ")
}

// Resolve returns the value of the first field whose normalized name contains
// a candidate substring, walking candidates in priority order.  Empty values
// never match so a present-but-blank column cannot shadow a populated one.
// Field names are visited in sorted order: map iteration is randomized and a
// tie between two plausible columns must resolve the same way on re-import.
func Resolve(row map[string]string, candidates []string) (string, bool) {
	_, value, ok := ResolveField(row, candidates)
	return value, ok
}

// ResolveField is Resolve but also reports which field matched, so callers
// can tell two metrics with overlapping candidates apart (a "Resting Heart
// Rate" column satisfies the plain heart-rate candidates too).
func ResolveField(row map[string]string, candidates []string) (string, string, bool) {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, cand := range candidates {
		for _, name := range names {
			if row[name] == "" {
				continue
			}
			if strings.Contains(NormalizeName(name), cand) {
				return name, row[name], true
			}
		}
	}
	return "", "", false
}

// ResolveMetric is Resolve against the shared Candidates table.
func ResolveMetric(row map[string]string, metric string) (string, bool) {
	cands, ok := Candidates[metric]
	if !ok {
		return "", false
	}
	return Resolve(row, cands)
}

// Number extracts a float from messy vendor text: thousands separators and
// unit suffixes are stripped before parsing, and non-finite results count as
// absent.  "8,532 steps" → 8532.
func Number(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ',':
			// thousands separator, dropped
		default:
			// A digit run followed by junk ("8532 steps") keeps what we
			// have; junk before any digit ("~8532") is skipped instead.
			if b.Len() > 0 {
				goto done
			}
		}
	}
done:
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ResolveNumber combines metric resolution and numeric extraction.
func ResolveNumber(row map[string]string, metric string) (float64, bool) {
	raw, ok := ResolveMetric(row, metric)
	if !ok {
		return 0, false
	}
	return Number(raw)
}
