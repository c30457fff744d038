package fieldmap

import (
	"math"
	"testing"
)

// TestResolveAmbiguousSteps pins the known ambiguous case: a row carrying
// both "Steps" and "Step Goal" must resolve the steps candidate list to the
// real steps column, because candidate ordering probes "total steps" and
// "steps" before the looser "step count".
func TestResolveAmbiguousSteps(t *testing.T) {
	t.Parallel()

	row := map[string]string{
		"Steps":     "8532",
		"Step Goal": "10000",
		"Date":      "2024-01-05",
	}
	got, ok := Resolve(row, Candidates["steps"])
	if !ok || got != "8532" {
		t.Fatalf("Resolve(steps) = (%q, %t), want (8532, true)", got, ok)
	}
}

// TestResolveOrdering verifies the first candidate wins even when a later
// candidate also matches, and that blank values never shadow populated ones.
func TestResolveOrdering(t *testing.T) {
	t.Parallel()

	row := map[string]string{
		"Total Steps": "9001",
		"Step Count":  "1",
	}
	if got, _ := Resolve(row, Candidates["steps"]); got != "9001" {
		t.Fatalf("most specific candidate should win, got %q", got)
	}

	blank := map[string]string{
		"Total Steps": "",
		"Step Count":  "7777",
	}
	if got, _ := Resolve(blank, Candidates["steps"]); got != "7777" {
		t.Fatalf("blank column should not match, got %q", got)
	}

	if _, ok := Resolve(map[string]string{"Mood": "fine"}, Candidates["steps"]); ok {
		t.Fatal("no candidate should match an unrelated row")
	}
}

// TestNormalizeName checks casing, trimming, and whitespace collapsing.
func TestNormalizeName(t *testing.T) {
	t.Parallel()

	if got := NormalizeName("  Total   Steps "); got != "total steps" {
		t.Fatalf("NormalizeName = %q", got)
	}
}

// TestNumber covers thousands separators, unit suffixes, and the non-finite
// and garbage inputs that must read as absent.
func TestNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"8,532", 8532, true},
		{"8532 steps", 8532, true},
		{"72.5", 72.5, true},
		{"-1.5", -1.5, true},
		{"1,234.5 kcal", 1234.5, true},
		{"", 0, false},
		{"n/a", 0, false},
		{"--", 0, false},
	}
	for _, tc := range tests {
		got, ok := Number(tc.raw)
		if ok != tc.ok {
			t.Fatalf("Number(%q) ok=%t want %t", tc.raw, ok, tc.ok)
		}
		if ok && math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Number(%q) = %f, want %f", tc.raw, got, tc.want)
		}
	}
}
