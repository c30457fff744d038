package externaldb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"health-analyzer/pkg/canonical"

	_ "modernc.org/sqlite"
)

// memStore collects what Import persists so the tests can assert on it
// without a real store underneath.
type memStore struct {
	activity map[string]canonical.DayActivity
	sleep    map[string]canonical.DaySleep
	body     map[string]canonical.BodyComposition
	samples  int
	workouts int
}

func newMemStore() *memStore {
	return &memStore{
		activity: make(map[string]canonical.DayActivity),
		sleep:    make(map[string]canonical.DaySleep),
		body:     make(map[string]canonical.BodyComposition),
	}
}

func (m *memStore) UpsertDayActivity(ctx context.Context, rec canonical.DayActivity) (canonical.Action, error) {
	m.activity[rec.Day] = rec
	return canonical.ActionInserted, nil
}

func (m *memStore) UpsertDaySleep(ctx context.Context, rec canonical.DaySleep) (canonical.Action, error) {
	m.sleep[rec.Day] = rec
	return canonical.ActionInserted, nil
}

func (m *memStore) UpsertBodyComposition(ctx context.Context, rec canonical.BodyComposition) (canonical.Action, error) {
	m.body[rec.Day] = rec
	return canonical.ActionInserted, nil
}

func (m *memStore) InsertBiometricSample(ctx context.Context, s canonical.BiometricSample) (canonical.Action, error) {
	m.samples++
	return canonical.ActionInserted, nil
}

func (m *memStore) InsertWorkoutSession(ctx context.Context, w canonical.WorkoutSession) (canonical.Action, error) {
	m.workouts++
	return canonical.ActionInserted, nil
}

// buildExportDB writes a small export database in the known layout.
func buildExportDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE daily_summary (day TEXT, steps INTEGER, calories_total REAL, rhr INTEGER, distance REAL, stress_avg INTEGER)`,
		`CREATE TABLE sleep (day TEXT, total_sleep TEXT, deep_sleep TEXT, score INTEGER)`,
		`CREATE TABLE weight (day TEXT, weight REAL)`,
		`INSERT INTO daily_summary VALUES ('2024-05-01', 9000, 2200, 52, 7500, 35)`,
		`INSERT INTO daily_summary VALUES ('2020-01-01', 1000, 1500, 60, 800, 20)`,
		`INSERT INTO sleep VALUES ('2024-05-01', '07:45:00', '01:20:00', 78)`,
		`INSERT INTO weight VALUES ('2024-05-01', 80.4)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return path
}

// TestImportKnownLayout reads the fast-path tables end to end and checks
// unit handling: meter distances scale to km, clock durations to hours, and
// 0-100 stress onto the canonical 1-10 scale.
func TestImportKnownLayout(t *testing.T) {
	store := newMemStore()
	res, err := Import(context.Background(), buildExportDB(t), 1, 0, store)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if res.FilesParsed != 1 {
		t.Errorf("FilesParsed = %d, want 1", res.FilesParsed)
	}

	day, ok := store.activity["2024-05-01"]
	if !ok {
		t.Fatalf("day 2024-05-01 not imported; got %v", store.activity)
	}
	if day.Steps == nil || *day.Steps != 9000 {
		t.Errorf("steps = %v, want 9000", day.Steps)
	}
	if day.DistanceKm == nil || *day.DistanceKm != 7.5 {
		t.Errorf("distance = %v, want 7.5 km from 7500 m", day.DistanceKm)
	}
	if day.RestingHeartRate == nil || *day.RestingHeartRate != 52 {
		t.Errorf("resting hr = %v, want 52", day.RestingHeartRate)
	}
	if day.StressAvg == nil || *day.StressAvg != 4 {
		t.Errorf("stress = %v, want 4 (35/10 rounded)", day.StressAvg)
	}

	sleep, ok := store.sleep["2024-05-01"]
	if !ok {
		t.Fatal("sleep day not imported")
	}
	if sleep.DurationHours == nil || *sleep.DurationHours != 7.75 {
		t.Errorf("sleep duration = %v, want 7.75", sleep.DurationHours)
	}
	if sleep.Score == nil || *sleep.Score != 78 {
		t.Errorf("sleep score = %v, want 78", sleep.Score)
	}

	body, ok := store.body["2024-05-01"]
	if !ok {
		t.Fatal("weight day not imported")
	}
	if body.WeightKg == nil || *body.WeightKg != 80.4 {
		t.Errorf("weight = %v, want 80.4", body.WeightKg)
	}
}

// TestImportKnownLayoutShortDistance pins unit handling on the fast path for
// a day under one kilometer: the known layout stores meters, so 800 must
// become 0.8 km rather than pass through as-is.
func TestImportKnownLayoutShortDistance(t *testing.T) {
	store := newMemStore()
	if _, err := Import(context.Background(), buildExportDB(t), 1, 0, store); err != nil {
		t.Fatalf("Import: %v", err)
	}
	day, ok := store.activity["2020-01-01"]
	if !ok {
		t.Fatal("short-distance day not imported")
	}
	if day.DistanceKm == nil || *day.DistanceKm != 0.8 {
		t.Errorf("distance = %v, want 0.8 km from 800 m", day.DistanceKm)
	}
}

// TestImportCutoff verifies the sync window: rows older than the cutoff are
// discarded.
func TestImportCutoff(t *testing.T) {
	store := newMemStore()
	if _, err := Import(context.Background(), buildExportDB(t), 1, 30, store); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if _, ok := store.activity["2020-01-01"]; ok {
		t.Error("row far past the cutoff was imported")
	}
}

// TestImportMissingFile pins the unavailable-source sentinel.
func TestImportMissingFile(t *testing.T) {
	_, err := Import(context.Background(), filepath.Join(t.TempDir(), "absent.db"), 1, 0, newMemStore())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

// TestImportHeuristicScan checks the fallback for unknown table names: any
// table with a date-like and a step-like column qualifies as a daily table.
func TestImportHeuristicScan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	stmts := []string{
		`CREATE TABLE my_tracker_days (record_date TEXT, steps INTEGER)`,
		`INSERT INTO my_tracker_days VALUES ('2024-05-02', 4321)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec: %v", err)
		}
	}
	db.Close()

	store := newMemStore()
	if _, err := Import(context.Background(), path, 1, 0, store); err != nil {
		t.Fatalf("Import: %v", err)
	}
	day, ok := store.activity["2024-05-02"]
	if !ok || day.Steps == nil || *day.Steps != 4321 {
		t.Fatalf("heuristic table not imported: %v", store.activity)
	}
}

// TestImportNoRecognizableTables verifies the warning path for a database
// with nothing usable in it.
func TestImportNoRecognizableTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE notes (id INTEGER, text TEXT)`); err != nil {
		t.Fatalf("exec: %v", err)
	}
	db.Close()

	res, err := Import(context.Background(), path, 1, 0, newMemStore())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %v, want the no-tables warning", res.Warnings)
	}
	if res.FilesParsed != 0 {
		t.Errorf("FilesParsed = %d, want 0", res.FilesParsed)
	}
}

// TestCutoffDay pins the window floor computation at local midnight.
func TestCutoffDay(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 10, 15, 30, 0, 0, time.Local)
	if got := cutoffDay(now, 7); got != "2024-05-03" {
		t.Errorf("cutoffDay(7) = %s, want 2024-05-03", got)
	}
	if got := cutoffDay(now, 0); got != "" {
		t.Errorf("cutoffDay(0) = %q, want empty", got)
	}
}
