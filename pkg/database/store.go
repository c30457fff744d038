package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"health-analyzer/pkg/canonical"
)

// The store implements canonical.Store with one policy per key shape:
//
//   - day-keyed records (activity, sleep, body composition) merge
//     fill-if-absent: an incoming non-NULL value overwrites the column, an
//     incoming NULL never erases what an earlier import stored;
//   - natural-keyed records (samples, workout sessions) insert once and
//     never merge — a conflicting row is reported as skipped.
//
// On engines with ON CONFLICT support the merge is a single atomic
// statement; the existence probe beforehand only decides whether to report
// the write as an insert or an update.

// UpsertDayActivity merges one per-day activity record.
func (db *Database) UpsertDayActivity(ctx context.Context, rec canonical.DayActivity) (canonical.Action, error) {
	cols := []string{"steps", "calories", "active_minutes", "hr_avg", "distance_km",
		"resting_hr", "floors", "spo2_avg", "stress_avg", "body_battery", "hydration_ml"}
	vals := []any{rec.Steps, rec.Calories, rec.ActiveMinutes, rec.HeartRateAvg, rec.DistanceKm,
		rec.RestingHeartRate, rec.Floors, rec.SpO2Avg, rec.StressAvg, rec.BodyBattery, rec.HydrationMl}
	return db.upsertDayKeyed(ctx, "day_activity", rec.UserID, rec.Day, cols, vals)
}

// UpsertDaySleep merges one per-day sleep record.
func (db *Database) UpsertDaySleep(ctx context.Context, rec canonical.DaySleep) (canonical.Action, error) {
	cols := []string{"score", "duration_hours", "deep_sleep_hours", "rem_sleep_hours", "bedtime", "wake_time"}
	vals := []any{rec.Score, rec.DurationHours, rec.DeepSleepHours, rec.RemSleepHours, rec.Bedtime, rec.WakeTime}
	return db.upsertDayKeyed(ctx, "day_sleep", rec.UserID, rec.Day, cols, vals)
}

// UpsertBodyComposition merges one per-day body composition record.
func (db *Database) UpsertBodyComposition(ctx context.Context, rec canonical.BodyComposition) (canonical.Action, error) {
	cols := []string{"weight_kg", "body_fat_pct", "bmi", "hydration_pct", "muscle_mass_kg", "visceral_fat",
		"bone_mass_kg", "bmr_kcal", "metabolic_age", "protein_pct", "subcutaneous_fat_pct",
		"skeletal_muscle_pct", "fat_free_mass_kg", "body_water_kg", "impedance_ohm", "lean_mass_kg",
		"trunk_fat_pct", "physique_rating", "source", "raw_payload"}
	vals := []any{rec.WeightKg, rec.BodyFatPct, rec.BMI, rec.HydrationPct, rec.MuscleMassKg, rec.VisceralFat,
		rec.BoneMassKg, rec.BMRKcal, rec.MetabolicAge, rec.ProteinPct, rec.SubcutaneousFatPct,
		rec.SkeletalMusclePct, rec.FatFreeMassKg, rec.BodyWaterKg, rec.ImpedanceOhm, rec.LeanMassKg,
		rec.TrunkFatPct, rec.PhysiqueRating, nullIfEmpty(rec.Source), nullIfEmpty(rec.RawPayload)}
	return db.upsertDayKeyed(ctx, "body_composition", rec.UserID, rec.Day, cols, vals)
}

// InsertBiometricSample writes a sample once per natural key.
func (db *Database) InsertBiometricSample(ctx context.Context, s canonical.BiometricSample) (canonical.Action, error) {
	if db.Driver == "genji" {
		exists, err := db.exists(ctx, `SELECT 1 FROM biometric_samples WHERE user_id = ? AND type = ? AND source = ? AND start_at = ?`,
			s.UserID, s.Type, s.Source, s.StartAt)
		if err != nil {
			return canonical.ActionSkipped, err
		}
		if exists {
			return canonical.ActionSkipped, nil
		}
		_, err = db.DB.ExecContext(ctx, `INSERT INTO biometric_samples
  (id, user_id, type, source, start_at, end_at, value_num, unit, raw_payload)
  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			db.NextID(), s.UserID, s.Type, s.Source, s.StartAt, s.EndAt, s.ValueNum, nullIfEmpty(s.Unit), nullIfEmpty(s.RawPayload))
		if err != nil {
			return canonical.ActionSkipped, fmt.Errorf("insert sample: %w", err)
		}
		return canonical.ActionInserted, nil
	}

	stmt := fmt.Sprintf(`INSERT INTO biometric_samples
  (id, user_id, type, source, start_at, end_at, value_num, unit, raw_payload)
  VALUES (%s)
  ON CONFLICT (user_id, type, source, start_at) DO NOTHING`, placeholders(db.Driver, 0, 9))
	res, err := db.DB.ExecContext(ctx, stmt,
		db.NextID(), s.UserID, s.Type, s.Source, s.StartAt, s.EndAt, s.ValueNum, nullIfEmpty(s.Unit), nullIfEmpty(s.RawPayload))
	if err != nil {
		return canonical.ActionSkipped, fmt.Errorf("insert sample: %w", err)
	}
	return actionFromAffected(res)
}

// InsertWorkoutSession writes a workout once per (user, source, externalID).
// Sessions without an external ID store NULL there; NULLs compare distinct
// in unique indexes, so such sessions are always fresh rows.
func (db *Database) InsertWorkoutSession(ctx context.Context, w canonical.WorkoutSession) (canonical.Action, error) {
	if db.Driver == "genji" {
		if w.ExternalID != "" {
			exists, err := db.exists(ctx, `SELECT 1 FROM workout_sessions WHERE user_id = ? AND source = ? AND external_id = ?`,
				w.UserID, w.Source, w.ExternalID)
			if err != nil {
				return canonical.ActionSkipped, err
			}
			if exists {
				return canonical.ActionSkipped, nil
			}
		}
		_, err := db.DB.ExecContext(ctx, `INSERT INTO workout_sessions
  (id, user_id, source, external_id, day, type, duration_minutes, distance_km, pace_min_per_km, calories, avg_hr, max_hr, training_load, raw_payload)
  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			db.NextID(), w.UserID, w.Source, nullIfEmpty(w.ExternalID), w.Day, w.Type,
			w.DurationMinutes, w.DistanceKm, w.PaceMinPerKm, w.Calories, w.AvgHeartRate, w.MaxHeartRate,
			w.TrainingLoad, nullIfEmpty(w.RawPayload))
		if err != nil {
			return canonical.ActionSkipped, fmt.Errorf("insert workout: %w", err)
		}
		return canonical.ActionInserted, nil
	}

	stmt := fmt.Sprintf(`INSERT INTO workout_sessions
  (id, user_id, source, external_id, day, type, duration_minutes, distance_km, pace_min_per_km, calories, avg_hr, max_hr, training_load, raw_payload)
  VALUES (%s)
  ON CONFLICT (user_id, source, external_id) DO NOTHING`, placeholders(db.Driver, 0, 14))
	res, err := db.DB.ExecContext(ctx, stmt,
		db.NextID(), w.UserID, w.Source, nullIfEmpty(w.ExternalID), w.Day, w.Type,
		w.DurationMinutes, w.DistanceKm, w.PaceMinPerKm, w.Calories, w.AvgHeartRate, w.MaxHeartRate,
		w.TrainingLoad, nullIfEmpty(w.RawPayload))
	if err != nil {
		return canonical.ActionSkipped, fmt.Errorf("insert workout: %w", err)
	}
	return actionFromAffected(res)
}

// upsertDayKeyed is the shared fill-if-absent merge for day-keyed tables.
func (db *Database) upsertDayKeyed(ctx context.Context, table string, userID int64, day string, cols []string, vals []any) (canonical.Action, error) {
	existsStmt := fmt.Sprintf(`SELECT 1 FROM %s WHERE user_id = %s AND day = %s`,
		table, placeholder(db.Driver, 1), placeholder(db.Driver, 2))
	exists, err := db.exists(ctx, existsStmt, userID, day)
	if err != nil {
		return canonical.ActionSkipped, err
	}

	if db.Driver == "genji" {
		return db.upsertDayKeyedGenji(ctx, table, userID, day, cols, vals, exists)
	}

	// Single atomic statement: incoming non-NULL values win, stored values
	// survive wherever the patch is NULL.
	var set []string
	for _, col := range cols {
		set = append(set, fmt.Sprintf("%s = COALESCE(excluded.%s, %s.%s)", col, col, table, col))
	}
	set = append(set, "updated_at = excluded.updated_at")

	allCols := append([]string{"user_id", "day"}, cols...)
	allCols = append(allCols, "updated_at")
	args := append([]any{userID, day}, vals...)
	args = append(args, time.Now().Unix())

	stmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)
ON CONFLICT (user_id, day) DO UPDATE SET %s`,
		table, strings.Join(allCols, ", "), placeholders(db.Driver, 0, len(allCols)), strings.Join(set, ", "))
	if _, err := db.DB.ExecContext(ctx, stmt, args...); err != nil {
		return canonical.ActionSkipped, fmt.Errorf("upsert %s: %w", table, err)
	}
	if exists {
		return canonical.ActionUpdated, nil
	}
	return canonical.ActionInserted, nil
}

// upsertDayKeyedGenji is the check-then-write fallback for engines without
// ON CONFLICT DO UPDATE.  There is a gap between the probe and the write;
// with the pool capped at one connection the gap cannot be hit from within
// this process, and a concurrent external writer at worst loses the race to
// the unique index.
func (db *Database) upsertDayKeyedGenji(ctx context.Context, table string, userID int64, day string, cols []string, vals []any, exists bool) (canonical.Action, error) {
	now := time.Now().Unix()
	if exists {
		var set []string
		for _, col := range cols {
			set = append(set, fmt.Sprintf("%s = COALESCE(?, %s)", col, col))
		}
		set = append(set, "updated_at = ?")
		args := append(append([]any{}, vals...), now, userID, day)
		stmt := fmt.Sprintf(`UPDATE %s SET %s WHERE user_id = ? AND day = ?`, table, strings.Join(set, ", "))
		if _, err := db.DB.ExecContext(ctx, stmt, args...); err != nil {
			return canonical.ActionSkipped, fmt.Errorf("update %s: %w", table, err)
		}
		return canonical.ActionUpdated, nil
	}

	allCols := append([]string{"user_id", "day"}, cols...)
	allCols = append(allCols, "updated_at")
	args := append([]any{userID, day}, vals...)
	args = append(args, now)
	stmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		table, strings.Join(allCols, ", "), placeholders("genji", 0, len(allCols)))
	if _, err := db.DB.ExecContext(ctx, stmt, args...); err != nil {
		return canonical.ActionSkipped, fmt.Errorf("insert %s: %w", table, err)
	}
	return canonical.ActionInserted, nil
}

// exists runs a one-row probe and folds ErrNoRows into false.
func (db *Database) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := db.DB.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("existence probe: %w", err)
	}
	return true, nil
}

// actionFromAffected maps a DO NOTHING outcome onto insert/skip.
func actionFromAffected(res sql.Result) (canonical.Action, error) {
	n, err := res.RowsAffected()
	if err != nil {
		// Driver cannot report affected rows; assume the insert landed.
		return canonical.ActionInserted, nil
	}
	if n == 0 {
		return canonical.ActionSkipped, nil
	}
	return canonical.ActionInserted, nil
}

// nullIfEmpty maps empty strings onto NULL so COALESCE-based merges and
// unique indexes treat "never reported" uniformly.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
