package database

import (
	"context"
	"fmt"

	"health-analyzer/pkg/canonical"
)

// StreamDayActivity streams one user's day records over a date range, row by
// row through a channel.  It avoids loading large result sets into memory
// and stops when the context is done.
func (db *Database) StreamDayActivity(ctx context.Context, userID int64, from, to string) (<-chan canonical.DayActivity, <-chan error) {
	out := make(chan canonical.DayActivity)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		query := fmt.Sprintf(`
            SELECT user_id, day, steps, calories, active_minutes, hr_avg, distance_km,
                   resting_hr, floors, spo2_avg, stress_avg, body_battery, hydration_ml
            FROM day_activity
            WHERE user_id = %s AND day >= %s AND day <= %s
            ORDER BY day`,
			placeholder(db.Driver, 1), placeholder(db.Driver, 2), placeholder(db.Driver, 3))

		rows, err := db.DB.QueryContext(ctx, query, userID, from, to)
		if err != nil {
			errCh <- fmt.Errorf("query day activity: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var rec canonical.DayActivity
			if err := rows.Scan(&rec.UserID, &rec.Day, &rec.Steps, &rec.Calories, &rec.ActiveMinutes,
				&rec.HeartRateAvg, &rec.DistanceKm, &rec.RestingHeartRate, &rec.Floors,
				&rec.SpO2Avg, &rec.StressAvg, &rec.BodyBattery, &rec.HydrationMl); err != nil {
				errCh <- fmt.Errorf("scan day activity: %w", err)
				return
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- fmt.Errorf("iterate day activity: %w", err)
		}
	}()

	return out, errCh
}

// StreamWorkouts streams one user's workout sessions over a date range.
func (db *Database) StreamWorkouts(ctx context.Context, userID int64, from, to string) (<-chan canonical.WorkoutSession, <-chan error) {
	out := make(chan canonical.WorkoutSession)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		query := fmt.Sprintf(`
            SELECT user_id, source, COALESCE(external_id, ''), day, type,
                   duration_minutes, distance_km, pace_min_per_km, calories,
                   avg_hr, max_hr, training_load
            FROM workout_sessions
            WHERE user_id = %s AND day >= %s AND day <= %s
            ORDER BY day`,
			placeholder(db.Driver, 1), placeholder(db.Driver, 2), placeholder(db.Driver, 3))

		rows, err := db.DB.QueryContext(ctx, query, userID, from, to)
		if err != nil {
			errCh <- fmt.Errorf("query workouts: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var w canonical.WorkoutSession
			if err := rows.Scan(&w.UserID, &w.Source, &w.ExternalID, &w.Day, &w.Type,
				&w.DurationMinutes, &w.DistanceKm, &w.PaceMinPerKm, &w.Calories,
				&w.AvgHeartRate, &w.MaxHeartRate, &w.TrainingLoad); err != nil {
				errCh <- fmt.Errorf("scan workout: %w", err)
				return
			}
			select {
			case out <- w:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- fmt.Errorf("iterate workouts: %w", err)
		}
	}()

	return out, errCh
}
