package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// InitSchema creates the health tables for the configured engine.  Natural
// keys are declared as named UNIQUE constraints (or unique indexes on the
// engines that prefer them) so the upsert policy can target them directly.
func (db *Database) InitSchema(cfg Config) error {
	var schema string

	switch normalizeDBType(cfg.DBType) {
	case "pgx":
		// PostgreSQL — standard types, named UNIQUE to target by ON CONFLICT.
		schema = `
CREATE TABLE IF NOT EXISTS day_activity (
  id             BIGSERIAL PRIMARY KEY,
  user_id        BIGINT NOT NULL,
  day            TEXT NOT NULL,
  steps          BIGINT,
  calories       DOUBLE PRECISION,
  active_minutes DOUBLE PRECISION,
  hr_avg         DOUBLE PRECISION,
  distance_km    DOUBLE PRECISION,
  resting_hr     BIGINT,
  floors         DOUBLE PRECISION,
  spo2_avg       DOUBLE PRECISION,
  stress_avg     BIGINT,
  body_battery   BIGINT,
  hydration_ml   DOUBLE PRECISION,
  updated_at     BIGINT,
  CONSTRAINT day_activity_unique UNIQUE (user_id, day)
);

CREATE TABLE IF NOT EXISTS day_sleep (
  id               BIGSERIAL PRIMARY KEY,
  user_id          BIGINT NOT NULL,
  day              TEXT NOT NULL,
  score            BIGINT,
  duration_hours   DOUBLE PRECISION,
  deep_sleep_hours DOUBLE PRECISION,
  rem_sleep_hours  DOUBLE PRECISION,
  bedtime          TEXT,
  wake_time        TEXT,
  updated_at       BIGINT,
  CONSTRAINT day_sleep_unique UNIQUE (user_id, day)
);

CREATE TABLE IF NOT EXISTS body_composition (
  id                   BIGSERIAL PRIMARY KEY,
  user_id              BIGINT NOT NULL,
  day                  TEXT NOT NULL,
  weight_kg            DOUBLE PRECISION,
  body_fat_pct         DOUBLE PRECISION,
  bmi                  DOUBLE PRECISION,
  hydration_pct        DOUBLE PRECISION,
  muscle_mass_kg       DOUBLE PRECISION,
  visceral_fat         DOUBLE PRECISION,
  bone_mass_kg         DOUBLE PRECISION,
  bmr_kcal             DOUBLE PRECISION,
  metabolic_age        DOUBLE PRECISION,
  protein_pct          DOUBLE PRECISION,
  subcutaneous_fat_pct DOUBLE PRECISION,
  skeletal_muscle_pct  DOUBLE PRECISION,
  fat_free_mass_kg     DOUBLE PRECISION,
  body_water_kg        DOUBLE PRECISION,
  impedance_ohm        DOUBLE PRECISION,
  lean_mass_kg         DOUBLE PRECISION,
  trunk_fat_pct        DOUBLE PRECISION,
  physique_rating      DOUBLE PRECISION,
  source               TEXT,
  raw_payload          TEXT,
  updated_at           BIGINT,
  CONSTRAINT body_composition_unique UNIQUE (user_id, day)
);

CREATE TABLE IF NOT EXISTS biometric_samples (
  id          BIGINT PRIMARY KEY,
  user_id     BIGINT NOT NULL,
  type        TEXT NOT NULL,
  source      TEXT NOT NULL,
  start_at    BIGINT NOT NULL,
  end_at      BIGINT,
  value_num   DOUBLE PRECISION,
  unit        TEXT,
  raw_payload TEXT,
  CONSTRAINT biometric_samples_unique UNIQUE (user_id, type, source, start_at)
);

CREATE TABLE IF NOT EXISTS workout_sessions (
  id               BIGINT PRIMARY KEY,
  user_id          BIGINT NOT NULL,
  source           TEXT NOT NULL,
  external_id      TEXT,
  day              TEXT NOT NULL,
  type             TEXT NOT NULL,
  duration_minutes DOUBLE PRECISION,
  distance_km      DOUBLE PRECISION,
  pace_min_per_km  DOUBLE PRECISION,
  calories         DOUBLE PRECISION,
  avg_hr           BIGINT,
  max_hr           BIGINT,
  training_load    DOUBLE PRECISION,
  raw_payload      TEXT,
  CONSTRAINT workout_sessions_unique UNIQUE (user_id, source, external_id)
);

CREATE TABLE IF NOT EXISTS import_history (
  source      TEXT NOT NULL,
  source_id   TEXT NOT NULL,
  status      TEXT,
  imported_at BIGINT,
  message     TEXT,
  CONSTRAINT import_history_unique UNIQUE (source, source_id)
);

CREATE INDEX IF NOT EXISTS idx_day_activity_user_day ON day_activity (user_id, day);
CREATE INDEX IF NOT EXISTS idx_samples_user_type_start ON biometric_samples (user_id, type, start_at);
CREATE INDEX IF NOT EXISTS idx_workouts_user_day ON workout_sessions (user_id, day);
`

	case "sqlite", "genji":
		// Portable SQLite/Genji side — explicit INTEGER PK, unique indexes
		// instead of named constraints.
		schema = `
CREATE TABLE IF NOT EXISTS day_activity (
  id             INTEGER PRIMARY KEY,
  user_id        BIGINT NOT NULL,
  day            TEXT NOT NULL,
  steps          BIGINT,
  calories       REAL,
  active_minutes REAL,
  hr_avg         REAL,
  distance_km    REAL,
  resting_hr     BIGINT,
  floors         REAL,
  spo2_avg       REAL,
  stress_avg     BIGINT,
  body_battery   BIGINT,
  hydration_ml   REAL,
  updated_at     BIGINT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_day_activity_unique ON day_activity (user_id, day);

CREATE TABLE IF NOT EXISTS day_sleep (
  id               INTEGER PRIMARY KEY,
  user_id          BIGINT NOT NULL,
  day              TEXT NOT NULL,
  score            BIGINT,
  duration_hours   REAL,
  deep_sleep_hours REAL,
  rem_sleep_hours  REAL,
  bedtime          TEXT,
  wake_time        TEXT,
  updated_at       BIGINT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_day_sleep_unique ON day_sleep (user_id, day);

CREATE TABLE IF NOT EXISTS body_composition (
  id                   INTEGER PRIMARY KEY,
  user_id              BIGINT NOT NULL,
  day                  TEXT NOT NULL,
  weight_kg            REAL,
  body_fat_pct         REAL,
  bmi                  REAL,
  hydration_pct        REAL,
  muscle_mass_kg       REAL,
  visceral_fat         REAL,
  bone_mass_kg         REAL,
  bmr_kcal             REAL,
  metabolic_age        REAL,
  protein_pct          REAL,
  subcutaneous_fat_pct REAL,
  skeletal_muscle_pct  REAL,
  fat_free_mass_kg     REAL,
  body_water_kg        REAL,
  impedance_ohm        REAL,
  lean_mass_kg         REAL,
  trunk_fat_pct        REAL,
  physique_rating      REAL,
  source               TEXT,
  raw_payload          TEXT,
  updated_at           BIGINT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_body_composition_unique ON body_composition (user_id, day);

CREATE TABLE IF NOT EXISTS biometric_samples (
  id          INTEGER PRIMARY KEY,
  user_id     BIGINT NOT NULL,
  type        TEXT NOT NULL,
  source      TEXT NOT NULL,
  start_at    BIGINT NOT NULL,
  end_at      BIGINT,
  value_num   REAL,
  unit        TEXT,
  raw_payload TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_biometric_samples_unique ON biometric_samples (user_id, type, source, start_at);

CREATE TABLE IF NOT EXISTS workout_sessions (
  id               INTEGER PRIMARY KEY,
  user_id          BIGINT NOT NULL,
  source           TEXT NOT NULL,
  external_id      TEXT,
  day              TEXT NOT NULL,
  type             TEXT NOT NULL,
  duration_minutes REAL,
  distance_km      REAL,
  pace_min_per_km  REAL,
  calories         REAL,
  avg_hr           BIGINT,
  max_hr           BIGINT,
  training_load    REAL,
  raw_payload      TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_workout_sessions_unique ON workout_sessions (user_id, source, external_id);

CREATE TABLE IF NOT EXISTS import_history (
  source      TEXT NOT NULL,
  source_id   TEXT NOT NULL,
  status      TEXT,
  imported_at BIGINT,
  message     TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_import_history_unique ON import_history (source, source_id);

CREATE INDEX IF NOT EXISTS idx_samples_user_type_start ON biometric_samples (user_id, type, start_at);
CREATE INDEX IF NOT EXISTS idx_workouts_user_day ON workout_sessions (user_id, day);
`

	case "duckdb":
		// DuckDB — no SERIAL/AUTOINCREMENT; sequences + DEFAULT nextval(...)
		// for the day tables, generator-assigned IDs elsewhere.
		schema = `
CREATE SEQUENCE IF NOT EXISTS day_activity_id_seq START 1;
CREATE TABLE IF NOT EXISTS day_activity (
  id             BIGINT PRIMARY KEY DEFAULT nextval('day_activity_id_seq'),
  user_id        BIGINT NOT NULL,
  day            TEXT NOT NULL,
  steps          BIGINT,
  calories       DOUBLE,
  active_minutes DOUBLE,
  hr_avg         DOUBLE,
  distance_km    DOUBLE,
  resting_hr     BIGINT,
  floors         DOUBLE,
  spo2_avg       DOUBLE,
  stress_avg     BIGINT,
  body_battery   BIGINT,
  hydration_ml   DOUBLE,
  updated_at     BIGINT,
  CONSTRAINT day_activity_unique UNIQUE (user_id, day)
);

CREATE SEQUENCE IF NOT EXISTS day_sleep_id_seq START 1;
CREATE TABLE IF NOT EXISTS day_sleep (
  id               BIGINT PRIMARY KEY DEFAULT nextval('day_sleep_id_seq'),
  user_id          BIGINT NOT NULL,
  day              TEXT NOT NULL,
  score            BIGINT,
  duration_hours   DOUBLE,
  deep_sleep_hours DOUBLE,
  rem_sleep_hours  DOUBLE,
  bedtime          TEXT,
  wake_time        TEXT,
  updated_at       BIGINT,
  CONSTRAINT day_sleep_unique UNIQUE (user_id, day)
);

CREATE SEQUENCE IF NOT EXISTS body_composition_id_seq START 1;
CREATE TABLE IF NOT EXISTS body_composition (
  id                   BIGINT PRIMARY KEY DEFAULT nextval('body_composition_id_seq'),
  user_id              BIGINT NOT NULL,
  day                  TEXT NOT NULL,
  weight_kg            DOUBLE,
  body_fat_pct         DOUBLE,
  bmi                  DOUBLE,
  hydration_pct        DOUBLE,
  muscle_mass_kg       DOUBLE,
  visceral_fat         DOUBLE,
  bone_mass_kg         DOUBLE,
  bmr_kcal             DOUBLE,
  metabolic_age        DOUBLE,
  protein_pct          DOUBLE,
  subcutaneous_fat_pct DOUBLE,
  skeletal_muscle_pct  DOUBLE,
  fat_free_mass_kg     DOUBLE,
  body_water_kg        DOUBLE,
  impedance_ohm        DOUBLE,
  lean_mass_kg         DOUBLE,
  trunk_fat_pct        DOUBLE,
  physique_rating      DOUBLE,
  source               TEXT,
  raw_payload          TEXT,
  updated_at           BIGINT,
  CONSTRAINT body_composition_unique UNIQUE (user_id, day)
);

CREATE TABLE IF NOT EXISTS biometric_samples (
  id          BIGINT PRIMARY KEY,
  user_id     BIGINT NOT NULL,
  type        TEXT NOT NULL,
  source      TEXT NOT NULL,
  start_at    BIGINT NOT NULL,
  end_at      BIGINT,
  value_num   DOUBLE,
  unit        TEXT,
  raw_payload TEXT,
  CONSTRAINT biometric_samples_unique UNIQUE (user_id, type, source, start_at)
);

CREATE TABLE IF NOT EXISTS workout_sessions (
  id               BIGINT PRIMARY KEY,
  user_id          BIGINT NOT NULL,
  source           TEXT NOT NULL,
  external_id      TEXT,
  day              TEXT NOT NULL,
  type             TEXT NOT NULL,
  duration_minutes DOUBLE,
  distance_km      DOUBLE,
  pace_min_per_km  DOUBLE,
  calories         DOUBLE,
  avg_hr           BIGINT,
  max_hr           BIGINT,
  training_load    DOUBLE,
  raw_payload      TEXT,
  CONSTRAINT workout_sessions_unique UNIQUE (user_id, source, external_id)
);

CREATE TABLE IF NOT EXISTS import_history (
  source      TEXT NOT NULL,
  source_id   TEXT NOT NULL,
  status      TEXT,
  imported_at BIGINT,
  message     TEXT,
  CONSTRAINT import_history_unique UNIQUE (source, source_id)
);
`

	default:
		return fmt.Errorf("unsupported database type for schema init: %s", cfg.DBType)
	}

	return execStatements(db.DB, splitStatements(schema))
}

// splitStatements breaks a schema blob into individual statements because
// some drivers reject multi-statement Exec calls.
func splitStatements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func execStatements(db *sql.DB, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w\n%s", err, stmt)
		}
	}
	return nil
}
