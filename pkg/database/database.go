// Package database persists canonical health records across several SQL
// engines behind database/sql.  Day-keyed records merge field-by-field so a
// later import enriches the row without erasing what an earlier one
// reported; samples and workout sessions dedup on their natural key.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"
)

// Database wraps the SQL connection together with the row ID generator.
type Database struct {
	DB          *sql.DB    // the underlying SQL database connection
	idGenerator chan int64 // channel handing out unique row IDs
	Driver      string     // normalized driver name so SQL builders can stay declarative
}

// Config holds the connection details for every supported engine.
type Config struct {
	DBType    string // "sqlite", "genji", "duckdb" or "pgx" (PostgreSQL)
	DBPath    string // file path for file-based engines
	DBConn    string // raw DSN for network drivers, overrides the assembled one
	DBHost    string
	DBPort    int
	DBUser    string
	DBPass    string
	DBName    string
	PGSSLMode string
	Port      int // listener port, used in default database file naming
}

// normalizeDBType trims and lowercases driver names so downstream switch
// blocks do not miss engine-specific handling just because a caller passed
// mixed case or incidental whitespace.
func normalizeDBType(dbType string) string {
	return strings.ToLower(strings.TrimSpace(dbType))
}

// startIDGenerator launches a goroutine for generating unique IDs.
func startIDGenerator(initialID int64) chan int64 {
	idChannel := make(chan int64)
	go func(start int64) {
		currentID := start
		for {
			idChannel <- currentID
			currentID++
		}
	}(initialID)
	return idChannel
}

// NextID hands out one unique row ID.
func (db *Database) NextID() int64 { return <-db.idGenerator }

// NewDatabase opens the database and configures connection pooling.
// File-based engines run in single-connection mode so concurrent imports
// serialize at the pool instead of racing the storage layer.
func NewDatabase(config Config) (*Database, error) {
	driverName := normalizeDBType(config.DBType)
	var (
		dsn                string
		applySQLitePragmas bool
	)

	switch driverName {
	case "sqlite":
		applySQLitePragmas = true
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("health-%d.%s", config.Port, driverName)
		}
	case "genji":
		// Genji manages its own transaction and caching strategy, so it gets
		// the single-connection treatment but no SQLite PRAGMA tuning.
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("health-%d.%s", config.Port, driverName)
		}
	case "duckdb":
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("health-%d.duckdb", config.Port)
		}
	case "pgx":
		if strings.TrimSpace(config.DBConn) != "" {
			dsn = config.DBConn
		} else {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				config.DBUser, config.DBPass, config.DBHost, config.DBPort, config.DBName, config.PGSSLMode)
		}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.DBType)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening the database: %v", err)
	}

	switch driverName {
	case "sqlite", "genji", "duckdb":
		// One physical connection; no concurrent statements at the DB layer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if applySQLitePragmas {
			tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := tuneSQLiteLikeConnection(tuneCtx, db, log.Printf); err != nil {
				log.Printf("sqlite tuning skipped: %v", err)
			}
			cancel()
		}
		if driverName == "duckdb" {
			tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := tuneDuckDBConnection(tuneCtx, db, log.Printf); err != nil {
				log.Printf("duckdb tuning skipped: %v", err)
			}
			cancel()
		}
	}

	// Cheap liveness probe with timeout so we don't hang at startup.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("error connecting to the database: %v", err)
		}
	}

	log.Printf("Using database driver: %s with DSN: %s", driverName, dsn)

	// Bootstrap the ID generator from the highest ID across the tables that
	// carry generated keys.  Errors are ignored so startup stays robust when
	// tables are missing on first run.
	initialID := int64(1)
	for _, table := range []string{"biometric_samples", "workout_sessions"} {
		var max sql.NullInt64
		_ = db.QueryRow(`SELECT MAX(id) FROM ` + table).Scan(&max)
		if max.Valid && max.Int64 >= initialID {
			initialID = max.Int64 + 1
		}
	}

	return &Database{
		DB:          db,
		idGenerator: startIDGenerator(initialID),
		Driver:      driverName,
	}, nil
}

// tuneSQLiteLikeConnection applies WAL/synchronous/busy pragmas.  The steps
// run through a small channel pipeline so the work happens outside the
// caller goroutine and cancellation stays clean.
func tuneSQLiteLikeConnection(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	type pragma struct {
		label     string
		query     string
		expectRow bool
	}

	steps := []pragma{
		{label: "journal_mode", query: "PRAGMA journal_mode=WAL;", expectRow: true},
		{label: "synchronous", query: "PRAGMA synchronous=NORMAL;"},
		{label: "temp_store", query: "PRAGMA temp_store=MEMORY;"},
		{label: "cache_size", query: "PRAGMA cache_size=-20000;"},
		{label: "busy_timeout", query: "PRAGMA busy_timeout=5000;"},
	}

	jobs := make(chan pragma)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		for step := range jobs {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			default:
			}

			if step.expectRow {
				var mode string
				if err := db.QueryRowContext(ctx, step.query).Scan(&mode); err != nil {
					errs <- fmt.Errorf("apply %s: %w", step.label, err)
					return
				}
				logf("SQLite tuning %s -> %s", step.label, mode)
				continue
			}

			if _, err := db.ExecContext(ctx, step.query); err != nil {
				errs <- fmt.Errorf("apply %s: %w", step.label, err)
				return
			}
			logf("SQLite tuning %s applied", step.label)
		}
		errs <- nil
	}()

	go func() {
		defer close(jobs)
		for _, step := range steps {
			jobs <- step
		}
	}()

	return <-errs
}

// tuneDuckDBConnection raises the thread count and checkpoint threshold so
// bulk imports stay CPU-bound instead of pausing on checkpoints.
func tuneDuckDBConnection(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	threads := runtime.NumCPU()
	if threads < 1 {
		threads = 1
	}

	steps := []struct {
		label string
		query string
	}{
		{label: "threads", query: fmt.Sprintf("PRAGMA threads=%d;", threads)},
		{label: "checkpoint_threshold", query: "PRAGMA checkpoint_threshold='1GB';"},
	}

	for _, step := range steps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := db.ExecContext(ctx, step.query); err != nil {
			return fmt.Errorf("apply %s: %w", step.label, err)
		}
		logf("DuckDB tuning %s applied", step.label)
	}
	return nil
}

// placeholder returns the parameter marker for the driver: PostgreSQL uses
// numbered placeholders, everything else takes "?".
func placeholder(driver string, n int) string {
	if normalizeDBType(driver) == "pgx" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// placeholders renders count markers starting at position offset+1.
func placeholders(driver string, offset, count int) string {
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		parts[i] = placeholder(driver, offset+i+1)
	}
	return strings.Join(parts, ", ")
}
