// health-analyzer ingests personal health and fitness exports — CSV, Excel,
// TCX, GPX, FIT, health-record XML, ZIP archives and third-party SQLite
// databases — into one normalized per-day store, and serves the merged
// records over HTTP.
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/acme/autocert"

	"health-analyzer/pkg/canonical"
	"health-analyzer/pkg/database"
	"health-analyzer/pkg/externaldb"
	"health-analyzer/pkg/ingest"
)

// CompileVersion is stamped by the build; "dev" otherwise.
var CompileVersion = "dev"

var domain = flag.String("domain", "", "Use 80 and 443 ports. Automatic HTTPS cert via Let's Encrypt.")
var dbType = flag.String("db-type", "sqlite", "Type of the database driver: genji, sqlite, duckdb, or pgx (postgresql)")
var dbPath = flag.String("db-path", "", "Path to the database file (defaults to the current folder, applicable for genji, sqlite drivers.)")
var dbConn = flag.String("db-conn", "", "Raw database DSN, overrides host/port/user settings (applicable for pgx driver)")
var dbHost = flag.String("db-host", "127.0.0.1", "Database host (applicable for pgx driver)")
var dbPort = flag.Int("db-port", 5432, "Database port (applicable for pgx driver)")
var dbUser = flag.String("db-user", "postgres", "Database user (applicable for pgx driver)")
var dbPass = flag.String("db-pass", "", "Database password (applicable for pgx driver)")
var dbName = flag.String("db-name", "HealthAnalyzer", "Database name (applicable for pgx driver)")
var pgSSLMode = flag.String("pg-ssl-mode", "prefer", "PostgreSQL SSL mode: disable, allow, prefer, require, verify-ca, or verify-full")
var port = flag.Int("port", 8765, "Port for running the server")
var version = flag.Bool("version", false, "Show the application version")
var defaultUser = flag.Int64("user-id", 1, "User ID imports are attributed to when the request does not carry one")
var externalDBPath = flag.String("external-db", "", "Path to a third-party SQLite export database for scheduled sync")
var syncSchedule = flag.String("sync-schedule", "", `Cron schedule for external database sync, e.g. "0 3 * * *"; empty disables it`)
var syncDays = flag.Int("sync-days", 30, "How many days back external database sync reaches; 0 means no cutoff")
var syncCommand = flag.String("sync-command", "", "Shell command that refreshes the external database before each sync")

// maxUploadBytes caps one upload.  Health XML exports run to hundreds of
// megabytes; 1 GiB leaves headroom without letting a client exhaust disk.
const maxUploadBytes = 1 << 30

var db *database.Database
var importer *ingest.Importer

// withServerHeader wraps any http.Handler, adding a
// "Server: health-analyzer/<CompileVersion>" header.
//
// A HEAD request to "/" answers 200 OK without a body so probes can see the
// service is alive.
func withServerHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "health-analyzer/"+CompileVersion)

		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// serveWithDomain runs:
//   - :80  — ACME HTTP-01 challenge + 301 redirect to https://<domain>/…
//   - :443 — HTTPS with automatic Let's Encrypt certificates.
//
// If autocert cannot issue a cert for a host/SNI, the server still serves a
// previously obtained fallback cert instead of failing the handshake.
// All errors are logged only.
func serveWithDomain(domain string, handler http.Handler) {
	certMgr := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache("certs"),
		HostPolicy: func(ctx context.Context, host string) error {
			// Allow the bare domain and www.<domain>.
			if host == domain || host == "www."+domain {
				return nil
			}
			// IP address? Don't block, just don't request a cert for it.
			if net.ParseIP(host) != nil {
				return nil
			}
			return errors.New("acme/autocert: host not configured")
		},
	}

	// :80 — challenge + redirect.
	go func() {
		mux80 := http.NewServeMux()
		mux80.Handle("/.well-known/acme-challenge/", certMgr.HTTPHandler(nil))
		mux80.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			target := "https://" + domain + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})

		log.Printf("HTTP  server (ACME+redirect) ➜ :80")
		if err := (&http.Server{
			Addr:              ":80",
			Handler:           mux80,
			ReadHeaderTimeout: 10 * time.Second,
		}).ListenAndServe(); err != nil {
			log.Printf("HTTP  server error: %v", err)
		}
	}()

	// Daily certificate renewal check.
	go func() {
		t := time.NewTicker(24 * time.Hour)
		defer t.Stop()
		for range t.C {
			if _, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err != nil {
				log.Printf("autocert renewal check: %v", err)
			}
		}
	}()

	// :443 — HTTPS.
	tlsCfg := certMgr.TLSConfig()

	// Fallback certificate for IPs and odd SNI values.
	var defaultCert *tls.Certificate
	go func() {
		for defaultCert == nil {
			if c, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err == nil {
				defaultCert = c
			}
			time.Sleep(time.Minute)
		}
	}()
	tlsCfg.GetCertificate = func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
		c, err := certMgr.GetCertificate(chi)
		if err == nil {
			return c, nil
		}
		if defaultCert != nil {
			return defaultCert, nil
		}
		return nil, err
	}

	log.Printf("HTTPS server for %s ➜ :443", domain)
	if err := (&http.Server{
		Addr:              ":443",
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}).ListenAndServeTLS("", ""); err != nil {
		log.Printf("HTTPS server error: %v", err)
	}
}

// userFromRequest reads the target user from the request, falling back to
// the -user-id flag.
func userFromRequest(r *http.Request) int64 {
	raw := r.FormValue("user_id")
	if raw == "" {
		raw = r.URL.Query().Get("user_id")
	}
	if raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return *defaultUser
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// uploadHandler accepts one multipart file and runs the import pipeline
// over it.  The response is the ImportResult as JSON.
func uploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	res, err := importer.ImportReader(r.Context(), header.Filename, file, userFromRequest(r))
	if err != nil {
		if errors.Is(err, ingest.ErrUnsupportedFormat) {
			http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// dateRange pulls from/to query parameters with a default window of the
// last 30 days.
func dateRange(r *http.Request) (string, string) {
	const layout = "2006-01-02"
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if to == "" {
		to = time.Now().Format(layout)
	}
	if from == "" {
		t, err := time.Parse(layout, to)
		if err != nil {
			t = time.Now()
		}
		from = t.AddDate(0, 0, -30).Format(layout)
	}
	return from, to
}

// activityHandler returns merged per-day activity records for a date range.
func activityHandler(w http.ResponseWriter, r *http.Request) {
	from, to := dateRange(r)
	rows, errCh := db.StreamDayActivity(r.Context(), userFromRequest(r), from, to)

	out := []canonical.DayActivity{}
	for rec := range rows {
		out = append(out, rec)
	}
	if err := <-errCh; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// workoutsHandler returns workout sessions for a date range.
func workoutsHandler(w http.ResponseWriter, r *http.Request) {
	from, to := dateRange(r)
	rows, errCh := db.StreamWorkouts(r.Context(), userFromRequest(r), from, to)

	out := []canonical.WorkoutSession{}
	for w2 := range rows {
		out = append(out, w2)
	}
	if err := <-errCh; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	if err := db.DB.PingContext(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	fmt.Fprintln(w, "ok")
}

// startExternalSync schedules the external database sync when both a
// schedule and a database path are configured.
func startExternalSync() {
	if *syncSchedule == "" || *externalDBPath == "" {
		return
	}
	syncer := &externaldb.Syncer{
		Command: *syncCommand,
		DBPath:  *externalDBPath,
		Days:    *syncDays,
		UserID:  *defaultUser,
		Store:   db,
	}
	c := cron.New()
	_, err := c.AddFunc(*syncSchedule, func() {
		res, err := syncer.Run(context.Background())
		if err != nil {
			log.Printf("external sync failed: %v", err)
			return
		}
		log.Printf("external sync done: %d inserted, %d updated, %d rows",
			res.TotalInserted(), res.TotalUpdated(), res.RowsParsed)
	})
	if err != nil {
		log.Fatalf("sync schedule %q: %v", *syncSchedule, err)
	}
	c.Start()
	log.Printf("external sync scheduled (%s) from %s", *syncSchedule, *externalDBPath)
}

func main() {
	// Local .env keeps credentials out of the process table; absence is fine.
	_ = godotenv.Load()
	flag.Parse()

	if *version {
		fmt.Printf("health-analyzer version %s\n", CompileVersion)
		return
	}

	if *domain != "" && runtime.GOOS != "windows" && os.Geteuid() != 0 {
		log.Println("⚠  Binding to :80 / :443 requires super-user rights; run with sudo or as root.")
	}

	dbCfg := database.Config{
		DBType:    *dbType,
		DBPath:    *dbPath,
		DBConn:    *dbConn,
		DBHost:    *dbHost,
		DBPort:    *dbPort,
		DBUser:    *dbUser,
		DBPass:    *dbPass,
		DBName:    *dbName,
		PGSSLMode: *pgSSLMode,
		Port:      *port,
	}
	var err error
	db, err = database.NewDatabase(dbCfg)
	if err != nil {
		log.Fatalf("DB init: %v", err)
	}
	if err = db.InitSchema(dbCfg); err != nil {
		log.Fatalf("DB schema: %v", err)
	}

	importer = &ingest.Importer{Store: db, SyncDays: *syncDays}

	http.HandleFunc("/upload", uploadHandler)
	http.HandleFunc("/activity", activityHandler)
	http.HandleFunc("/workouts", workoutsHandler)
	http.HandleFunc("/healthz", healthzHandler)

	rootHandler := withServerHeader(http.DefaultServeMux)

	if *domain != "" {
		// Dual server :80 + :443 with Let's Encrypt.
		go serveWithDomain(*domain, rootHandler)
	} else {
		addr := fmt.Sprintf(":%d", *port)
		go func() {
			log.Printf("HTTP server ➜ http://localhost%s", addr)
			if err := http.ListenAndServe(addr, rootHandler); err != nil {
				log.Printf("HTTP server error: %v", err)
			}
		}()
	}

	startExternalSync()

	// Keep the main goroutine alive.
	select {}
}
