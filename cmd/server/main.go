package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	_ "modernc.org/sqlite"

	web "chamber/internal/adapters/http"
	"chamber/internal/adapters/perf"
	"chamber/internal/adapters/realtime"
	"chamber/internal/adapters/remote"
	"chamber/internal/adapters/storage"
	"chamber/internal/adapters/storage/cache"
	outboxStore "chamber/internal/adapters/storage/outbox"
	"chamber/internal/application/orchestrators"
	"chamber/internal/application/reconciler"
	"chamber/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.IsProduction() {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	cal, err := config.LoadCalendar(cfg.CalendarPath)
	if err != nil {
		log.Fatalf("failed to load term calendar: %v", err)
	}

	// WAL mode, busy timeout and foreign keys on every connection
	dsn := cfg.DBPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(8)

	if err := db.Ping(); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}
	if err := storage.InitDB(db); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, cfg.SlowQuery).WithCollector(collector)
	hub := realtime.NewHub()

	deps := reconciler.Deps{
		Cache:     cache.NewSQLiteStore(timedDB),
		Outbox:    outboxStore.NewSQLiteStore(timedDB),
		Publisher: hub,
	}
	if cfg.RemoteDSN != "" {
		client, err := remote.Open(remote.Options{
			DSN:           cfg.RemoteDSN,
			SlowThreshold: cfg.SlowRemote,
			AutoMigrate:   cfg.RemoteMigrate,
			Collector:     collector,
		})
		if err != nil {
			// The app stays usable on the local cache alone.
			slog.Error("remote_open_failed", "error", err)
		} else {
			defer client.Close()
			deps.Remote = client
			deps.Blobs = client
		}
	}

	svc, err := reconciler.New(reconciler.Config{Calendar: cal}, deps)
	if err != nil {
		log.Fatalf("failed to start reconciler: %v", err)
	}

	if cfg.RosterCSV != "" && len(svc.Members()) == 0 {
		seedRoster(svc, cfg.RosterCSV)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc.Start(ctx)
	defer svc.Stop()

	mux := web.NewMux(cfg.StaticDir, web.Deps{
		Service:        svc,
		Hub:            hub,
		Collector:      collector,
		CSRFKey:        cfg.CSRFKey,
		SecureCookies:  cfg.IsProduction(),
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
		SlowRequest:    cfg.SlowRequest,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown_failed", "error", err)
		}
	}()

	slog.Info("server_starting",
		"version", version,
		"addr", cfg.Addr,
		"env", cfg.Env,
		"remote", svc.RemoteConfigured(),
		"sessions", cal.TotalSessions,
		"default_session", cal.DefaultSession(svc.Now()),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	slog.Info("server_stopped")
}

// seedRoster imports the configured roster CSV into an empty roster.
// Failures are logged; the server starts either way.
func seedRoster(svc *reconciler.Service, path string) {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("roster_seed_failed", "path", path, "error", err)
		return
	}
	defer f.Close()

	_, err = orchestrators.ExecuteImportRoster(context.Background(), orchestrators.ImportRosterInput{
		Reader: f,
		Source: path,
	}, orchestrators.ImportRosterDeps{Roster: svc})
	if err != nil {
		slog.Error("roster_seed_failed", "path", path, "error", err)
	}
}
