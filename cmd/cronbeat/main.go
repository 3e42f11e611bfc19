package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"cronbeat/internal/admin"
	"cronbeat/internal/api"
	"cronbeat/internal/beat"
	"cronbeat/internal/config"
	"cronbeat/internal/dispatch"
	"cronbeat/internal/registry"
	"cronbeat/internal/store"
)

func main() {
	var (
		cfgPath  = flag.String("config", "", "YAML config file (optional)")
		addr     = flag.String("addr", "", "HTTP bind address (overrides config)")
		dbPath   = flag.String("db", "", "SQLite DB path (overrides config)")
		redisURL = flag.String("redis", "", "Redis broker URL (overrides config)")
		debug    = flag.Bool("debug", false, "enable pprof endpoints")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *redisURL != "" {
		cfg.RedisURL = *redisURL
	}
	if *debug {
		cfg.Debug = true
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	repo := store.NewSQLiteRepo(db)

	broker, err := dispatch.NewRedisBroker(cfg.RedisURL, cfg.DefaultQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("connect broker")
	}
	defer broker.Close()

	// Tasks workers are known to handle. Creating a periodic task with a
	// path outside this list logs a warning but is not rejected.
	reg := registry.New()
	reg.Register("tasks.cleanup_expired_tokens", "Remove expired auth tokens")
	reg.Register("tasks.process_user_data", "Process queued user data batches")
	reg.Register("tasks.generate_daily_report", "Build and store the daily report")
	reg.Register("tasks.send_notification_emails", "Flush the notification email queue")
	reg.Register("tasks.backup_database", "Snapshot the database to backup storage")

	ctx, cancel := context.WithCancel(context.Background())
	svc := beat.New(repo, broker, beat.Options{
		RefreshEvery:    cfg.Beat.RefreshEvery.Std(),
		MinTick:         cfg.Beat.MinTick.Std(),
		DispatchTimeout: cfg.Beat.DispatchTimeout.Std(),
	})
	go svc.Run(ctx)

	adminSvc := admin.NewService(repo, broker, reg)
	srv := &http.Server{Addr: cfg.Addr, Handler: api.NewServerWithDebug(adminSvc, cfg.Debug)}
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
