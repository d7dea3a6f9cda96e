package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/aerodash/aeroingest/internal/cache"
	"github.com/aerodash/aeroingest/internal/config"
	"github.com/aerodash/aeroingest/internal/fetcher"
	"github.com/aerodash/aeroingest/internal/gate"
	"github.com/aerodash/aeroingest/internal/pipeline"
	"github.com/aerodash/aeroingest/internal/scheduler"
	"github.com/aerodash/aeroingest/internal/server"
	"github.com/aerodash/aeroingest/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	st, closeStore, err := openStore(cfg.Database)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	g := gate.New(cfg.Gate.Window, cfg.Gate.MaxRequests, cfg.Gate.MinInterval)
	c := cache.New(cfg.Cache.TTL)
	f := fetcher.New(cfg, g, c)
	p := pipeline.New(cfg.Fetch, f, st)

	// Run pipeline once immediately on startup
	slog.Info("running initial pipeline")
	if _, err := p.Run(context.Background()); err != nil {
		slog.Error("initial pipeline run failed", "error", err)
		// Non-fatal: the server still serves stored rows
	}
	if cfg.Schedule.RunOnce {
		return
	}

	// Start scheduler
	sched := scheduler.New(p, cfg.Schedule.Interval)
	go sched.Start(context.Background())

	srv := server.New(cfg.HTTP, p, st)
	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Minute, // POST /api/refresh runs the whole pipeline
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.HTTP.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}

func newLogger(cfg config.Log) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// openStore returns the configured store and a function releasing it.
func openStore(cfg config.Database) (store.Store, func(), error) {
	if cfg.Driver == "memory" {
		slog.Warn("using in-memory store; rows are lost on exit")
		return store.NewMemory(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	pg := store.NewPostgres(db)
	if err := pg.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return pg, func() { db.Close() }, nil
}
