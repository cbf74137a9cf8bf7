package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/scribe/internal/config"
	"github.com/geocoder89/scribe/internal/db"
	"github.com/geocoder89/scribe/internal/observability"
	"github.com/geocoder89/scribe/internal/repo/postgres"
	"github.com/geocoder89/scribe/internal/sweeper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := observability.NewLogger(cfg.Env).With("component", "sweeper")
	slog.SetDefault(log)

	if cfg.Storage == "memory" {
		return errors.New("sweeper needs postgres storage; the api sweeps in-memory codes itself")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(cfg.DBURL, cfg.DB.MaxConns)
	if err != nil {
		return fmt.Errorf("db connect failed: %w", err)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)
	users := postgres.NewUsersRepo(pool, prom)

	sw := sweeper.New(sweeper.Config{
		Interval:  cfg.Sweeper.Interval,
		Retention: cfg.Sweeper.Retention,
	}, users, prom, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", sw.HealthHandler())

	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Sweeper.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("sweeper health server starting", "port", cfg.Sweeper.Port)
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("sweeper has started", "interval", cfg.Sweeper.Interval, "retention", cfg.Sweeper.Retention)
		return sw.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		return healthSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("sweeper stopped with error", "err", err)
		return err
	}

	log.Info("sweeper shutdown complete")
	return nil
}
