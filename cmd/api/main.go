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

	"github.com/geocoder89/scribe/internal/auth"
	"github.com/geocoder89/scribe/internal/autosave"
	"github.com/geocoder89/scribe/internal/config"
	"github.com/geocoder89/scribe/internal/db"
	httpx "github.com/geocoder89/scribe/internal/http"
	"github.com/geocoder89/scribe/internal/http/handlers"
	"github.com/geocoder89/scribe/internal/http/middlewares"
	"github.com/geocoder89/scribe/internal/notifications"
	"github.com/geocoder89/scribe/internal/observability"
	"github.com/geocoder89/scribe/internal/redisclient"
	"github.com/geocoder89/scribe/internal/repo/memory"
	"github.com/geocoder89/scribe/internal/repo/postgres"
	"github.com/geocoder89/scribe/internal/security"
	"github.com/geocoder89/scribe/internal/service/accounts"
	"github.com/geocoder89/scribe/internal/service/documents"
	"github.com/geocoder89/scribe/internal/service/verification"
	"github.com/geocoder89/scribe/internal/sweeper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// userStore is what every user-facing service needs from storage. Both the
// postgres and in-memory repos satisfy it.
type userStore interface {
	accounts.Store
	verification.Store
	sweeper.Store
}

type stores struct {
	users userStore
	docs  documents.Store
	close func()
}

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

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = shutdownTracer(tctx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	st, err := openStores(ctx, cfg, prom, log)
	if err != nil {
		return err
	}
	defer st.close()

	sessions := auth.NewManager(cfg.Session.Secret, cfg.Session.TTL)
	accts := accounts.New(st.users, security.Bcrypt{}, sessions, log)
	docs := documents.New(st.docs, log)

	verify := verification.New(st.users, newNotifier(cfg, log), prom, log, verification.Config{TTL: cfg.Verify.TTL})

	coordinator := autosave.New(docs, autosave.Config{
		Window:      cfg.Autosave.Window,
		IdleTimeout: cfg.Autosave.IdleTimeout,
	}, prom, log)

	checks := map[string]handlers.Pinger{"storage": st.users.Ping}

	var limitStore middlewares.LimitStore = middlewares.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		rdb := redisclient.New(redisclient.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		limitStore = middlewares.NewRedisStore(rdb.Raw())
		checks["redis"] = rdb.Ping
		log.Info("rate limits backed by redis", "addr", cfg.Redis.Addr)
	}

	seedCtx, cancelSeed := config.WithTimeout(10 * time.Second)
	err = db.EnsureSeedUser(seedCtx, accts, log, cfg.SeedEmail, cfg.SeedPassword)
	cancelSeed()
	if err != nil {
		return fmt.Errorf("seed user: %w", err)
	}

	router := httpx.NewRouter(httpx.Deps{
		Log:          log,
		Env:          cfg.Env,
		Prom:         prom,
		Metrics:      reg,
		Sessions:     sessions,
		SessionTTL:   cfg.Session.TTL,
		CookieName:   cfg.Session.Cookie,
		Accounts:     accts,
		Verification: verify,
		Documents:    docs,
		Autosave:     coordinator,
		Checks:       checks,
		Limits: httpx.Limits{
			Store:            limitStore,
			AuthPerMinute:    cfg.Limits.AuthPerMinute,
			PrivatePerMinute: cfg.Limits.PrivatePerMinute,
			CodesPerMinute:   cfg.Limits.CodesPerMinute,
		},
		CORSOrigins:  cfg.CORSOrigins,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	// Memory storage lives in this process, so nobody else can sweep it.
	if cfg.Storage == "memory" {
		sw := sweeper.New(sweeper.Config{
			Interval:  cfg.Sweeper.Interval,
			Retention: cfg.Sweeper.Retention,
		}, st.users, prom, log)
		g.Go(func() error { return sw.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("server shutting down")

		sctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		// Buffered edits are flushed after the listener stops taking new ones.
		if err := coordinator.Shutdown(sctx); err != nil {
			log.Error("autosave flush on shutdown failed", "err", err)
		}

		verify.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("shutdown complete")
	return nil
}

func openStores(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger) (stores, error) {
	if cfg.Storage == "memory" {
		log.Warn("using in-memory storage, data is lost on restart")
		return stores{
			users: memory.NewUsersRepo(),
			docs:  memory.NewDocumentsRepo(),
			close: func() {},
		}, nil
	}

	pool, err := db.NewPool(cfg.DBURL, cfg.DB.MaxConns)
	if err != nil {
		return stores{}, fmt.Errorf("db connect: %w", err)
	}

	mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.Migrate(mctx, pool); err != nil {
		pool.Close()
		return stores{}, fmt.Errorf("migrate: %w", err)
	}

	return stores{
		users: postgres.NewUsersRepo(pool, prom),
		docs:  postgres.NewDocumentsRepo(pool, prom),
		close: pool.Close,
	}, nil
}

func newNotifier(cfg config.Config, log *slog.Logger) notifications.Notifier {
	var inner notifications.Notifier = notifications.NewLogNotifier(log)

	if cfg.Mail.Host != "" {
		inner = notifications.NewSMTPNotifier(notifications.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
	}

	return notifications.NewProtectedNotifier(inner, notifications.ProtectedNotifierConfig{
		Timeout:          5 * time.Second,
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
	})
}
