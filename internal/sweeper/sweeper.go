// Package sweeper periodically deletes consumed and long-expired
// verification codes.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/scribe/internal/observability"
)

type Store interface {
	DeleteStaleCodes(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
}

type Config struct {
	Interval  time.Duration
	Retention time.Duration
}

type Sweeper struct {
	cfg   Config
	store Store
	log   *slog.Logger
	prom  *observability.Prom
	stats *observability.SweepStats
	now   func() time.Time

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, store Store, prom *observability.Prom, log *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Retention < 0 {
		cfg.Retention = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		cfg:   cfg,
		store: store,
		log:   log.With("component", "sweeper"),
		prom:  prom,
		stats: observability.NewSweepStats(),
		now:   time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.setReady(true)
	defer s.setReady(false)

	s.log.InfoContext(ctx, "sweeper started", "interval", s.cfg.Interval.String(), "retention", s.cfg.Retention.String())
	_, _ = s.SweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper received shutdown signal")
			return nil

		case <-ticker.C:
			_, _ = s.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes consumed codes and codes that expired before now minus
// the retention period.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	start := s.now()
	cutoff := start.Add(-s.cfg.Retention).UTC()

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := s.store.DeleteStaleCodes(runCtx, cutoff)
	s.stats.ObserveRun(start, s.now().Sub(start), n, err)

	if err != nil {
		s.log.ErrorContext(ctx, "sweep failed", "err", err)
		return 0, err
	}

	if s.prom != nil && n > 0 {
		s.prom.SweptCodes.Add(float64(n))
	}
	if n > 0 {
		s.log.InfoContext(ctx, "stale codes deleted", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func (s *Sweeper) Stats() observability.SweepSnapshot {
	return s.stats.Snapshot()
}

func (s *Sweeper) Ready() bool {
	s.readyMu.RLock()
	defer s.readyMu.RUnlock()
	return s.ready
}

func (s *Sweeper) setReady(v bool) {
	s.readyMu.Lock()
	s.ready = v
	s.readyMu.Unlock()
}
