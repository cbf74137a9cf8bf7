package observability

import (
	"sync/atomic"
	"time"
)

// SweepStats are process-local counters for the code sweeper, reported on
// its readiness endpoint.
type SweepStats struct {
	runs     atomic.Uint64
	failures atomic.Uint64
	deleted  atomic.Uint64

	lastRunUnixNano atomic.Int64
	maxDuration     atomic.Int64
}

func NewSweepStats() *SweepStats {
	return &SweepStats{}
}

func (s *SweepStats) ObserveRun(at time.Time, d time.Duration, deleted int64, err error) {
	s.runs.Add(1)
	s.lastRunUnixNano.Store(at.UnixNano())

	if err != nil {
		s.failures.Add(1)
	} else if deleted > 0 {
		s.deleted.Add(uint64(deleted))
	}

	ns := d.Nanoseconds()
	for {
		curr := s.maxDuration.Load()

		if ns <= curr {
			return
		}

		if s.maxDuration.CompareAndSwap(curr, ns) {
			return
		}
	}
}

type SweepSnapshot struct {
	Runs        uint64        `json:"runs"`
	Failures    uint64        `json:"failures"`
	Deleted     uint64        `json:"deleted"`
	LastRun     time.Time     `json:"lastRun"`
	MaxDuration time.Duration `json:"maxDurationNs"`
}

func (s *SweepStats) Snapshot() SweepSnapshot {
	var last time.Time
	if ns := s.lastRunUnixNano.Load(); ns > 0 {
		last = time.Unix(0, ns).UTC()
	}

	return SweepSnapshot{
		Runs:        s.runs.Load(),
		Failures:    s.failures.Load(),
		Deleted:     s.deleted.Load(),
		LastRun:     last,
		MaxDuration: time.Duration(s.maxDuration.Load()),
	}
}
