package runner

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/entrhq/uiharness/pkg/logging"
	"github.com/entrhq/uiharness/pkg/report"
	"github.com/entrhq/uiharness/pkg/session"
)

// sweeper releases the sessions of workers that stopped taking scenarios and
// keeps the login counts of the managers it releases, so the per-worker
// totals survive the release.
type sweeper struct {
	pool *session.Pool
	idle time.Duration
	log  *logging.Logger

	mu    sync.Mutex
	stats map[string]report.WorkerStat
}

func newSweeper(pool *session.Pool, idle time.Duration, log *logging.Logger) *sweeper {
	return &sweeper{
		pool:  pool,
		idle:  idle,
		log:   log,
		stats: make(map[string]report.WorkerStat),
	}
}

// run sweeps twice per idle period until ctx is done.
func (s *sweeper) run(ctx context.Context) {
	interval := s.idle / 2
	if interval <= 0 {
		interval = s.idle
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *sweeper) sweep() {
	released, err := s.pool.ReleaseIdle(s.idle)
	if err != nil {
		s.log.Warnf("failed to release idle sessions: %v", err)
	}
	if len(released) == 0 {
		return
	}

	s.mu.Lock()
	for _, info := range released {
		st := s.stats[info.WorkerID]
		st.WorkerID = info.WorkerID
		st.Logins += info.Establishments
		st.IdleReleases++
		s.stats[info.WorkerID] = st
	}
	s.mu.Unlock()

	for _, info := range released {
		s.log.Infof("released idle session of %s after %d logins", info.WorkerID, info.Establishments)
	}
}

// finish adds the managers the pool still holds and returns the totals
// ordered by worker id. Call it after the workers have stopped.
func (s *sweeper) finish() []report.WorkerStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, info := range s.pool.Workers() {
		st := s.stats[info.WorkerID]
		st.WorkerID = info.WorkerID
		st.Logins += info.Establishments
		s.stats[info.WorkerID] = st
	}

	out := make([]report.WorkerStat, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].WorkerID < out[j].WorkerID
	})
	return out
}
