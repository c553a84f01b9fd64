package lookup

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
)

// DefaultPruneSchedule runs expiry every fifteen minutes.
const DefaultPruneSchedule = "@every 15m"

// Prunable is a cache tier that can drop expired entries.
type Prunable interface {
	PruneExpired(now time.Time) (int64, error)
}

// Pruner deletes expired cache entries on a cron schedule.
type Pruner struct {
	cron     *cron.Cron
	schedule string
	targets  []Prunable
	now      func() time.Time
	logger   hclog.Logger

	mu      sync.Mutex
	started bool
	pruned  int64
	lastRun time.Time
	lastErr error
}

// NewPruner creates a pruner for targets. An empty schedule uses DefaultPruneSchedule.
func NewPruner(schedule string, logger hclog.Logger, targets ...Prunable) *Pruner {
	if logger == nil {
		logger = hclog.Default()
	}
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	return &Pruner{
		cron:     cron.New(),
		schedule: schedule,
		targets:  targets,
		now:      time.Now,
		logger:   logger.Named("cache-pruner"),
	}
}

// Start runs one prune pass immediately and schedules the rest.
func (p *Pruner) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	if _, err := p.cron.AddFunc(p.schedule, func() { p.RunOnce() }); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", p.schedule, err)
	}
	p.RunOnce()
	p.cron.Start()
	p.logger.Info("cache pruner started", "schedule", p.schedule)
	return nil
}

// Stop stops the schedule and waits for a running pass to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return
	}
	<-p.cron.Stop().Done()
}

// RunOnce prunes every target and returns the number of entries removed.
func (p *Pruner) RunOnce() int64 {
	now := p.now()
	var removed int64
	var lastErr error
	for _, target := range p.targets {
		n, err := target.PruneExpired(now)
		if err != nil {
			p.logger.Warn("cache prune failed", "error", err)
			lastErr = err
			continue
		}
		removed += n
	}

	p.mu.Lock()
	p.pruned += removed
	p.lastRun = now
	p.lastErr = lastErr
	p.mu.Unlock()

	if removed > 0 {
		p.logger.Debug("pruned expired cache entries", "count", removed)
	}
	return removed
}

// PruneStats is the pruner's running total.
type PruneStats struct {
	Pruned  int64     `json:"pruned"`
	LastRun time.Time `json:"last_run"`
	Healthy bool      `json:"healthy"`
}

// Stats returns the pruner's counters.
func (p *Pruner) Stats() PruneStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PruneStats{Pruned: p.pruned, LastRun: p.lastRun, Healthy: p.lastErr == nil}
}
