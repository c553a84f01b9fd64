package system

import (
	"database/sql"
	"runtime"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/strefethen/metalookup-go/internal/autotag"
	"github.com/strefethen/metalookup-go/internal/lookup"
)

// Version is the service version, set at build time or defaulted.
var Version = "1.0.0"

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// ChannelStatsProvider reports lookup queue state.
type ChannelStatsProvider interface {
	Stats() []lookup.ChannelStats
}

// CacheCounter counts persisted responses per channel.
type CacheCounter interface {
	Count(channel string) (int, error)
}

// PruneStatsProvider reports cache expiry progress.
type PruneStatsProvider interface {
	Stats() lookup.PruneStats
}

// JobLister lists retained auto-tag jobs.
type JobLister interface {
	List() []autotag.Job
}

// Deps holds the optional sources of system information.
type Deps struct {
	Channels ChannelStatsProvider
	Cache    CacheCounter
	Pruner   PruneStatsProvider
	Jobs     JobLister
}

// Service provides system information.
// Uses reader connection only as this service only performs SELECT queries.
type Service struct {
	reader    *sql.DB
	deps      Deps
	logger    hclog.Logger
	startTime time.Time
}

// NewService creates a new system service.
func NewService(dbPair DBPair, deps Deps, logger hclog.Logger) *Service {
	if logger == nil {
		logger = hclog.Default()
	}
	return &Service{
		reader:    dbPair.Reader(),
		deps:      deps,
		logger:    logger.Named("system"),
		startTime: time.Now(),
	}
}

// ChannelInfo is a channel's queue state plus its persisted cache size.
type ChannelInfo struct {
	lookup.ChannelStats
	CachedResponses int `json:"cached_responses"`
}

// AttentionItem represents something an operator should look at.
type AttentionItem struct {
	Type     string         `json:"type"`
	Severity string         `json:"severity"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// SystemInfo holds system information.
type SystemInfo struct {
	Version         string             `json:"version"`
	Uptime          int64              `json:"uptime_seconds"`
	MemoryUsageMB   float64            `json:"memory_mb"`
	SQLiteConnected bool               `json:"sqlite_connected"`
	Channels        []ChannelInfo      `json:"channels"`
	CachePruner     *lookup.PruneStats `json:"cache_pruner,omitempty"`
	AutotagRunning  int                `json:"autotag_running"`
	AutotagRetained int                `json:"autotag_retained"`
	AttentionItems  []AttentionItem    `json:"attention_items"`
}

// GetSystemInfo returns current system information.
func (s *Service) GetSystemInfo() (*SystemInfo, error) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	info := &SystemInfo{
		Version:         Version,
		Uptime:          int64(time.Since(s.startTime).Seconds()),
		MemoryUsageMB:   float64(memStats.Alloc) / 1024 / 1024,
		SQLiteConnected: s.reader.Ping() == nil,
		Channels:        []ChannelInfo{},
		AttentionItems:  []AttentionItem{},
	}

	if !info.SQLiteConnected {
		info.AttentionItems = append(info.AttentionItems, AttentionItem{
			Type:     "sqlite_unavailable",
			Severity: "error",
			Message:  "The response cache database is not reachable",
		})
	}

	if s.deps.Channels != nil {
		for _, stats := range s.deps.Channels.Stats() {
			channel := ChannelInfo{ChannelStats: stats}
			if s.deps.Cache != nil && info.SQLiteConnected {
				count, err := s.deps.Cache.Count(stats.Name)
				if err != nil {
					s.logger.Warn("count cached responses failed", "channel", stats.Name, "error", err)
				}
				channel.CachedResponses = count
			}
			info.Channels = append(info.Channels, channel)

			if stats.Failures > 0 {
				info.AttentionItems = append(info.AttentionItems, AttentionItem{
					Type:     "lookup_failures",
					Severity: "warning",
					Message:  "Lookups on " + stats.Name + " have failed",
					Details:  map[string]any{"channel": stats.Name, "failures": stats.Failures},
				})
			}
		}
	}

	if s.deps.Pruner != nil {
		pruneStats := s.deps.Pruner.Stats()
		info.CachePruner = &pruneStats
		if !pruneStats.Healthy {
			info.AttentionItems = append(info.AttentionItems, AttentionItem{
				Type:     "cache_prune_failed",
				Severity: "warning",
				Message:  "The last cache expiry pass failed",
			})
		}
	}

	if s.deps.Jobs != nil {
		for _, job := range s.deps.Jobs.List() {
			info.AutotagRetained++
			if job.State == autotag.JobRunning {
				info.AutotagRunning++
			}
		}
	}

	return info, nil
}
