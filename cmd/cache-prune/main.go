// Command cache-prune removes expired lookup responses from the sqlite cache and
// reports how many remain per channel.
//
// Usage:
//
//	go run ./cmd/cache-prune
//
// It reads SQLITE_DB_PATH like the server does and is safe to run while the server
// is up; the cache database is in WAL mode.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-hclog"
	_ "github.com/mattn/go-sqlite3"

	"github.com/strefethen/metalookup-go/internal/db"
	"github.com/strefethen/metalookup-go/internal/lookup"
)

type pruneConfig struct {
	SQLiteDBPath string `env:"SQLITE_DB_PATH" envDefault:"./data/metalookup.db"`
}

func main() {
	logger := hclog.New(&hclog.LoggerOptions{Name: "cache-prune", Level: hclog.Info})

	cfg, err := env.ParseAs[pruneConfig]()
	if err != nil {
		logger.Error("config error", "error", err)
		os.Exit(1)
	}
	if err := run(cfg, time.Now(), logger); err != nil {
		logger.Error("prune failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg pruneConfig, now time.Time, logger hclog.Logger) error {
	logger.Info("opening database", "path", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer dbPair.Close()

	store := lookup.NewCacheStore(dbPair, logger)
	removed, err := store.PruneExpired(now)
	if err != nil {
		return err
	}
	logger.Info("removed expired entries", "count", removed)

	for _, channel := range []string{lookup.ChannelMetadata, lookup.ChannelCoverArt, lookup.ChannelWiki} {
		count, err := store.Count(channel)
		if err != nil {
			return fmt.Errorf("count %s entries: %w", channel, err)
		}
		logger.Info("cached responses", "channel", channel, "count", count)
	}
	return nil
}
