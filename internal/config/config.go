package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Channel names match the lookup engine's channels.
const (
	ChannelMetadata = "metadata"
	ChannelCoverArt = "coverart"
	ChannelWiki     = "wiki"
)

// Config holds the base server configuration.
type Config struct {
	Host                    string `env:"HOST" envDefault:"0.0.0.0"`
	Port                    string `env:"PORT" envDefault:"9010"`
	SQLiteDBPath            string `env:"SQLITE_DB_PATH" envDefault:"./data/metalookup.db"`
	AppEnv                  string `env:"APP_ENV" envDefault:"development"`
	AllowTestMode           bool   `env:"ALLOW_TEST_MODE" envDefault:"false"`
	JWTSecret               string `env:"JWT_SECRET"`
	JWTAccessTokenExpirySec int    `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"3600"`
	LogLevel                string `env:"LOG_LEVEL" envDefault:"info"`

	// Outbound lookups. MusicBrainz asks clients to identify themselves and to stay
	// at or below one request per second.
	LookupUserAgent          string `env:"LOOKUP_USER_AGENT" envDefault:"metalookup-go/1.0 ( https://github.com/strefethen/metalookup-go )"`
	MusicBrainzAPIURL        string `env:"MUSICBRAINZ_API_URL" envDefault:"https://musicbrainz.org/ws/2/"`
	MusicBrainzMinIntervalMs int    `env:"MUSICBRAINZ_MIN_INTERVAL_MS" envDefault:"1000"`
	CoverArtAPIURL           string `env:"COVERART_API_URL" envDefault:"https://coverartarchive.org/"`
	CoverArtMinIntervalMs    int    `env:"COVERART_MIN_INTERVAL_MS" envDefault:"0"`
	WikipediaAPIURL          string `env:"WIKIPEDIA_API_URL" envDefault:"https://en.wikipedia.org/api/rest_v1/"`
	WikipediaMinIntervalMs   int    `env:"WIKIPEDIA_MIN_INTERVAL_MS" envDefault:"0"`
	LookupTimeoutMs          int    `env:"LOOKUP_TIMEOUT_MS" envDefault:"15000"`
	LookupCacheTTLSeconds    int    `env:"LOOKUP_CACHE_TTL_SECONDS" envDefault:"3600"`
	SearchLimit              int    `env:"LOOKUP_SEARCH_LIMIT" envDefault:"25"`
	ChannelsFile             string `env:"LOOKUP_CHANNELS_FILE"`

	// Response cache tiers
	CacheMaxEntries    int    `env:"CACHE_MAX_ENTRIES" envDefault:"5000"`
	CachePersistent    bool   `env:"CACHE_PERSISTENT" envDefault:"true"`
	CachePruneSchedule string `env:"CACHE_PRUNE_SCHEDULE" envDefault:"@every 15m"`

	AutotagConcurrency int `env:"AUTOTAG_CONCURRENCY" envDefault:"4"`

	// channels is derived from the settings above plus the optional channels file.
	channels []ChannelSettings
}

// ChannelSettings configures one lookup channel.
type ChannelSettings struct {
	Name            string
	BaseURL         string
	MinIntervalMs   int
	TimeoutMs       int
	CacheTTLSeconds int
}

// channelOverlay is one entry of the channels file. Unset fields keep the env value.
type channelOverlay struct {
	BaseURL         *string `yaml:"base_url"`
	MinIntervalMs   *int    `yaml:"min_interval_ms"`
	TimeoutMs       *int    `yaml:"timeout_ms"`
	CacheTTLSeconds *int    `yaml:"cache_ttl_seconds"`
}

type channelsFile struct {
	Channels map[string]channelOverlay `yaml:"channels"`
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if len(strings.TrimSpace(cfg.JWTSecret)) < 32 {
		return Config{}, errors.New("JWT_SECRET must be at least 32 characters")
	}
	if cfg.AutotagConcurrency < 1 {
		return Config{}, errors.New("AUTOTAG_CONCURRENCY must be at least 1")
	}

	cfg.channels = cfg.defaultChannels()
	if cfg.ChannelsFile != "" {
		if err := cfg.applyChannelsFile(cfg.ChannelsFile); err != nil {
			return Config{}, err
		}
	}
	for _, ch := range cfg.channels {
		if ch.BaseURL == "" {
			return Config{}, fmt.Errorf("channel %s has no base URL", ch.Name)
		}
		if ch.MinIntervalMs < 0 || ch.TimeoutMs < 0 || ch.CacheTTLSeconds < 0 {
			return Config{}, fmt.Errorf("channel %s has negative settings", ch.Name)
		}
	}
	return cfg, nil
}

// Channels returns the settings of every lookup channel.
func (c Config) Channels() []ChannelSettings {
	if c.channels == nil {
		return c.defaultChannels()
	}
	return append([]ChannelSettings(nil), c.channels...)
}

// Channel returns the settings of the named channel.
func (c Config) Channel(name string) (ChannelSettings, bool) {
	for _, ch := range c.Channels() {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChannelSettings{}, false
}

func (c Config) defaultChannels() []ChannelSettings {
	return []ChannelSettings{
		{
			Name:            ChannelMetadata,
			BaseURL:         c.MusicBrainzAPIURL,
			MinIntervalMs:   c.MusicBrainzMinIntervalMs,
			TimeoutMs:       c.LookupTimeoutMs,
			CacheTTLSeconds: c.LookupCacheTTLSeconds,
		},
		{
			Name:            ChannelCoverArt,
			BaseURL:         c.CoverArtAPIURL,
			MinIntervalMs:   c.CoverArtMinIntervalMs,
			TimeoutMs:       c.LookupTimeoutMs,
			CacheTTLSeconds: c.LookupCacheTTLSeconds,
		},
		{
			Name:            ChannelWiki,
			BaseURL:         c.WikipediaAPIURL,
			MinIntervalMs:   c.WikipediaMinIntervalMs,
			TimeoutMs:       c.LookupTimeoutMs,
			CacheTTLSeconds: c.LookupCacheTTLSeconds,
		},
	}
}

func (c *Config) applyChannelsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read channels file: %w", err)
	}

	var file channelsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse channels file: %w", err)
	}

	for name, overlay := range file.Channels {
		idx := -1
		for i, ch := range c.channels {
			if ch.Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("channels file: unknown channel %q", name)
		}

		ch := &c.channels[idx]
		if overlay.BaseURL != nil {
			ch.BaseURL = *overlay.BaseURL
		}
		if overlay.MinIntervalMs != nil {
			ch.MinIntervalMs = *overlay.MinIntervalMs
		}
		if overlay.TimeoutMs != nil {
			ch.TimeoutMs = *overlay.TimeoutMs
		}
		if overlay.CacheTTLSeconds != nil {
			ch.CacheTTLSeconds = *overlay.CacheTTLSeconds
		}
	}
	return nil
}
