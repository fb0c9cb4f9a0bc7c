package config

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/seantiz/vantage/internal/cache"
	"github.com/seantiz/vantage/internal/executor"
	"github.com/seantiz/vantage/internal/upstream/httpapi"
)

const envPrefix = "VANTAGE_"

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	DBPath     string `env:"DB_PATH" envDefault:"vantage.db"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	ExecutorThreads   int           `env:"EXECUTOR_THREADS" envDefault:"32"`
	ExecutorRetention time.Duration `env:"EXECUTOR_RETENTION" envDefault:"10m"`

	CacheMaxEntries int           `env:"CACHE_MAX_ENTRIES" envDefault:"1000"`
	CacheWriteTTL   time.Duration `env:"CACHE_WRITE_TTL" envDefault:"10m"`
	CacheAccessTTL  time.Duration `env:"CACHE_ACCESS_TTL" envDefault:"10m"`

	CompositeFailFast bool          `env:"COMPOSITE_FAIL_FAST" envDefault:"true"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// Datasources maps datasource names to monitoring API base URLs,
	// written as name=url pairs separated by commas.
	Datasources      map[string]string `env:"DATASOURCES" envSeparator:"," envKeyValSeparator:"="`
	DatasourceTokens map[string]string `env:"DATASOURCE_TOKENS" envSeparator:"," envKeyValSeparator:"="`

	UpstreamRPS        float64       `env:"UPSTREAM_RPS" envDefault:"20"`
	UpstreamBurst      int           `env:"UPSTREAM_BURST" envDefault:"40"`
	UpstreamTimeout    time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`
	UpstreamMaxRetries uint          `env:"UPSTREAM_MAX_RETRIES" envDefault:"3"`

	// UpstreamMaxAccounts bounds the per-account rate limiters of each
	// datasource. Idle limiters are dropped after ExecutorRetention.
	UpstreamMaxAccounts int `env:"UPSTREAM_MAX_ACCOUNTS" envDefault:"10000"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	for name := range cfg.DatasourceTokens {
		if _, ok := cfg.Datasources[name]; !ok {
			return Config{}, fmt.Errorf("token configured for unknown datasource %q", name)
		}
	}
	return cfg, nil
}

// Level returns the configured log level. Unknown values fall back to info.
func (c Config) Level() slog.Level {
	return parseLogLevel(c.LogLevel)
}

// Executor returns the executor registry configuration.
func (c Config) Executor() executor.Config {
	return executor.Config{Threads: c.ExecutorThreads, Retention: c.ExecutorRetention}
}

// Cache returns the result cache configuration.
func (c Config) Cache() cache.Config {
	return cache.Config{
		MaxEntries: c.CacheMaxEntries,
		WriteTTL:   c.CacheWriteTTL,
		AccessTTL:  c.CacheAccessTTL,
	}
}

// Upstreams returns one client configuration per datasource, sorted by name.
func (c Config) Upstreams() []httpapi.Config {
	names := make([]string, 0, len(c.Datasources))
	for name := range c.Datasources {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]httpapi.Config, 0, len(names))
	for _, name := range names {
		out = append(out, httpapi.Config{
			Name:        name,
			BaseURL:     c.Datasources[name],
			Token:       c.DatasourceTokens[name],
			RPS:         c.UpstreamRPS,
			Burst:       c.UpstreamBurst,
			Timeout:     c.UpstreamTimeout,
			MaxRetries:  c.UpstreamMaxRetries,
			MaxAccounts: c.UpstreamMaxAccounts,
			AccountIdle: c.ExecutorRetention,
		})
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
