// Package config holds runtime settings, loaded from an optional TOML file
// on top of built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/feedsync/internal/database"
	"github.com/bryan-buckman/feedsync/internal/rss"
)

// Config is the full set of settings.
type Config struct {
	Addr     string   `toml:"addr"`
	Database Database `toml:"database"`
	Refresh  Refresh  `toml:"refresh"`
	Log      Log      `toml:"log"`
}

// Database selects the storage backend.
type Database struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// Refresh tunes the sync engine and its fetcher. An Interval of zero
// disables background polling.
type Refresh struct {
	Interval  time.Duration `toml:"interval"`
	Timeout   time.Duration `toml:"timeout"`
	Retries   int           `toml:"retries"`
	UserAgent string        `toml:"user_agent"`
	HostDelay time.Duration `toml:"host_delay"`
	Sanitize  bool          `toml:"sanitize"`
}

// Log configures the process logger.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in settings.
func Default() Config {
	fetch := rss.DefaultOptions()
	return Config{
		Addr: ":8080",
		Database: Database{
			Driver: database.DriverSQLite,
			DSN:    "feedsync.db",
		},
		Refresh: Refresh{
			Interval:  10 * time.Minute,
			Timeout:   fetch.Timeout,
			Retries:   fetch.Retries,
			UserAgent: fetch.UserAgent,
			HostDelay: fetch.HostDelay,
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Load reads the TOML file at path onto the defaults. Unknown keys are
// rejected so typos do not pass silently.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("error parsing config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return cfg, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Validate checks values that defaults cannot guarantee.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case database.DriverSQLite, database.DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is empty")
	}
	if c.Refresh.Interval < 0 {
		return fmt.Errorf("refresh interval must not be negative")
	}
	if c.Refresh.Retries < 0 {
		return fmt.Errorf("refresh retries must not be negative")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}
	return nil
}

// FetchOptions returns the fetcher settings.
func (c Config) FetchOptions() rss.Options {
	return rss.Options{
		Timeout:   c.Refresh.Timeout,
		Retries:   c.Refresh.Retries,
		UserAgent: c.Refresh.UserAgent,
		HostDelay: c.Refresh.HostDelay,
		Sanitize:  c.Refresh.Sanitize,
	}
}

// ConfigureLogging applies the log settings to the standard logrus logger.
func (c Config) ConfigureLogging() error {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if c.Log.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
