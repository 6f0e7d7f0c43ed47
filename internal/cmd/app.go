// Package cmd wires the feedsync command line.
package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/feedsync/internal/config"
	"github.com/bryan-buckman/feedsync/internal/database"
	"github.com/bryan-buckman/feedsync/internal/refresh"
	"github.com/bryan-buckman/feedsync/internal/rss"
)

// App returns the root command.
func App() *cli.App {
	return &cli.App{
		Name:  "feedsync",
		Usage: "Synchronise RSS and Atom feeds and serve them over a JSON API",
		Description: `feedsync keeps a store of feeds, tags and ingested entries.

		Flags can generally be set via environment variables, e.g.:

		--dsn => FEEDSYNC_DSN=feedsync.db
		--addr => FEEDSYNC_ADDR=:8080

		Values from --config are applied first; explicit flags win.`,
		Flags: globalFlags(),
		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return cfg.ConfigureLogging()
		},
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			refreshCmd(),
			importCmd(),
			exportCmd(),
		},
		Action: func(c *cli.Context) error {
			return cli.ShowAppHelp(c)
		},
	}
}

func globalFlags() []cli.Flag {
	def := config.Default()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to a TOML config file",
			EnvVars: []string{"FEEDSYNC_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "addr",
			Usage:   "HTTP listen address",
			EnvVars: []string{"FEEDSYNC_ADDR"},
			Value:   def.Addr,
		},
		&cli.StringFlag{
			Name:    "driver",
			Usage:   "Database driver (sqlite or postgres)",
			EnvVars: []string{"FEEDSYNC_DRIVER"},
			Value:   def.Database.Driver,
		},
		&cli.StringFlag{
			Name:    "dsn",
			Usage:   "SQLite file path or PostgreSQL connection string",
			EnvVars: []string{"FEEDSYNC_DSN"},
			Value:   def.Database.DSN,
		},
		&cli.DurationFlag{
			Name:    "interval",
			Usage:   "Background refresh interval, 0 disables it",
			EnvVars: []string{"FEEDSYNC_INTERVAL"},
			Value:   def.Refresh.Interval,
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "Timeout of a single feed fetch",
			EnvVars: []string{"FEEDSYNC_TIMEOUT"},
			Value:   def.Refresh.Timeout,
		},
		&cli.IntFlag{
			Name:    "retries",
			Usage:   "Retries of a feed fetch on transport errors",
			EnvVars: []string{"FEEDSYNC_RETRIES"},
			Value:   def.Refresh.Retries,
		},
		&cli.StringFlag{
			Name:    "user-agent",
			Usage:   "User-Agent sent when fetching feeds",
			EnvVars: []string{"FEEDSYNC_USER_AGENT"},
			Value:   def.Refresh.UserAgent,
		},
		&cli.DurationFlag{
			Name:    "host-delay",
			Usage:   "Minimum delay between requests to one host",
			EnvVars: []string{"FEEDSYNC_HOST_DELAY"},
			Value:   def.Refresh.HostDelay,
		},
		&cli.BoolFlag{
			Name:    "sanitize",
			Usage:   "Sanitise HTML of ingested entries",
			EnvVars: []string{"FEEDSYNC_SANITIZE"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			EnvVars: []string{"FEEDSYNC_LOG_LEVEL"},
			Value:   def.Log.Level,
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text or json)",
			EnvVars: []string{"FEEDSYNC_LOG_FORMAT"},
			Value:   def.Log.Format,
		},
	}
}

// loadConfig builds the effective settings: defaults, then the config file,
// then every flag the user set explicitly.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if c.IsSet("addr") {
		cfg.Addr = c.String("addr")
	}
	if c.IsSet("driver") {
		cfg.Database.Driver = c.String("driver")
	}
	if c.IsSet("dsn") {
		cfg.Database.DSN = c.String("dsn")
	}
	if c.IsSet("interval") {
		cfg.Refresh.Interval = c.Duration("interval")
	}
	if c.IsSet("timeout") {
		cfg.Refresh.Timeout = c.Duration("timeout")
	}
	if c.IsSet("retries") {
		cfg.Refresh.Retries = c.Int("retries")
	}
	if c.IsSet("user-agent") {
		cfg.Refresh.UserAgent = c.String("user-agent")
	}
	if c.IsSet("host-delay") {
		cfg.Refresh.HostDelay = c.Duration("host-delay")
	}
	if c.IsSet("sanitize") {
		cfg.Refresh.Sanitize = c.Bool("sanitize")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runtime holds the long-lived components shared by commands.
type runtime struct {
	cfg       config.Config
	store     database.Store
	registry  *prometheus.Registry
	refresher *refresh.Refresher
}

func newRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	store, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := refresh.NewMetrics(reg)
	engine := refresh.NewEngine(store, rss.NewFetcher(cfg.FetchOptions()), metrics)

	return &runtime{
		cfg:       cfg,
		store:     store,
		registry:  reg,
		refresher: refresh.NewRefresher(&refresh.Gate{}, engine, metrics),
	}, nil
}
