package cmd

import (
	"encoding/json"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/feedsync/internal/database"
	"github.com/bryan-buckman/feedsync/internal/opml"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Runs database migrations on the configured database. Will create the database if it does not exist.`,
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			log.WithField("driver", cfg.Database.Driver).Info("Migrating database")
			return database.Migrate(cfg.Database.Driver, cfg.Database.DSN)
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:        "rollback",
		Usage:       "Rollback database migration",
		Description: `Rolls back the last database migration`,
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			log.WithField("driver", cfg.Database.Driver).Info("Rolling back last migration")
			return database.Rollback(cfg.Database.Driver, cfg.Database.DSN)
		},
	}
}

func refreshCmd() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Run one refresh cycle and print its summary",
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			defer rt.store.Close()

			sum, err := rt.refresher.Refresh(c.Context)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}
}

func importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Subscribe to the feeds of an OPML file",
		ArgsUsage: "<file.opml>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("expected exactly one OPML file", 2)
			}
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			defer rt.store.Close()

			f, err := os.Open(c.Args().First())
			if err != nil {
				return err
			}
			defer f.Close()

			subs, err := opml.Parse(f)
			if err != nil {
				return err
			}
			_, err = opml.Import(c.Context, rt.store, subs)
			return err
		},
	}
}

func exportCmd() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write every feed as OPML to stdout",
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			defer rt.store.Close()
			return opml.Export(c.Context, rt.store, os.Stdout)
		},
	}
}
