package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/feedsync/internal/refresh"
	"github.com/bryan-buckman/feedsync/internal/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the JSON API and refresh feeds in the background",
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			defer rt.store.Close()

			poller := refresh.NewPoller(rt.refresher, rt.cfg.Refresh.Interval)
			srv := server.New(rt.store, rt.refresher, poller, rt.registry)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() { errc <- srv.Start(rt.cfg.Addr) }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			log.Info("Gracefully shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return <-errc
		},
	}
}
