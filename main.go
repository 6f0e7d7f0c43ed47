package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/feedsync/internal/cmd"
)

func main() {
	if err := cmd.App().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
