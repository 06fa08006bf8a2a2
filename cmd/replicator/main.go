/*
This command runs the replicator in front of a primary application,
mirroring every request to a secondary destination.

For the list of command line options, run:

	replicator -help

Every option can be set in a yaml file passed with -config-file, flags
given on the command line take precedence over the file.
*/
package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/zalando/replicator"
	"github.com/zalando/replicator/config"
)

func main() {
	cfg := config.NewConfig()
	if err := cfg.Parse(); err != nil {
		log.Fatalf("Error processing config: %s", err)
	}

	log.SetLevel(cfg.ApplicationLogLevel)

	if err := replicator.Run(cfg.ToOptions()); err != nil {
		log.Fatal(err)
	}
}
