/*
This command runs a switch node taking part in the bloom filter gossip of
its group.

For the list of command line options, run:

	bfgossipd -help

Options can also be given as a yaml file with -config-file, explicitly
given flags override the values of the file.
*/
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/lcswitch/bfgossip"
	"github.com/lcswitch/bfgossip/config"
)

var (
	version string
	commit  string
)

func run(args []string) error {
	cfg := config.NewConfig()
	if err := cfg.ParseArgs(args[0], args[1:]); err != nil {
		return fmt.Errorf("error processing config: %w", err)
	}

	if cfg.PrintVersion {
		fmt.Printf("bfgossipd version %s (commit: %s)\n", version, commit)
		return nil
	}

	log.SetLevel(cfg.ApplicationLogLevel)
	return bfgossip.Run(cfg.ToOptions())
}

func main() {
	if err := run(os.Args); err != nil {
		log.Fatal(err)
	}
}
