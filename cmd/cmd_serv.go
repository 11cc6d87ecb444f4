package main

import (
	"github.com/spf13/cobra"

	"github.com/eclipticdb/ecliptic/serv"
)

// servCmd is the cobra CLI command for the serve subcommand
func servCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"serv"},
		Short:   "Run the ecliptic service",
		Run:     cmdServ,
	}
}

func cmdServ(cmd *cobra.Command, args []string) {
	setup(cpath)

	s, err := serv.NewService(conf)
	if err != nil {
		log.Fatalf("failed to initialize: %s", err)
	}
	if err := s.Start(); err != nil {
		log.Fatalf("service stopped: %s", err)
	}
}
