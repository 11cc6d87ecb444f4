package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eclipticdb/ecliptic/serv"
)

var mcpKey string

func mcpCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server in stdio mode (for Claude Desktop)",
		Long: `Run the ecliptic MCP server using stdio transport.

Designed for AI assistant integration. Communicates via stdin/stdout
using the MCP protocol. The key identifying the agent comes from,
in order of precedence:

  --key flag
  ECLIPTIC_MCP_KEY environment variable
  mcp.key config value`,
		Run: cmdMCP,
	}
	c.Flags().StringVar(&mcpKey, "key", "", "MCP key for the session")
	return c
}

func cmdMCP(cmd *cobra.Command, args []string) {
	setup(cpath)
	if mcpKey != "" {
		conf.MCP.Key = mcpKey
		os.Unsetenv("ECLIPTIC_MCP_KEY") //nolint:errcheck
	}

	s, err := serv.NewService(conf)
	if err != nil {
		log.Fatalf("failed to initialize: %s", err)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.RunMCPStdio(ctx); err != nil {
		log.Fatalf("mcp server stopped: %s", err)
	}
}
