package main

import (
	"fmt"

	"github.com/nvandessel/nodenet/internal/logging"
	"github.com/nvandessel/nodenet/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve nodenet tools over MCP on stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout.

Clients can create nodenets, add and link nodes, step them, export
snapshots and render nodespaces. Every mutation is written through to
the store under the data directory, and each tool call is recorded in
<data_dir>/audit.jsonl.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// stdout carries the protocol, so logs go to stderr.
			logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())

			server, err := mcp.NewServer(&mcp.Config{
				Name:            "nodenet",
				Version:         version,
				DataDir:         cfg.Storage.DataDir,
				NativeModuleDir: cfg.NativeModules.Dir,
				Logger:          logger,
			})
			if err != nil {
				return fmt.Errorf("failed to start MCP server: %w", err)
			}
			return server.Run(cmd.Context())
		},
	}
}
