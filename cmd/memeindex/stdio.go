package main

import (
	"github.com/spf13/cobra"
)

func stdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Start MCP server on stdio",
		Long: `Start the MCP (Model Context Protocol) server on stdio.

AI assistants can list memes by hype and search them by meaning. Logs are
written to stderr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, logger, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			return client.MCPServer().ServeStdio()
		},
	}
}
