package main

import (
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return emit(cmd, map[string]string{
				"version": version,
				"commit":  commit,
				"date":    date,
			}, "nodenet version %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
