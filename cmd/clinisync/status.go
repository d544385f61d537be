package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and connectivity status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		a.monitor.Probe(ctx)
		return printStatus(ctx, a)
	},
}
