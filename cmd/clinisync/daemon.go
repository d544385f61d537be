package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clinicaid/clinisync/internal/dashboard"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync daemon with the local dashboard",
	Long: `Run the long-lived sync process for a clinic workstation.

The daemon probes backend reachability, performs the initial bulk load on
first start, pushes pending local records whenever the backend is
reachable and pulls remote records created elsewhere. A local HTTP
dashboard exposes /status, /metrics (Prometheus) and /ws (event stream
for the UI).

Example usage:
  clinisync daemon
  clinisync daemon --backend-url http://192.168.1.10:3001`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, daemonLogWriter(cfg))
		if err != nil {
			return err
		}
		defer a.Close()

		dash := dashboard.NewServer(cfg.DashboardAddr, a.engine, a.bus, a.logger)
		if err := dash.Start(); err != nil {
			return err
		}
		defer func() {
			if err := dash.Stop(); err != nil {
				a.logger.Printf("WARNING: dashboard shutdown: %v", err)
			}
		}()

		fmt.Printf("Sync daemon started (backend %s)\n", a.client.BaseURL())
		fmt.Printf("Dashboard: http://%s/status\n", dash.Addr())
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a.monitor.Run(ctx)
		fmt.Println("Sync daemon stopped")
		return nil
	},
}
