package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass now",
	Long: `Run a single reconciliation pass: push pending local records to the
backend, then pull records created elsewhere. Requires the backend to be
reachable; individual record failures are logged and retried on the next
pass.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		a.monitor.Probe(ctx)
		if !a.engine.Online() {
			return fmt.Errorf("backend %s is not reachable", a.client.BaseURL())
		}
		if err := a.engine.SyncPass(ctx); err != nil {
			return err
		}
		return printStatus(ctx, a)
	},
}

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Destroy the local store and rebuild it from the backend",
	Long: `Discard the entire local document store and reload it from the
backend.

WARNING: any local records not yet pushed to the backend are permanently
lost. The command asks for confirmation unless --yes is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !confirm("This deletes all unsynced local records. Continue? [y/N] ") {
			fmt.Println("Aborted")
			return nil
		}

		a, err := newApp(cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		a.monitor.Probe(ctx)
		if err := a.engine.ForceFullSync(ctx); err != nil {
			return err
		}
		fmt.Println("Local store rebuilt from backend")
		return printStatus(ctx, a)
	},
}

func init() {
	resyncCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func printStatus(ctx context.Context, a *app) error {
	status, err := a.engine.GetStatus(ctx)
	if err != nil {
		return err
	}
	state := "offline"
	if status.IsOnline {
		state = "online"
	}
	fmt.Printf("Backend:        %s (%s)\n", a.client.BaseURL(), state)
	fmt.Printf("Patients:       %d\n", status.TotalPatients)
	fmt.Printf("Consultations:  %d\n", status.TotalConsultations)
	fmt.Printf("Documents:      %d\n", status.TotalDocuments)
	fmt.Printf("Pending sync:   %d\n", status.PendingSync)
	return nil
}
