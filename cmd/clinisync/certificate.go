package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var certificateCmd = &cobra.Command{
	Use:   "certificate <patient-local-id> <output.pdf>",
	Short: "Download a patient's vaccination certificate PDF",
	Long: `Fetch the vaccination certificate the backend generates for a
patient. The patient must already be synced (have a backend id) and the
backend must be reachable; certificates are rendered server-side and are
never available offline.`,
	Args: cobra.ExactArgs(2),
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

		doc, err := a.engine.GetDocument(ctx, args[0])
		if err != nil {
			return err
		}
		if !doc.HasBackendID() {
			return fmt.Errorf("patient %s has not been synced yet", args[0])
		}

		pdf, err := a.client.VaccinationCertificate(ctx, doc.BackendID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[1], pdf, 0o644); err != nil {
			return fmt.Errorf("failed to write certificate: %w", err)
		}
		fmt.Printf("Certificate for %s %s written to %s\n",
			doc.Field("prenom"), doc.Field("nom"), args[1])
		return nil
	},
}
