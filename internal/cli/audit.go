package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimtree/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read persisted audit artifacts",
}

var auditShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Print the audit artifact of a run",
	Long: `Print the audit artifact saved for a report id. Artifacts expire after
the configured audit TTL (6h by default). The in-memory backend only holds
artifacts for the lifetime of one process, so use redis or sqlite to read
artifacts of earlier runs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Cache.Enabled = false

		logger, err := newLogger()
		if err != nil {
			return err
		}
		svc, err := newServices(cfg, logger)
		if err != nil {
			return err
		}
		defer svc.Close()

		artifact, err := audit.LoadArtifact(context.Background(), svc.auditStore, args[0])
		if errors.Is(err, audit.ErrNotFound) {
			return fmt.Errorf("no audit artifact for report %s (expired or never saved to the %s backend)", args[0], cfg.Audit.Backend)
		}
		if err != nil {
			return err
		}

		data, err := artifact.Marshal()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditShowCmd)
}
