package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fanvault/tokend/internal/di"
)

var (
	sweepExpiredFor int64
	sweepBatchSize  int
	sweepDryRun     bool
)

// sweepCmd reverses expired holds once and exits. The server runs the
// same pass on a timer when the sweeper is enabled.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reverse expired holds once",
	Long: `Scan the expiry timeline for holds past their expiry and reverse the
open ones, returning the reserved tokens to their owners. With
--dry-run the matching holds are listed without any state change.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().Int64Var(&sweepExpiredFor, "expired-for", 0, "grace period in seconds past expiry")
	sweepCmd.Flags().IntVar(&sweepBatchSize, "batch-size", 100, "maximum holds to process in one pass")
	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "list expired holds without reversing them")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	container := di.New()
	provider := di.NewProvider(container, cfg)
	if err := provider.RegisterAll(); err != nil {
		return err
	}
	defer container.Close()

	svc, err := provider.Ledger()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if sweepDryRun {
		report, err := svc.FindExpiredHolds(ctx, sweepExpiredFor, sweepBatchSize)
		if err != nil {
			return err
		}
		fmt.Printf("%d expired holds (%d open, %d returned)\n",
			report.TotalExpired, report.OpenExpired, report.Returned)
		for _, hold := range report.Holds {
			fmt.Printf("  %s  user=%s amount=%d expired=%s\n",
				hold.ID, hold.UserID, hold.Amount, hold.ExpiresAt)
		}
		return nil
	}

	summary, err := svc.ProcessExpiredHolds(ctx, sweepExpiredFor, sweepBatchSize)
	if err != nil {
		return err
	}
	fmt.Printf("processed %d holds: %d reversed, %d already settled, %d failed (%.2fs)\n",
		summary.Processed, summary.Reversed, summary.AlreadyProcessed,
		summary.Failed, summary.DurationSeconds)
	for _, sweepErr := range summary.Errors {
		fmt.Printf("  failed %s user=%s: %s\n", sweepErr.HoldID, sweepErr.UserID, sweepErr.Error)
	}
	return nil
}
