package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fanvault/tokend/internal/di"
	"github.com/fanvault/tokend/internal/ledger"
)

var (
	purgeOlderThanDays int
	purgeLimit         int
	purgeDryRun        bool
	purgeNoArchive     bool
	purgeMaxSeconds    int
)

// purgeCmd runs one retention pass and exits. Deletion requires opting
// out of the dry run explicitly.
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Archive and delete aged registry records",
	Long: `Scan the registry for transactions older than the cutoff, archive them
and delete the originals. The default is a dry run that only reports
candidates; pass --dry-run=false to actually archive and delete.`,
	RunE: runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)

	defaults := ledger.DefaultPurgeOptions()
	purgeCmd.Flags().IntVar(&purgeOlderThanDays, "older-than-days", defaults.OlderThanDays, "purge records created before now minus this many days")
	purgeCmd.Flags().IntVar(&purgeLimit, "limit", defaults.Limit, "maximum records to scan in one pass")
	purgeCmd.Flags().BoolVar(&purgeDryRun, "dry-run", defaults.DryRun, "report candidates without archiving or deleting")
	purgeCmd.Flags().BoolVar(&purgeNoArchive, "no-archive", false, "delete without archiving (dangerous)")
	purgeCmd.Flags().IntVar(&purgeMaxSeconds, "max-seconds", defaults.MaxSeconds, "wall-clock budget for the pass, 0 for none")
}

func runPurge(cmd *cobra.Command, args []string) error {
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

	opts := ledger.PurgeOptions{
		OlderThanDays: purgeOlderThanDays,
		Limit:         purgeLimit,
		DryRun:        purgeDryRun,
		Archive:       !purgeNoArchive,
		MaxSeconds:    purgeMaxSeconds,
	}

	summary, err := svc.PurgeOldRegistryRecords(context.Background(), opts)
	if err != nil {
		return err
	}

	mode := "purged"
	if summary.DryRun {
		mode = "dry run, would purge"
	}
	fmt.Printf("%s %d of %d scanned records older than %s (%d archived, %.2fs)\n",
		mode, summary.Deleted, summary.Scanned, summary.CutoffISO,
		summary.Archived, summary.DurationSeconds)
	if summary.DryRun {
		fmt.Printf("candidates: %d (pass --dry-run=false to apply)\n", summary.Candidates)
	}
	return nil
}
