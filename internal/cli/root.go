package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fanvault/tokend/internal/config"
	"github.com/fanvault/tokend/internal/version"
)

var (
	// Global flags
	configFile string
	debug      bool
	verbose    bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tokend",
	Short: "tokend - multi-tenant token ledger daemon",
	Long: `tokend is a token ledger daemon. It keeps an append-only transaction
registry per user, projects balances from paid and expiring free token
buckets, and drives spends through a beneficiary-free, system-free,
paid split. Holds reserve tokens for later capture or reversal, and
background sweepers reverse expired holds and purge aged records.

The daemon speaks JSON-RPC over HTTP and streams events over
WebSocket subscriptions.`,
	Version: version.String(),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable normally suppressed debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output to console after startup")
}

// loadConfig reads the configuration honoring --conf (falling back to
// TOKEND_CONF) and maps the logging flags onto the configured level.
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = os.Getenv("TOKEND_CONF")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	switch {
	case debug:
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	case verbose:
		cfg.Logging.Level = "debug"
	case quiet:
		cfg.Logging.Level = "error"
	}
	return cfg, nil
}
