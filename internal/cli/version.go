package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/fanvault/tokend/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display version information for tokend including build details and Go version.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tokend version %s\n", version.String())
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
