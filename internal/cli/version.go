package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terrorizer1980/stream-loader/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("stream-loader %s (%s, built %s)\n", version.Version, version.BuildHash, version.BuildDate)
	},
}
