package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "warmth",
	Short: "Relationship warmth scoring cache and service",
	Long:  "Warmth tracks how warm your contacts are: a TTL-coordinated cache over a decay-scoring service, plus the service itself. Single Go binary.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(summaryCmd)
}
