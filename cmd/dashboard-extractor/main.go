package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version задается при сборке через -ldflags.
var version = "dev"

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "dashboard-extractor",
	Short: "Extracts metric cards from an authenticated dashboard page",
	Long: "dashboard-extractor keeps a browser session on the dashboard page, periodically\n" +
		"reloads it, sends a screenshot to a vision model and serves the latest record over HTTP.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", os.Getenv("LOG_LEVEL"), "debug, info, warn or error")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
