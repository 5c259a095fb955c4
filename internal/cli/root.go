// Package cli provides the tmmirror command line interface.
package cli

import "github.com/spf13/cobra"

// Version is set at build time.
var Version = "0.1.0"

var settingsPath string

var rootCmd = &cobra.Command{
	Use:   "tmmirror",
	Short: "Cloud-native mirror of the HOT Tasking Manager",
	Long: `tmmirror incrementally mirrors the HOT Tasking Manager API into
cloud-native artifacts on S3-compatible storage: per-project JSON blobs,
a combined GeoJSON feature collection, a lightweight summary index, and
a PMTiles archive for map rendering.

Only projects whose modification timestamp changed since the last run
are re-fetched; everything else is served from the mirrored blobs.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "path to a YAML settings file (default mirror.yaml if present)")
	rootCmd.AddCommand(syncCmd)
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
