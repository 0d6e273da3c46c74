package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blesail",
	Short: "Live wind and GPS readings from a BLE sailing sensor",
	Long: `blesail connects to a Bluetooth Low Energy wind/GPS sensor, subscribes to its
characteristics and shows the decoded values live:

- Select the sensor by advertised service, local name or address
- Subscribe to every data source independently; one failing source never stops the others
- Decode signed fixed-point and IEEE-754 payloads, or custom payloads with Lua scripts
- Show values as a live board, as name=value lines, or on a pseudo-terminal
- Run against a built-in sensor simulator with --simulate`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("blesail {{.Version}} (commit %s, built %s)\n", commit, date))

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(decodeCmd)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging (same as --log-level debug)")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
