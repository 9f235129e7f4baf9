// Fwprobe investigates how motorcycle intercom updaters fetch firmware.
//
// The tool automates the loop of downloading a vendor's official
// updater, mining it for embedded URLs, and running it under a
// man-in-the-middle proxy so every firmware request it makes is
// captured for later analysis:
//
//   - Vendor updater download (Sena, Cardo, Motorola/Bullitt)
//   - Strings extraction from updater binaries
//   - FCC ID lookups for the devices under investigation
//   - USB gadget faking so updaters see a connected headset
//   - mitmproxy capture with firmware payload dumping
//   - Updater execution under Wine, VirtualBox, or natively on macOS
//
// Prerequisites vary by capability; run 'fwprobe check' to see which
// external tools are available on this host.
//
// See 'fwprobe --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/fwprobe/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fwprobe",
	Short: "Firmware updater investigation toolkit",
	Long: `Investigate how vendor firmware updaters talk to their backends.

fwprobe downloads the official updater for each supported vendor, mines
it for embedded strings, and runs it under a capture proxy so firmware
download URLs and payloads land in inspectable logs. USB gadget faking
lets updaters on this machine believe a headset is connected.

Supported vendors: Sena, Cardo, Motorola (Bullitt).

Most commands only need their external tool installed (strings,
mitmdump, wine, VBoxManage, lsusb). Nothing talks to vendor backends
except the updaters themselves.`,
	Version: version.Version,
	Example: `  # Check which external tools are available
  fwprobe check

  # Full investigation: download, analyze, capture, run
  fwprobe e2e

  # Investigate one vendor with an existing download
  fwprobe e2e --vendor sena --skip-download

  # Watch captured traffic live in a terminal UI
  fwprobe watch`,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fwprobe %s (commit: %s)\n", version.Version, version.Commit)
	},
}
