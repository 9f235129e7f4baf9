package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/fwprobe/internal/investigate"
	"github.com/muurk/fwprobe/internal/logging"
	"github.com/muurk/fwprobe/internal/proxy"
	"github.com/muurk/fwprobe/internal/traffic"
	"github.com/muurk/fwprobe/internal/ui"
	watchtui "github.com/muurk/fwprobe/internal/watch/tui"
)

// Capture command flags
var (
	proxyPort       int
	watchCaptureDir string
)

func init() {
	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(watchCmd)

	proxyCmd.AddCommand(proxyStartCmd)
}

// proxyCmd groups capture proxy operations
var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Manage the traffic capture proxy",
	Long: `Manage the mitmproxy capture proxy.

The proxy records every request an updater makes: a raw flow file for
mitmproxy's own tooling, JSONL request/response logs for fwprobe, and
any response that looks like a firmware payload dumped as
firmware_<id>.bin.`,
}

// proxyStartCmd implements 'proxy start'
var proxyStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the capture proxy in the foreground",
	Long: `Start mitmdump with the fwprobe capture addon and keep it running
until interrupted.

Captured artifacts land in <working-dir>/mitmproxy:

  traffic.mitm     raw flow file, replayable with mitmproxy
  requests.jsonl   one JSON line per request
  responses.jsonl  one JSON line per response
  firmware_*.bin   response bodies that look like firmware payloads

Point an updater at the proxy in another terminal, for example with
'fwprobe run --vendor sena --proxy-port 8080'. Ctrl+C stops the
capture and prints a traffic summary.`,
	Example: `  # Capture on the default port 8080
  fwprobe proxy start

  # Capture on a different port
  fwprobe proxy start --port 9090

  # Watch the capture live from another terminal
  fwprobe watch`,
	RunE: runProxyStart,
}

func init() {
	proxyStartCmd.Flags().IntVar(&proxyPort, "port", proxy.DefaultPort, "Proxy listen port")
}

func runProxyStart(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	logging.InitializeFromEnv()

	captureDir := filepath.Join(workingDir, investigate.CaptureDirName)
	manager := proxy.New(proxyPort, captureDir)

	ui.PrintCommandHeader(
		"Capture Proxy",
		"fwprobe proxy start",
		map[string]string{
			"Port":       strconv.Itoa(proxyPort),
			"Output Dir": captureDir,
		},
	)

	if err := manager.Start(context.Background()); err != nil {
		ui.PrintFailure("Capture proxy did not start", err, []string{
			"Install mitmproxy: pip install mitmproxy",
			fmt.Sprintf("Check that port %d is not already in use", proxyPort),
			"Set FWPROBE_LOG_LEVEL=debug for startup details",
		})
		return err
	}

	ui.PrintSuccess("Capture proxy running", map[string]string{
		"Proxy URL":    manager.ProxyURL(),
		"Flow File":    manager.FlowFile(),
		"Request Log":  manager.RequestLog(),
		"Response Log": manager.ResponseLog(),
		"PID":          strconv.Itoa(manager.Pid()),
	})
	fmt.Println("  Press Ctrl+C to stop the capture.")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	fmt.Println()

	if err := manager.Stop(); err != nil {
		ui.PrintFailure("Capture did not stop cleanly", err, []string{
			"The mitmdump process may need manual cleanup: pkill mitmdump",
		})
		return err
	}

	details := map[string]string{"Output Dir": captureDir}
	if summary, err := traffic.Summarize(captureDir); err == nil {
		details["Requests"] = strconv.Itoa(summary.RequestCount)
		details["Responses"] = strconv.Itoa(summary.ResponseCount)
		details["Firmware URLs"] = strconv.Itoa(len(summary.FirmwareURLs))
	}
	ui.PrintSuccess("Capture stopped", details)
	return nil
}

// watchCmd implements the 'watch' command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch captured traffic in a terminal UI",
	Long: `Open a full-screen terminal UI over a capture directory.

The flow list refreshes every two seconds while a capture is running,
so it doubles as a live view during 'fwprobe e2e' or alongside
'fwprobe proxy start'. Flows can be filtered down to firmware
candidates and opened in a detail pane showing full headers.

The UI works on finished captures too; it simply stops changing.`,
	Example: `  # Watch the default capture directory
  fwprobe watch

  # Watch a capture from a different run
  fwprobe watch --capture-dir /tmp/old-run/mitmproxy`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchCaptureDir, "capture-dir", "", "Capture directory (default <working-dir>/mitmproxy)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	logging.InitializeFromEnv()

	dir := watchCaptureDir
	if dir == "" {
		dir = filepath.Join(workingDir, investigate.CaptureDirName)
	}
	return watchtui.Run(dir)
}
