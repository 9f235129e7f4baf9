// Fwprobe-server serves a traffic capture directory for review.
//
// It exposes the flows recorded by the fwprobe capture proxy over a
// small HTTP API, plus a WebSocket feed that streams request entries
// as they land, so a capture can be inspected from a browser or
// another tool while the updater is still running.
//
// Usage:
//
//	fwprobe-server server [flags]
//
// See 'fwprobe-server server --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/fwprobe/internal/server"
	"github.com/muurk/fwprobe/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fwprobe-server",
	Short: "Capture review server",
	Long: `A standalone HTTP server over an fwprobe capture directory.

The server pairs the JSONL request/response logs into flows and serves
them as JSON, with a WebSocket feed for live tailing. It is a local
review tool; captures happen through the fwprobe CLI.

Note: For running investigations, use the separate 'fwprobe' utility.`,
	Version: version.Version,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}

// Server command and flags
var (
	host       string
	port       int
	captureDir string
	logLevel   string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the capture review server",
	Long: `Start the HTTP server over a capture directory.

The capture directory does not have to exist yet: the API answers 404
until the capture proxy writes its first log, which lets a client poll
while an investigation is starting up.

Endpoints:
  GET /             server identity and endpoint list
  GET /api/flows    captured flows, requests paired with responses
  GET /api/summary  hosts, methods, status codes, firmware candidates
  GET /ws           WebSocket feed of request entries as they land`,
	Example: `  # Serve the default capture directory
  fwprobe-server server

  # Serve a different capture on a different port
  fwprobe-server server --capture-dir /tmp/old-run/mitmproxy --port 9090

  # Verbose request logging
  fwprobe-server server --log-level debug`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().StringVar(&host, "host", "127.0.0.1", "Listen address (use 0.0.0.0 to expose on the LAN)")
	serverCmd.Flags().IntVar(&port, "port", 8081, "Listen port")
	serverCmd.Flags().StringVar(&captureDir, "capture-dir", "working/mitmproxy", "Capture directory to serve")
	serverCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func runServer(cmd *cobra.Command, args []string) error {
	// The directory may be absent before the first capture, but a
	// plain file in its place is a configuration mistake
	if info, err := os.Stat(captureDir); err == nil && !info.IsDir() {
		return fmt.Errorf("capture path is not a directory: %s", captureDir)
	}

	config := &server.Config{
		Host:       host,
		Port:       port,
		CaptureDir: captureDir,
		LogLevel:   logLevel,
	}

	srv, err := server.New(config)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}

// Version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fwprobe-server %s (commit: %s)\n", version.Version, version.Commit)
	},
}
