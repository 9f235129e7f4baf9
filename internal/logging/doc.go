// Package logging provides structured logging for the fwprobe tools.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the toolkit. It provides both general logging
// functions and specialized functions for subprocess and traffic logging.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (command lines, raw byte dumps)
//   - Info: Normal operations (downloads, process starts, flows)
//   - Warn: Non-fatal issues (missing UDC, degraded runs without proxy)
//   - Error: Fatal issues (download failures, tool startup errors)
//
// # Silent by Default
//
// CLI commands stay silent unless the FWPROBE_LOG_LEVEL environment variable
// is set. The styled terminal output (internal/ui) is the user-facing
// surface; zap output is for debugging:
//
//	FWPROBE_LOG_LEVEL=debug fwprobe e2e --vendor sena
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Download",
//	    zap.String("vendor", "sena"),
//	    zap.String("path", "working/SenaDeviceManager_Setup.exe"),
//	    zap.Int64("bytes", 48123904),
//	)
//
// # Specialized Logging
//
// The package provides domain-specific logging functions:
//
//	logging.LogCommand("mitmdump", args)
//	logging.LogProcess("mitmdump", pid, "started")
//	logging.LogDownload(vendor, url, path, bytes, skipped)
//	logging.LogFlow(id, method, url, status, contentLength)
//	logging.LogRawBytes("firmware chunk", data)
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.InitializeFromEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap
// logger handles synchronization automatically.
package logging
