// Package tui implements the interactive traffic watcher for fwprobe.
//
// This package provides a full-screen TUI for browsing the HTTP(S) flows
// recorded by the capture proxy while a vendor updater runs. Built using the
// Bubble Tea framework, it follows the Elm architecture with immutable state
// updates and a clean Model-Update-View pattern.
//
// # Architecture
//
// The watcher is a single screen with three states:
//   - Waiting: No capture logs exist yet; polls until they appear
//   - Flow list: Captured flows rendered as cards, newest data refreshed live
//   - Flow detail: Full request/response headers in a scrolling viewport
//
// All states use a unified container pattern (RenderApplicationContainer) for
// consistent layout with header, content area, and context-sensitive footer.
//
// The watcher polls the capture directory every two seconds rather than
// tailing the log files. The capture logs are append-only JSON lines, so a
// full re-read is cheap and keeps the reader logic in one place (the traffic
// package).
//
// # Framework Components
//
// The TUI leverages Bubble Tea framework components throughout:
//   - bubbles/list: Flow list with filtering
//   - bubbles/viewport: Scrolling for flow details
//   - bubbles/spinner: Waiting indicator
//   - bubbles/help: Context-aware help system
//   - lipgloss: Styling and layout
//
// # Usage Example
//
//	// Watch a capture directory until the user quits
//	if err := tui.Run("working/mitmproxy"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Key Bindings
//
// Each state has context-aware key bindings:
//   - Flow list: ↑/↓ navigate, Enter inspect, f firmware only, r refresh, q quit
//   - Flow detail: ↑/↓ scroll, ESC back, q quit
//   - Waiting: q quit
//
// The 'f' binding narrows the list to flows that look like firmware
// downloads, using the same heuristic the capture addon applies when it dumps
// response bodies.
package tui
