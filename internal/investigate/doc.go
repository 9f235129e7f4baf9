// Package investigate orchestrates the end-to-end firmware
// investigation workflow.
//
// # Workflow Steps
//
// A run moves through five steps:
//
//  1. Download the vendor updater packages
//  2. Extract printable strings from each package
//  3. Start the mitmproxy capture
//  4. Execute the updaters through the best available runner
//  5. Let late requests settle, stop the capture, and summarize
//
// # Failure Policy
//
// The workflow degrades instead of aborting wherever the remaining
// steps still produce something useful. A download failure is fatal:
// with no updater there is nothing to analyze or run. Everything else
// is not. A strings failure on one package leaves the others analyzed,
// a proxy that will not start means the updaters run uncaptured, and a
// host with neither Wine nor VirtualBox still gets downloads and
// strings reports. Non-fatal problems are collected in the Report
// rather than returned as errors.
//
// Callers that want live progress set OnStep; the callback receives one
// event per step transition and the cmd layer turns them into terminal
// output. The package itself never prints.
package investigate
