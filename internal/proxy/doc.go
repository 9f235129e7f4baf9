// Package proxy manages a mitmproxy capture session around updater
// runs.
//
// The interesting part of a firmware updater is what it says to its
// update server. This package launches mitmdump with a small embedded
// Python addon that records every request and response as JSON lines
// and saves any response body that looks like a firmware image. The
// updater is then pointed at the proxy through http_proxy/https_proxy
// (see the runner package).
//
// # Capture Layout
//
// Everything lands in the output directory (working/mitmproxy by
// default):
//
//	traffic.mitm       mitmproxy native flow dump, replayable with mitmweb
//	requests.jsonl     one JSON line per intercepted request
//	responses.jsonl    one JSON line per intercepted response
//	firmware_<id>.bin  response bodies matching the firmware heuristic
//
// The firmware heuristic is deliberately crude: a URL containing .bin,
// .hex, .fw, or .firmware, or a content type containing "bin". Vendors
// are not consistent enough for anything cleverer to pay off.
//
// # Process Lifecycle
//
// Start gives mitmdump a short grace window to fail fast (port taken,
// broken addon) and only then reports it as running. Stop sends SIGTERM
// so the flow file gets flushed, escalating to SIGKILL if the process
// lingers.
//
//	mgr := proxy.New(8080, "working/mitmproxy")
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
//
// # HTTPS Interception
//
// mitmdump is launched with --ssl-insecure so self-signed update
// servers do not break the capture. For the updater itself to accept
// interception the mitmproxy CA certificate must be trusted; see
// https://docs.mitmproxy.org/stable/concepts-certificates/.
package proxy
