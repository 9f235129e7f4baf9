// Package traffic reads and summarizes the capture logs written by the
// mitmproxy addon.
//
// # Log Format
//
// The addon appends one JSON object per line. requests.jsonl carries
// every request the updater made:
//
//	{"id": 3, "method": "GET", "url": "https://firmware.sena.com/v3.2/50s.bin",
//	 "headers": {"User-Agent": "SenaDeviceManager"}, "timestamp": 1714828996.412}
//
// responses.jsonl carries the matching responses, keyed by the same id:
//
//	{"id": 3, "status_code": 200, "headers": {"Content-Type": "application/octet-stream"},
//	 "content_length": 1048576, "timestamp": 1714828996.934}
//
// Readers are tolerant: blank or malformed lines are skipped, because a
// capture cut short by a killed proxy routinely ends mid-line.
//
// # Flows
//
// LoadFlows pairs requests with responses by id. A request the updater
// never got an answer to is still a flow, with a nil Response; the
// asymmetric case happens on every aborted download.
//
// # Firmware Detection
//
// A flow is flagged as a firmware candidate when the request URL
// contains a firmware-looking extension or the response Content-Type
// mentions "bin". The same heuristic drives the addon's firmware_*.bin
// dumps, so the two views agree.
//
// # Live Tailing
//
// Tail streams request entries to a channel while a capture is running,
// by polling the log rather than watching it. The logs are append-only
// JSON lines, so a cheap re-read from the last seen entry is all the
// machinery a live view needs.
package traffic
