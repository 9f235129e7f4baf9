// Package server implements the capture review server.
//
// The server exposes a finished or in-progress mitmproxy capture
// directory over HTTP so the traffic can be inspected from a browser,
// curl, or another tool without parsing the JSONL logs by hand.
//
// # Endpoints
//
//   - GET /            server identity and endpoint list
//   - GET /api/flows   captured flows, requests paired with responses
//   - GET /api/summary aggregate counts, hosts, and firmware candidates
//   - GET /ws          WebSocket feed of request entries as they land
//
// Both API endpoints return 404 with a JSON error body while the
// capture directory has no logs yet, which lets a client poll until
// the proxy starts writing.
//
// # Live Watch Feed
//
// /ws upgrades to a WebSocket (gorilla/websocket) and replays every
// request entry already in requests.jsonl, then streams new entries as
// the capture proxy appends them. Each message is one JSON-encoded
// request entry. The feed is driven by traffic.Tail, which polls the
// log rather than watching it, so it works on any filesystem.
//
// The server pings each watcher every 54 seconds and drops the
// connection when no pong arrives within 60, so dead peers do not
// accumulate.
//
// # Lifecycle
//
// Start blocks until SIGINT or SIGTERM, then shuts down gracefully:
// live watch connections are closed first (http.Server.Shutdown does
// not cover hijacked connections), then in-flight HTTP requests get
// ten seconds to drain.
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{
//		Host:       "127.0.0.1",
//		Port:       8081,
//		CaptureDir: "working/mitmproxy",
//		LogLevel:   "info",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
package server
