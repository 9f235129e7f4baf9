package server

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/fwprobe/internal/logging"
	"github.com/muurk/fwprobe/internal/proxy"
	"github.com/muurk/fwprobe/internal/traffic"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// upgrader accepts any origin. The server reviews local captures and
// is not meant to face the internet.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWatch upgrades to WebSocket and streams request entries as the
// capture proxy appends them to requests.jsonl. Entries already in the
// log are replayed first, so a watcher joining mid-capture sees the
// whole session.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	remoteAddr := conn.RemoteAddr().String()
	logging.LogConnection(remoteAddr, "watch_connected")

	s.addWatcher(remoteAddr, conn)
	defer func() {
		s.removeWatcher(remoteAddr)
		conn.Close()
		logging.LogConnection(remoteAddr, "watch_closed")
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read pump: the client sends nothing we care about, but reading is
	// what surfaces pongs, close frames, and dead peers
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	entries := make(chan traffic.RequestEntry, 16)
	tailErr := make(chan error, 1)
	go func() {
		tailErr <- traffic.Tail(ctx, filepath.Join(s.config.CaptureDir, proxy.RequestLogName), entries)
	}()

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				if err := <-tailErr; err != nil {
					logging.Error("Capture tail failed",
						zap.String("remote_addr", remoteAddr),
						zap.Error(err),
					)
				}
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(entry); err != nil {
				logging.Info("Watcher write failed, dropping connection",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err),
				)
				return
			}
			logging.Debug("Pushed request to watcher",
				zap.String("remote_addr", remoteAddr),
				zap.Int("id", entry.ID),
				zap.String("url", entry.URL),
			)

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
