package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/muurk/fwprobe/internal/logging"
	"github.com/muurk/fwprobe/internal/traffic"
	"github.com/muurk/fwprobe/internal/version"
	"go.uber.org/zap"
)

// flowJSON is the wire form of a paired flow
type flowJSON struct {
	ID       int                    `json:"id"`
	Complete bool                   `json:"complete"`
	Firmware bool                   `json:"firmware_candidate"`
	Request  *traffic.RequestEntry  `json:"request,omitempty"`
	Response *traffic.ResponseEntry `json:"response,omitempty"`
}

// routes builds the HTTP mux for the review API
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/flows", s.handleFlows)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/ws", s.handleWatch)
	return mux
}

// handleIndex describes the server so a bare curl gets something useful
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, r, http.StatusNotFound, "no such endpoint")
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"name":        "fwprobe capture review server",
		"version":     version.Version,
		"capture_dir": s.config.CaptureDir,
		"endpoints":   []string{"/api/flows", "/api/summary", "/ws"},
	})
}

// handleFlows returns the captured flows, requests paired with their
// responses by mitmproxy flow ID
func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flows, err := traffic.LoadFlows(s.config.CaptureDir)
	if err != nil {
		var noCapture *traffic.NoCaptureError
		if errors.As(err, &noCapture) {
			s.writeError(w, r, http.StatusNotFound, "no capture logs in "+s.config.CaptureDir)
			return
		}
		logging.Error("Failed to load flows",
			zap.String("capture_dir", s.config.CaptureDir),
			zap.Error(err),
		)
		s.writeError(w, r, http.StatusInternalServerError, "failed to read capture logs")
		return
	}

	out := make([]flowJSON, 0, len(flows))
	for _, flow := range flows {
		if flow.Complete() {
			logging.LogFlow(flow.ID, flow.Request.Method, flow.Request.URL,
				flow.Response.StatusCode, int(flow.Response.ContentLength))
		}
		out = append(out, flowJSON{
			ID:       flow.ID,
			Complete: flow.Complete(),
			Firmware: traffic.FirmwareCandidate(flow),
			Request:  flow.Request,
			Response: flow.Response,
		})
	}

	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"count": len(out),
		"flows": out,
	})
}

// handleSummary returns aggregate statistics for the capture
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	summary, err := traffic.Summarize(s.config.CaptureDir)
	if err != nil {
		var noCapture *traffic.NoCaptureError
		if errors.As(err, &noCapture) {
			s.writeError(w, r, http.StatusNotFound, "no capture logs in "+s.config.CaptureDir)
			return
		}
		logging.Error("Failed to summarize capture",
			zap.String("capture_dir", s.config.CaptureDir),
			zap.Error(err),
		)
		s.writeError(w, r, http.StatusInternalServerError, "failed to read capture logs")
		return
	}

	s.writeJSON(w, r, http.StatusOK, summary)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error("Failed to encode response", zap.Error(err))
	}
	logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, status)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, r, status, map[string]string{"error": message})
}
