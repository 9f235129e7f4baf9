package traffic

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/fwprobe/internal/logging"
	"github.com/muurk/fwprobe/internal/proxy"
)

// maxLineSize caps a single log line; header maps from chatty updaters
// get big but not this big.
const maxLineSize = 1024 * 1024

// RequestEntry is one line of requests.jsonl.
type RequestEntry struct {
	// ID is the capture sequence number, shared with the response
	ID int `json:"id"`

	// Method is the HTTP method
	Method string `json:"method"`

	// URL is the full request URL
	URL string `json:"url"`

	// Headers are the request headers
	Headers map[string]string `json:"headers"`

	// Timestamp is epoch seconds with a fractional part
	Timestamp float64 `json:"timestamp"`
}

// Time converts the entry timestamp to a time.Time.
func (e RequestEntry) Time() time.Time {
	return epochTime(e.Timestamp)
}

// Host returns the request host, or the raw URL when it does not parse.
func (e RequestEntry) Host() string {
	u, err := url.Parse(e.URL)
	if err != nil || u.Host == "" {
		return e.URL
	}
	return u.Host
}

// ResponseEntry is one line of responses.jsonl.
type ResponseEntry struct {
	// ID matches the request with the same capture sequence number
	ID int `json:"id"`

	// StatusCode is the HTTP status
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers map[string]string `json:"headers"`

	// ContentLength is the response body size in bytes
	ContentLength int64 `json:"content_length"`

	// Timestamp is epoch seconds with a fractional part
	Timestamp float64 `json:"timestamp"`
}

// Time converts the entry timestamp to a time.Time.
func (e ResponseEntry) Time() time.Time {
	return epochTime(e.Timestamp)
}

// ContentType returns the response Content-Type header, if any.
func (e ResponseEntry) ContentType() string {
	for name, value := range e.Headers {
		if strings.EqualFold(name, "Content-Type") {
			return value
		}
	}
	return ""
}

// Flow is a request paired with its response by capture id. Either side
// can be nil when the capture recorded only half of the exchange.
type Flow struct {
	ID       int
	Request  *RequestEntry
	Response *ResponseEntry
}

// Complete reports whether both halves of the exchange were captured.
func (f *Flow) Complete() bool {
	return f.Request != nil && f.Response != nil
}

// Host returns the request host, or empty for a response-only flow.
func (f *Flow) Host() string {
	if f.Request == nil {
		return ""
	}
	return f.Request.Host()
}

// ReadRequests parses a requests.jsonl file.
func ReadRequests(path string) ([]RequestEntry, error) {
	var entries []RequestEntry
	err := readLines(path, func(line []byte) bool {
		var e RequestEntry
		if json.Unmarshal(line, &e) != nil {
			return false
		}
		entries = append(entries, e)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read request log: %w", err)
	}
	return entries, nil
}

// ReadResponses parses a responses.jsonl file.
func ReadResponses(path string) ([]ResponseEntry, error) {
	var entries []ResponseEntry
	err := readLines(path, func(line []byte) bool {
		var e ResponseEntry
		if json.Unmarshal(line, &e) != nil {
			return false
		}
		entries = append(entries, e)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read response log: %w", err)
	}
	return entries, nil
}

// LoadFlows reads both capture logs from a mitmproxy output directory
// and pairs them into flows, sorted by capture id. A missing log on one
// side is fine; both missing means nothing was captured.
func LoadFlows(dir string) ([]*Flow, error) {
	reqPath := filepath.Join(dir, proxy.RequestLogName)
	respPath := filepath.Join(dir, proxy.ResponseLogName)

	_, reqErr := os.Stat(reqPath)
	_, respErr := os.Stat(respPath)
	if reqErr != nil && respErr != nil {
		return nil, &NoCaptureError{Dir: dir}
	}

	byID := make(map[int]*Flow)

	if reqErr == nil {
		requests, err := ReadRequests(reqPath)
		if err != nil {
			return nil, err
		}
		for i := range requests {
			req := requests[i]
			byID[req.ID] = &Flow{ID: req.ID, Request: &req}
		}
	}

	if respErr == nil {
		responses, err := ReadResponses(respPath)
		if err != nil {
			return nil, err
		}
		for i := range responses {
			resp := responses[i]
			flow, ok := byID[resp.ID]
			if !ok {
				flow = &Flow{ID: resp.ID}
				byID[resp.ID] = flow
			}
			flow.Response = &resp
		}
	}

	flows := make([]*Flow, 0, len(byID))
	for _, flow := range byID {
		flows = append(flows, flow)
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].ID < flows[j].ID })

	return flows, nil
}

// readLines feeds each non-blank line to parse and counts the lines
// parse rejects.
func readLines(path string, parse func(line []byte) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	skipped := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !parse(line) {
			skipped++
			logging.Debug("skipping malformed capture line",
				zap.String("file", path),
				zap.Int("line", lineNo),
			)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if skipped > 0 {
		logging.Warn("capture log has malformed lines",
			zap.String("file", path),
			zap.Int("skipped", skipped),
		)
	}
	return nil
}

func epochTime(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// NoCaptureError indicates a mitmproxy output directory with no logs in
// it.
type NoCaptureError struct {
	// Dir is the directory that was searched
	Dir string
}

func (e *NoCaptureError) Error() string {
	return fmt.Sprintf("no capture logs in %s\nRun 'fwprobe e2e' first to record updater traffic.", e.Dir)
}
