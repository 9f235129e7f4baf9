package traffic

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/muurk/fwprobe/internal/proxy"
)

// writeCaptureDir lays out a mitmproxy output directory with the given
// log lines. A nil slice leaves that log file out entirely.
func writeCaptureDir(t *testing.T, requests, responses []string) string {
	t.Helper()

	dir := t.TempDir()
	if requests != nil {
		content := strings.Join(requests, "\n") + "\n"
		if err := os.WriteFile(filepath.Join(dir, proxy.RequestLogName), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write request log: %v", err)
		}
	}
	if responses != nil {
		content := strings.Join(responses, "\n") + "\n"
		if err := os.WriteFile(filepath.Join(dir, proxy.ResponseLogName), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write response log: %v", err)
		}
	}
	return dir
}

func TestReadRequests(t *testing.T) {
	dir := writeCaptureDir(t, []string{
		`{"id": 1, "method": "GET", "url": "https://api.sena.com/check", "headers": {"User-Agent": "SenaDeviceManager"}, "timestamp": 1714828996.412}`,
		`{"id": 2, "method": "POST", "url": "https://api.sena.com/register", "headers": {}, "timestamp": 1714828997.1}`,
	}, nil)

	entries, err := ReadRequests(filepath.Join(dir, proxy.RequestLogName))
	if err != nil {
		t.Fatalf("ReadRequests() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	first := entries[0]
	if first.ID != 1 || first.Method != "GET" || first.URL != "https://api.sena.com/check" {
		t.Errorf("unexpected first entry: %+v", first)
	}
	if first.Headers["User-Agent"] != "SenaDeviceManager" {
		t.Errorf("Headers = %v, want User-Agent preserved", first.Headers)
	}
	if first.Host() != "api.sena.com" {
		t.Errorf("Host() = %q, want api.sena.com", first.Host())
	}
	if first.Time().Unix() != 1714828996 {
		t.Errorf("Time() = %v, want epoch 1714828996", first.Time())
	}
}

func TestReadRequests_SkipsMalformedLines(t *testing.T) {
	dir := writeCaptureDir(t, []string{
		`{"id": 1, "method": "GET", "url": "https://example.com/a", "headers": {}, "timestamp": 1.0}`,
		`not json at all`,
		``,
		`{"id": 2, "method": "GET", "url": "https://example.com/b", "headers": {}, "timestamp": 2.0}`,
		`{"id": 3, "truncated`,
	}, nil)

	entries, err := ReadRequests(filepath.Join(dir, proxy.RequestLogName))
	if err != nil {
		t.Fatalf("ReadRequests() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 with bad lines skipped", len(entries))
	}
	if entries[0].ID != 1 || entries[1].ID != 2 {
		t.Errorf("entries = %+v, want ids 1 and 2", entries)
	}
}

func TestReadRequests_MissingFile(t *testing.T) {
	_, err := ReadRequests(filepath.Join(t.TempDir(), "requests.jsonl"))
	if err == nil {
		t.Fatal("ReadRequests() expected error for missing file")
	}
}

func TestReadResponses(t *testing.T) {
	dir := writeCaptureDir(t, nil, []string{
		`{"id": 1, "status_code": 200, "headers": {"content-type": "application/octet-stream"}, "content_length": 1048576, "timestamp": 1714828996.9}`,
	})

	entries, err := ReadResponses(filepath.Join(dir, proxy.ResponseLogName))
	if err != nil {
		t.Fatalf("ReadResponses() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	resp := entries[0]
	if resp.StatusCode != 200 || resp.ContentLength != 1048576 {
		t.Errorf("unexpected entry: %+v", resp)
	}
	if resp.ContentType() != "application/octet-stream" {
		t.Errorf("ContentType() = %q, want lookup to ignore header case", resp.ContentType())
	}
}

func TestLoadFlows_PairsByID(t *testing.T) {
	dir := writeCaptureDir(t,
		[]string{
			`{"id": 2, "method": "GET", "url": "https://example.com/b", "headers": {}, "timestamp": 2.0}`,
			`{"id": 1, "method": "GET", "url": "https://example.com/a", "headers": {}, "timestamp": 1.0}`,
		},
		[]string{
			`{"id": 1, "status_code": 200, "headers": {}, "content_length": 10, "timestamp": 1.5}`,
		},
	)

	flows, err := LoadFlows(dir)
	if err != nil {
		t.Fatalf("LoadFlows() error = %v", err)
	}
	if len(flows) != 2 {
		t.Fatalf("got %d flows, want 2", len(flows))
	}

	if flows[0].ID != 1 || flows[1].ID != 2 {
		t.Errorf("flows not sorted by id: %d, %d", flows[0].ID, flows[1].ID)
	}
	if !flows[0].Complete() {
		t.Error("flow 1 should have both halves")
	}
	if flows[0].Response.StatusCode != 200 {
		t.Errorf("flow 1 status = %d, want 200", flows[0].Response.StatusCode)
	}
	if flows[1].Complete() {
		t.Error("flow 2 should be missing its response")
	}
	if flows[1].Response != nil {
		t.Errorf("flow 2 response = %+v, want nil", flows[1].Response)
	}
}

func TestLoadFlows_ResponseWithoutRequest(t *testing.T) {
	dir := writeCaptureDir(t, nil, []string{
		`{"id": 7, "status_code": 304, "headers": {}, "content_length": 0, "timestamp": 3.0}`,
	})

	flows, err := LoadFlows(dir)
	if err != nil {
		t.Fatalf("LoadFlows() error = %v", err)
	}
	if len(flows) != 1 {
		t.Fatalf("got %d flows, want 1", len(flows))
	}
	if flows[0].Request != nil {
		t.Error("response-only flow should have nil Request")
	}
	if flows[0].Host() != "" {
		t.Errorf("Host() = %q, want empty for response-only flow", flows[0].Host())
	}
}

func TestLoadFlows_NoCapture(t *testing.T) {
	_, err := LoadFlows(t.TempDir())
	var noCapture *NoCaptureError
	if !errors.As(err, &noCapture) {
		t.Fatalf("LoadFlows() error = %v, want *NoCaptureError", err)
	}
	if !strings.Contains(noCapture.Error(), "fwprobe e2e") {
		t.Errorf("error %q should point at the e2e command", noCapture.Error())
	}
}
