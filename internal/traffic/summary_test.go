package traffic

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsFirmwareURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://firmware.sena.com/50s/v3.2.bin", true},
		{"https://cdn.cardo.com/packtalk/v5.0.fw", true},
		{"https://example.com/BOOTLOADER.HEX", true},
		{"https://example.com/device.firmware", true},
		{"https://api.sena.com/version/check", false},
		{"https://example.com/index.html", false},
	}

	for _, tt := range tests {
		if got := IsFirmwareURL(tt.url); got != tt.want {
			t.Errorf("IsFirmwareURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestFirmwareCandidate(t *testing.T) {
	byURL := &Flow{
		ID:      1,
		Request: &RequestEntry{URL: "https://example.com/update.bin"},
	}
	if !FirmwareCandidate(byURL) {
		t.Error("flow with .bin URL should be a candidate")
	}

	byContentType := &Flow{
		ID:       2,
		Request:  &RequestEntry{URL: "https://example.com/download"},
		Response: &ResponseEntry{Headers: map[string]string{"Content-Type": "application/octet-stream; charset=binary"}},
	}
	if !FirmwareCandidate(byContentType) {
		t.Error("flow with binary content type should be a candidate")
	}

	plain := &Flow{
		ID:       3,
		Request:  &RequestEntry{URL: "https://example.com/news"},
		Response: &ResponseEntry{Headers: map[string]string{"Content-Type": "text/html"}},
	}
	if FirmwareCandidate(plain) {
		t.Error("plain HTML flow should not be a candidate")
	}
}

func TestSummarizeFlows(t *testing.T) {
	flows := []*Flow{
		{
			ID:       1,
			Request:  &RequestEntry{Method: "GET", URL: "https://api.sena.com/check"},
			Response: &ResponseEntry{StatusCode: 200},
		},
		{
			ID:       2,
			Request:  &RequestEntry{Method: "GET", URL: "https://firmware.sena.com/50s.bin"},
			Response: &ResponseEntry{StatusCode: 200},
		},
		{
			ID:      3,
			Request: &RequestEntry{Method: "POST", URL: "https://api.sena.com/telemetry"},
		},
		{
			ID:       4,
			Request:  &RequestEntry{Method: "GET", URL: "https://firmware.sena.com/50s.bin"},
			Response: &ResponseEntry{StatusCode: 304},
		},
	}

	summary := SummarizeFlows(flows)

	if summary.RequestCount != 4 {
		t.Errorf("RequestCount = %d, want 4", summary.RequestCount)
	}
	if summary.ResponseCount != 3 {
		t.Errorf("ResponseCount = %d, want 3", summary.ResponseCount)
	}
	if summary.Hosts["api.sena.com"] != 2 || summary.Hosts["firmware.sena.com"] != 2 {
		t.Errorf("Hosts = %v", summary.Hosts)
	}
	if summary.Methods["GET"] != 3 || summary.Methods["POST"] != 1 {
		t.Errorf("Methods = %v", summary.Methods)
	}
	if summary.StatusCodes[200] != 2 || summary.StatusCodes[304] != 1 {
		t.Errorf("StatusCodes = %v", summary.StatusCodes)
	}

	if len(summary.FirmwareURLs) != 1 {
		t.Fatalf("FirmwareURLs = %v, want the duplicate deduped", summary.FirmwareURLs)
	}
	if summary.FirmwareURLs[0] != "https://firmware.sena.com/50s.bin" {
		t.Errorf("FirmwareURLs[0] = %q", summary.FirmwareURLs[0])
	}
}

func TestSummary_TopHosts(t *testing.T) {
	summary := &Summary{
		Hosts: map[string]int{
			"one.example.com":   1,
			"three.example.com": 3,
			"also-three.com":    3,
		},
	}

	hosts := summary.TopHosts()
	if len(hosts) != 3 {
		t.Fatalf("got %d hosts, want 3", len(hosts))
	}
	if hosts[0] != "also-three.com" || hosts[1] != "three.example.com" {
		t.Errorf("TopHosts() = %v, want busiest first with ties alphabetical", hosts)
	}
	if hosts[2] != "one.example.com" {
		t.Errorf("TopHosts() = %v", hosts)
	}
}

func TestSummarize(t *testing.T) {
	dir := writeCaptureDir(t,
		[]string{
			`{"id": 1, "method": "GET", "url": "https://firmware.sena.com/50s.bin", "headers": {}, "timestamp": 1.0}`,
		},
		[]string{
			`{"id": 1, "status_code": 200, "headers": {"Content-Type": "application/octet-stream"}, "content_length": 4096, "timestamp": 1.5}`,
		},
	)
	for _, name := range []string{"firmware_1.bin", "firmware_3.bin"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte{0xde, 0xad}, 0644); err != nil {
			t.Fatalf("failed to write firmware dump: %v", err)
		}
	}

	summary, err := Summarize(dir)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary.RequestCount != 1 || summary.ResponseCount != 1 {
		t.Errorf("counts = %d/%d, want 1/1", summary.RequestCount, summary.ResponseCount)
	}
	if len(summary.SavedFirmware) != 2 {
		t.Fatalf("SavedFirmware = %v, want 2 dumps", summary.SavedFirmware)
	}
	if summary.SavedFirmware[0] != "firmware_1.bin" {
		t.Errorf("SavedFirmware = %v, want sorted names", summary.SavedFirmware)
	}
}

func TestSummarize_NoCapture(t *testing.T) {
	if _, err := Summarize(t.TempDir()); err == nil {
		t.Fatal("Summarize() expected error for empty directory")
	}
}
