package proxy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeMockMitmdump installs a stub mitmdump. The stub answers the
// --version probe and otherwise runs the given body.
func writeMockMitmdump(t *testing.T, dir, body string) string {
	t.Helper()
	mock := filepath.Join(dir, "mock-mitmdump")
	script := `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "mitmdump 10.1.5"
  exit 0
fi
` + body
	if err := os.WriteFile(mock, []byte(script), 0755); err != nil {
		t.Fatalf("failed to create mock mitmdump: %v", err)
	}
	return mock
}

// newTestManager returns a Manager with short grace windows pointed at
// a temp output directory.
func newTestManager(t *testing.T, mitmdump string) *Manager {
	t.Helper()
	m := New(18080, filepath.Join(t.TempDir(), "mitmproxy"))
	m.MitmdumpPath = mitmdump
	m.StartupGrace = 300 * time.Millisecond
	m.ShutdownGrace = 500 * time.Millisecond
	return m
}

func TestNew_Defaults(t *testing.T) {
	m := New(0, "")
	if m.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", m.Port, DefaultPort)
	}
	if m.OutputDir != DefaultOutputDir {
		t.Errorf("OutputDir = %q, want %q", m.OutputDir, DefaultOutputDir)
	}
	if m.StartupGrace != DefaultStartupGrace {
		t.Errorf("StartupGrace = %v, want %v", m.StartupGrace, DefaultStartupGrace)
	}
	if m.ShutdownGrace != DefaultShutdownGrace {
		t.Errorf("ShutdownGrace = %v, want %v", m.ShutdownGrace, DefaultShutdownGrace)
	}
}

func TestManager_Paths(t *testing.T) {
	m := New(8080, "working/mitmproxy")

	if got := m.FlowFile(); got != filepath.Join("working/mitmproxy", "traffic.mitm") {
		t.Errorf("FlowFile() = %q", got)
	}
	if got := m.RequestLog(); got != filepath.Join("working/mitmproxy", "requests.jsonl") {
		t.Errorf("RequestLog() = %q", got)
	}
	if got := m.ResponseLog(); got != filepath.Join("working/mitmproxy", "responses.jsonl") {
		t.Errorf("ResponseLog() = %q", got)
	}
	if got := m.ProxyURL(); got != "http://127.0.0.1:8080" {
		t.Errorf("ProxyURL() = %q", got)
	}
}

func TestManager_WriteAddon(t *testing.T) {
	m := New(8080, t.TempDir())

	path, err := m.WriteAddon()
	if err != nil {
		t.Fatalf("WriteAddon() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read addon: %v", err)
	}
	content := string(data)

	for _, want := range []string{"requests.jsonl", "responses.jsonl", "OUTDIR", "firmware_", ".bin", ".hex", ".fw", ".firmware"} {
		if !strings.Contains(content, want) {
			t.Errorf("addon missing %q", want)
		}
	}
}

func TestManager_Start_NotInstalled(t *testing.T) {
	m := newTestManager(t, filepath.Join(t.TempDir(), "no-such-mitmdump"))

	err := m.Start(context.Background())
	if err == nil {
		t.Fatal("Start() error = nil, want NotInstalledError")
	}

	var notInstalled *NotInstalledError
	if !errors.As(err, &notInstalled) {
		t.Fatalf("Start() error = %T, want *NotInstalledError", err)
	}
	if !strings.Contains(notInstalled.Error(), "pip install mitmproxy") {
		t.Errorf("error %q missing install hint", notInstalled.Error())
	}
}

func TestManager_Start_FailFast(t *testing.T) {
	tempDir := t.TempDir()
	mock := writeMockMitmdump(t, tempDir, `echo "Error: Address already in use" >&2
exit 1
`)
	m := newTestManager(t, mock)

	err := m.Start(context.Background())
	if err == nil {
		t.Fatal("Start() error = nil, want StartError")
	}

	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("Start() error = %T, want *StartError", err)
	}
	if startErr.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", startErr.ExitCode)
	}
	if !strings.Contains(startErr.Output, "Address already in use") {
		t.Errorf("Output = %q, want captured stderr", startErr.Output)
	}
	if m.Running() {
		t.Error("Running() = true after failed start")
	}
}

func TestManager_StartStop(t *testing.T) {
	tempDir := t.TempDir()
	mock := writeMockMitmdump(t, tempDir, `exec sleep 30
`)
	m := newTestManager(t, mock)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !m.Running() {
		t.Fatal("Running() = false after successful start")
	}
	if m.Pid() == 0 {
		t.Error("Pid() = 0 for running proxy")
	}

	// The addon must be on disk for mitmdump to have loaded it.
	if _, err := os.Stat(filepath.Join(m.OutputDir, addonFileName)); err != nil {
		t.Errorf("addon not written before launch: %v", err)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if m.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestManager_Start_ArgsAndEnv(t *testing.T) {
	tempDir := t.TempDir()
	argsFile := filepath.Join(tempDir, "invocation")
	mock := writeMockMitmdump(t, tempDir, `echo "$@" > `+argsFile+`
echo "OUTDIR=$OUTDIR" >> `+argsFile+`
exec sleep 30
`)
	m := newTestManager(t, mock)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = m.Stop() }()

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("stub never recorded its invocation: %v", err)
	}
	invocation := string(data)

	for _, want := range []string{
		"-p 18080",
		"-s " + filepath.Join(m.OutputDir, "firmware_addon.py"),
		"-w " + m.FlowFile(),
		"--set block_global=false",
		"--ssl-insecure",
		"OUTDIR=" + m.OutputDir,
	} {
		if !strings.Contains(invocation, want) {
			t.Errorf("invocation missing %q:\n%s", want, invocation)
		}
	}
}

func TestManager_Stop_EscalatesToKill(t *testing.T) {
	tempDir := t.TempDir()
	mock := writeMockMitmdump(t, tempDir, `trap "" TERM
while true; do sleep 1; done
`)
	m := newTestManager(t, mock)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	stopped := time.Now()
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	elapsed := time.Since(stopped)

	if elapsed < m.ShutdownGrace {
		t.Errorf("Stop() returned in %v, want at least the %v grace window", elapsed, m.ShutdownGrace)
	}
	if m.Running() {
		t.Error("Running() = true after kill escalation")
	}
}

func TestManager_Stop_NotRunning(t *testing.T) {
	m := New(8080, t.TempDir())
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() on idle manager error = %v, want nil", err)
	}
}

func TestManager_Start_AlreadyRunning(t *testing.T) {
	tempDir := t.TempDir()
	mock := writeMockMitmdump(t, tempDir, `exec sleep 30
`)
	m := newTestManager(t, mock)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = m.Stop() }()

	if err := m.Start(context.Background()); err == nil {
		t.Error("second Start() error = nil, want already-running error")
	}
}

func TestManager_Installed(t *testing.T) {
	tempDir := t.TempDir()
	mock := writeMockMitmdump(t, tempDir, `exit 0
`)

	m := New(8080, tempDir)
	m.MitmdumpPath = mock
	if !m.Installed(context.Background()) {
		t.Error("Installed() = false for working stub")
	}

	m.MitmdumpPath = filepath.Join(tempDir, "absent")
	if m.Installed(context.Background()) {
		t.Error("Installed() = true for missing binary")
	}
}
