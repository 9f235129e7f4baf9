package investigate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newToolDir creates a directory of stub tools and points PATH at it,
// so the workflow sees exactly the tools each test grants.
func newToolDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("PATH", dir)
	return dir
}

// addTool drops a stub binary into the tool dir.
func addTool(t *testing.T, toolDir, name, script string) {
	t.Helper()

	if err := os.WriteFile(filepath.Join(toolDir, name), []byte(script), 0755); err != nil {
		t.Fatalf("failed to write stub %s: %v", name, err)
	}
}

// seedUpdaters pre-populates a working dir as if the download step had
// already run for the windows platform.
func seedUpdaters(t *testing.T, workingDir string, names ...string) {
	t.Helper()

	if err := os.MkdirAll(workingDir, 0755); err != nil {
		t.Fatalf("failed to create working dir: %v", err)
	}
	for _, name := range names {
		path := filepath.Join(workingDir, name)
		if err := os.WriteFile(path, []byte("MZ fake installer"), 0644); err != nil {
			t.Fatalf("failed to seed %s: %v", name, err)
		}
	}
}

const mockStrings = `#!/bin/sh
echo "UpdateEndpoint=https://fw.example.com/latest.bin"
echo "SELECT * FROM devices"
`

func collectEvents(w *Workflow) *[]StepEvent {
	events := &[]StepEvent{}
	w.OnStep = func(e StepEvent) { *events = append(*events, e) }
	return events
}

func eventFor(events []StepEvent, step int, status StepStatus) *StepEvent {
	for i := range events {
		if events[i].Step == step && events[i].Status == status {
			return &events[i]
		}
	}
	return nil
}

func TestNewWorkflow_Defaults(t *testing.T) {
	w := NewWorkflow("")
	if w.WorkingDir != "working" {
		t.Errorf("WorkingDir = %q, want working", w.WorkingDir)
	}
	if w.Platform != DefaultPlatform {
		t.Errorf("Platform = %q, want %q", w.Platform, DefaultPlatform)
	}
	if w.ProxyPort != 8080 {
		t.Errorf("ProxyPort = %d, want 8080", w.ProxyPort)
	}
	if w.SettleDelay != DefaultSettleDelay {
		t.Errorf("SettleDelay = %v, want %v", w.SettleDelay, DefaultSettleDelay)
	}
}

func TestWorkflow_Run_DegradesWithoutProxyOrRunner(t *testing.T) {
	toolDir := newToolDir(t)
	addTool(t, toolDir, "strings", mockStrings)

	workingDir := filepath.Join(t.TempDir(), "working")
	seedUpdaters(t, workingDir,
		"SenaDeviceManager_Setup.exe",
		"CardoUpdater_Setup.exe",
		"bullitt_satellite_messenger.apk",
	)

	w := NewWorkflow(workingDir)
	w.SkipDownload = true
	w.SettleDelay = 10 * time.Millisecond
	events := collectEvents(w)

	report, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(report.Analyses) != 3 {
		t.Errorf("Analyses = %d vendors, want 3", len(report.Analyses))
	}
	for vendor, analysis := range report.Analyses {
		if analysis.Count != 2 {
			t.Errorf("%s string count = %d, want 2", vendor, analysis.Count)
		}
		if _, err := os.Stat(analysis.OutputFile); err != nil {
			t.Errorf("%s report missing at %s", vendor, analysis.OutputFile)
		}
	}

	if report.ProxyCaptured {
		t.Error("ProxyCaptured = true without mitmdump")
	}
	if report.RunnerName != "" {
		t.Errorf("RunnerName = %q, want empty without wine or VirtualBox", report.RunnerName)
	}
	if len(report.RunResults) != 0 {
		t.Errorf("RunResults = %v, want none", report.RunResults)
	}
	if len(report.Problems) < 2 {
		t.Errorf("Problems = %v, want proxy and runner problems recorded", report.Problems)
	}

	if eventFor(*events, 3, StepDegraded) == nil {
		t.Error("no degraded event for the proxy step")
	}
	if eventFor(*events, 4, StepDegraded) == nil {
		t.Error("no degraded event for the runner step")
	}
	if eventFor(*events, 5, StepSkipped) == nil {
		t.Error("cleanup step should be skipped when the proxy never started")
	}
}

func TestWorkflow_Run_ExecutesThroughWine(t *testing.T) {
	toolDir := newToolDir(t)
	addTool(t, toolDir, "strings", mockStrings)
	addTool(t, toolDir, "wine", `#!/bin/sh
if [ "$1" = "--version" ]; then
    echo "wine-9.0"
    exit 0
fi
echo "installer finished"
`)

	workingDir := filepath.Join(t.TempDir(), "working")
	seedUpdaters(t, workingDir,
		"SenaDeviceManager_Setup.exe",
		"CardoUpdater_Setup.exe",
		"bullitt_satellite_messenger.apk",
	)

	w := NewWorkflow(workingDir)
	w.SkipDownload = true
	w.SettleDelay = 10 * time.Millisecond

	report, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.RunnerName != "wine" {
		t.Fatalf("RunnerName = %q, want wine", report.RunnerName)
	}
	if len(report.RunResults) != 2 {
		t.Errorf("RunResults = %d, want sena and cardo", len(report.RunResults))
	}
	for _, vendor := range []string{"sena", "cardo"} {
		result, ok := report.RunResults[vendor]
		if !ok {
			t.Errorf("no run result for %s", vendor)
			continue
		}
		if result.ExitCode != 0 {
			t.Errorf("%s exit code = %d, want 0", vendor, result.ExitCode)
		}
		if !strings.Contains(result.Stdout, "installer finished") {
			t.Errorf("%s stdout = %q", vendor, result.Stdout)
		}
	}

	reason, ok := report.SkippedRuns["motorola"]
	if !ok {
		t.Fatal("motorola should be skipped, .apk is not runnable")
	}
	if !strings.Contains(reason, ".apk") {
		t.Errorf("skip reason = %q, want the extension named", reason)
	}

	if _, err := os.Stat(filepath.Join(workingDir, "wine_prefix")); err != nil {
		t.Errorf("wine prefix not created under the working dir: %v", err)
	}
}

func TestWorkflow_Run_CapturesTraffic(t *testing.T) {
	toolDir := newToolDir(t)
	addTool(t, toolDir, "strings", mockStrings)
	addTool(t, toolDir, "mitmdump", `#!/bin/sh
if [ "$1" = "--version" ]; then
    echo "Mitmproxy: 10.3.1"
    exit 0
fi
echo '{"id": 1, "method": "GET", "url": "https://fw.example.com/latest.bin", "headers": {}, "timestamp": 1.0}' > "$OUTDIR/requests.jsonl"
echo '{"id": 1, "status_code": 200, "headers": {}, "content_length": 512, "timestamp": 1.2}' > "$OUTDIR/responses.jsonl"
exec /bin/sleep 30
`)

	workingDir := filepath.Join(t.TempDir(), "working")
	seedUpdaters(t, workingDir, "SenaDeviceManager_Setup.exe")

	w := NewWorkflow(workingDir)
	w.Vendors = []string{"sena"}
	w.SkipDownload = true
	w.SkipRun = true
	w.SettleDelay = 10 * time.Millisecond
	events := collectEvents(w)

	report, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !report.ProxyCaptured {
		t.Fatalf("ProxyCaptured = false, problems: %v", report.Problems)
	}
	if report.CaptureDir != filepath.Join(workingDir, CaptureDirName) {
		t.Errorf("CaptureDir = %q", report.CaptureDir)
	}

	if report.Summary == nil {
		t.Fatal("Summary = nil, want aggregated capture")
	}
	if report.Summary.RequestCount != 1 || report.Summary.ResponseCount != 1 {
		t.Errorf("Summary counts = %d/%d, want 1/1",
			report.Summary.RequestCount, report.Summary.ResponseCount)
	}
	if len(report.Summary.FirmwareURLs) != 1 {
		t.Errorf("FirmwareURLs = %v, want the .bin download flagged", report.Summary.FirmwareURLs)
	}

	if eventFor(*events, 5, StepCompleted) == nil {
		t.Error("cleanup step should complete when the proxy ran")
	}
}

func TestWorkflow_Run_StringsFailuresAreNonFatal(t *testing.T) {
	toolDir := newToolDir(t)
	addTool(t, toolDir, "strings", `#!/bin/sh
case "$3" in
*Cardo*)
    echo "unreadable file" >&2
    exit 1
    ;;
esac
echo "ok"
`)

	workingDir := filepath.Join(t.TempDir(), "working")
	seedUpdaters(t, workingDir,
		"SenaDeviceManager_Setup.exe",
		"CardoUpdater_Setup.exe",
	)

	w := NewWorkflow(workingDir)
	w.Vendors = []string{"sena", "cardo"}
	w.SkipDownload = true
	w.SkipRun = true
	w.SettleDelay = 10 * time.Millisecond
	events := collectEvents(w)

	report, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, strings failures must not abort", err)
	}

	if _, ok := report.Analyses["sena"]; !ok {
		t.Error("sena analysis missing")
	}
	if _, ok := report.AnalysisErrors["cardo"]; !ok {
		t.Error("cardo failure not recorded")
	}
	if eventFor(*events, 2, StepDegraded) == nil {
		t.Error("strings step should report degraded")
	}
}

func TestWorkflow_Run_UnknownVendorIsFatal(t *testing.T) {
	newToolDir(t)

	w := NewWorkflow(filepath.Join(t.TempDir(), "working"))
	w.Vendors = []string{"nokia"}

	_, err := w.Run(context.Background())
	if err == nil {
		t.Fatal("Run() expected fatal error for unknown vendor")
	}
	if !strings.Contains(err.Error(), "nokia") {
		t.Errorf("error %q should name the vendor", err)
	}
}

func TestWorkflow_Run_SkipsEverything(t *testing.T) {
	newToolDir(t)

	w := NewWorkflow(filepath.Join(t.TempDir(), "working"))
	w.SkipDownload = true
	w.SkipStrings = true
	w.SkipRun = true
	w.SettleDelay = 10 * time.Millisecond
	events := collectEvents(w)

	report, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, step := range []int{1, 2, 4} {
		if eventFor(*events, step, StepSkipped) == nil {
			t.Errorf("step %d should be skipped", step)
		}
	}
	if eventFor(*events, 3, StepDegraded) == nil {
		t.Error("proxy step should degrade without mitmdump")
	}
	if report.Duration <= 0 {
		t.Error("Duration not recorded")
	}
}
