package analyze

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeMockStrings installs a shell script standing in for the strings
// binary and returns its path.
func writeMockStrings(t *testing.T, dir, script string) string {
	t.Helper()
	mock := filepath.Join(dir, "mock-strings")
	if err := os.WriteFile(mock, []byte(script), 0755); err != nil {
		t.Fatalf("failed to create mock strings: %v", err)
	}
	return mock
}

func TestNew_Defaults(t *testing.T) {
	a := New()
	if a.MinLength != DefaultMinLength {
		t.Errorf("MinLength = %d, want %d", a.MinLength, DefaultMinLength)
	}
	if a.StringsPath != DefaultStringsPath {
		t.Errorf("StringsPath = %q, want %q", a.StringsPath, DefaultStringsPath)
	}
	if a.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", a.Timeout, DefaultTimeout)
	}
}

func TestAnalyzer_Analyze(t *testing.T) {
	tempDir := t.TempDir()
	mock := writeMockStrings(t, tempDir, `#!/bin/sh
echo "UpdateServer"
echo "https://update.example.com/firmware"
echo "SenaDeviceManager"
`)

	input := filepath.Join(tempDir, "Setup.exe")
	if err := os.WriteFile(input, []byte{0x4d, 0x5a, 0x00}, 0644); err != nil {
		t.Fatalf("failed to create input file: %v", err)
	}

	a := New()
	a.StringsPath = mock

	output := filepath.Join(tempDir, "reports", "Setup_strings.txt")
	extracted, err := a.Analyze(context.Background(), input, output)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	want := []string{
		"UpdateServer",
		"https://update.example.com/firmware",
		"SenaDeviceManager",
	}
	if len(extracted) != len(want) {
		t.Fatalf("Analyze() returned %d strings, want %d", len(extracted), len(want))
	}
	for i, s := range want {
		if extracted[i] != s {
			t.Errorf("extracted[%d] = %q, want %q", i, extracted[i], s)
		}
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("failed to read output file: %v", err)
	}
	if !strings.Contains(string(data), "update.example.com") {
		t.Errorf("output file missing expected content: %q", data)
	}
}

func TestAnalyzer_Analyze_NoOutputFile(t *testing.T) {
	tempDir := t.TempDir()
	mock := writeMockStrings(t, tempDir, `#!/bin/sh
echo "only line"
`)

	input := filepath.Join(tempDir, "tool.dll")
	if err := os.WriteFile(input, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create input file: %v", err)
	}

	a := New()
	a.StringsPath = mock

	extracted, err := a.Analyze(context.Background(), input, "")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(extracted) != 1 || extracted[0] != "only line" {
		t.Errorf("Analyze() = %v, want [only line]", extracted)
	}
}

func TestAnalyzer_Analyze_EmptyOutput(t *testing.T) {
	tempDir := t.TempDir()
	mock := writeMockStrings(t, tempDir, `#!/bin/sh
exit 0
`)

	input := filepath.Join(tempDir, "empty.exe")
	if err := os.WriteFile(input, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create input file: %v", err)
	}

	a := New()
	a.StringsPath = mock

	extracted, err := a.Analyze(context.Background(), input, "")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(extracted) != 0 {
		t.Errorf("Analyze() = %v, want empty", extracted)
	}
}

func TestAnalyzer_Analyze_MissingFile(t *testing.T) {
	a := New()
	_, err := a.Analyze(context.Background(), filepath.Join(t.TempDir(), "absent.exe"), "")
	if err == nil {
		t.Fatal("Analyze() error = nil, want MissingFileError")
	}

	var missingErr *MissingFileError
	if !errors.As(err, &missingErr) {
		t.Fatalf("Analyze() error = %T, want *MissingFileError", err)
	}
}

func TestAnalyzer_Analyze_ToolNotFound(t *testing.T) {
	tempDir := t.TempDir()
	input := filepath.Join(tempDir, "Setup.exe")
	if err := os.WriteFile(input, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create input file: %v", err)
	}

	a := New()
	a.StringsPath = filepath.Join(tempDir, "no-such-strings")

	_, err := a.Analyze(context.Background(), input, "")
	if err == nil {
		t.Fatal("Analyze() error = nil, want ToolNotFoundError")
	}

	var toolErr *ToolNotFoundError
	if !errors.As(err, &toolErr) {
		t.Fatalf("Analyze() error = %T, want *ToolNotFoundError", err)
	}
	if !strings.Contains(toolErr.Error(), "binutils") {
		t.Errorf("error %q missing install hint", toolErr.Error())
	}
}

func TestAnalyzer_Analyze_ToolFails(t *testing.T) {
	tempDir := t.TempDir()
	mock := writeMockStrings(t, tempDir, `#!/bin/sh
echo "cannot read section headers" >&2
exit 2
`)

	input := filepath.Join(tempDir, "corrupt.exe")
	if err := os.WriteFile(input, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create input file: %v", err)
	}

	a := New()
	a.StringsPath = mock

	_, err := a.Analyze(context.Background(), input, "")
	if err == nil {
		t.Fatal("Analyze() error = nil, want ExecutionError")
	}

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Analyze() error = %T, want *ExecutionError", err)
	}
	if execErr.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", execErr.ExitCode)
	}
	if !strings.Contains(execErr.Stderr, "section headers") {
		t.Errorf("Stderr = %q, want section headers message", execErr.Stderr)
	}
}

func TestAnalyzer_Analyze_PassesMinLength(t *testing.T) {
	tempDir := t.TempDir()
	mock := writeMockStrings(t, tempDir, `#!/bin/sh
printf '%s\n' "$*"
`)

	input := filepath.Join(tempDir, "Setup.exe")
	if err := os.WriteFile(input, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create input file: %v", err)
	}

	a := New()
	a.StringsPath = mock
	a.MinLength = 6

	extracted, err := a.Analyze(context.Background(), input, "")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(extracted) != 1 || !strings.HasPrefix(extracted[0], "-n 6 ") {
		t.Errorf("tool args = %v, want -n 6 prefix", extracted)
	}
}

func TestAnalyzer_AnalyzeAll(t *testing.T) {
	tempDir := t.TempDir()
	mock := writeMockStrings(t, tempDir, `#!/bin/sh
echo "shared string"
`)

	workDir := filepath.Join(tempDir, "working")
	if err := os.MkdirAll(workDir, 0755); err != nil {
		t.Fatalf("failed to create working dir: %v", err)
	}
	for _, name := range []string{"Setup.exe", "helper.dll", "messenger.apk", "notes.txt", "traffic.mitm"} {
		if err := os.WriteFile(filepath.Join(workDir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}

	a := New()
	a.StringsPath = mock

	outDir := filepath.Join(workDir, OutputDirName)
	results, failures, err := a.AnalyzeAll(context.Background(), workDir, outDir)
	if err != nil {
		t.Fatalf("AnalyzeAll() error = %v", err)
	}
	if len(failures) != 0 {
		t.Errorf("failures = %v, want none", failures)
	}

	wantAnalyzed := []string{"Setup.exe", "helper.dll", "messenger.apk"}
	if len(results) != len(wantAnalyzed) {
		t.Fatalf("AnalyzeAll() analyzed %d files, want %d: %v", len(results), len(wantAnalyzed), results)
	}
	for _, name := range wantAnalyzed {
		result, ok := results[name]
		if !ok {
			t.Errorf("missing result for %s", name)
			continue
		}
		if result.Count != 1 {
			t.Errorf("%s Count = %d, want 1", name, result.Count)
		}
		if _, err := os.Stat(result.OutputFile); err != nil {
			t.Errorf("output file for %s not written: %v", name, err)
		}
	}

	if _, ok := results["notes.txt"]; ok {
		t.Error("notes.txt was analyzed, want skipped")
	}
}

func TestAnalyzer_AnalyzeAll_PartialFailure(t *testing.T) {
	tempDir := t.TempDir()
	mock := writeMockStrings(t, tempDir, `#!/bin/sh
case "$3" in
*corrupt*) echo "unreadable" >&2; exit 1 ;;
esac
echo "ok"
`)

	workDir := filepath.Join(tempDir, "working")
	if err := os.MkdirAll(workDir, 0755); err != nil {
		t.Fatalf("failed to create working dir: %v", err)
	}
	for _, name := range []string{"good.exe", "corrupt.exe"} {
		if err := os.WriteFile(filepath.Join(workDir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}

	a := New()
	a.StringsPath = mock

	results, failures, err := a.AnalyzeAll(context.Background(), workDir, filepath.Join(workDir, OutputDirName))
	if err != nil {
		t.Fatalf("AnalyzeAll() error = %v", err)
	}

	if _, ok := results["good.exe"]; !ok {
		t.Error("good.exe missing from results")
	}
	if _, ok := failures["corrupt.exe"]; !ok {
		t.Error("corrupt.exe missing from failures")
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Setup.exe", "Setup_strings.txt"},
		{"CardoUpdater_Setup.exe", "CardoUpdater_Setup_strings.txt"},
		{"bullitt_satellite_messenger.apk", "bullitt_satellite_messenger_strings.txt"},
		{"/tmp/working/Setup.exe", "Setup_strings.txt"},
		{"noext", "noext_strings.txt"},
	}

	for _, tt := range tests {
		if got := OutputName(tt.input); got != tt.want {
			t.Errorf("OutputName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
