package runner

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/muurk/fwprobe/internal/catalog"
)

func TestMacOSRunner_Available(t *testing.T) {
	r := NewMacOSRunner(nil)

	r.goos = "darwin"
	if !r.Available(context.Background()) {
		t.Error("Available() = false on darwin")
	}

	r.goos = "linux"
	if r.Available(context.Background()) {
		t.Error("Available() = true on linux")
	}
}

func TestMacOSRunner_Run_WrongPlatform(t *testing.T) {
	r := NewMacOSRunner(func(string) bool { return true })
	r.goos = "linux"

	_, err := r.Run(context.Background(), "updater.pkg", Options{})
	var platErr *UnsupportedPlatformError
	if !errors.As(err, &platErr) {
		t.Fatalf("Run() error = %v, want *UnsupportedPlatformError", err)
	}
	if platErr.Current != "linux" {
		t.Errorf("Current = %q, want linux", platErr.Current)
	}
}

func TestMacOSRunner_Run_NilConfirmDeclines(t *testing.T) {
	r := NewMacOSRunner(nil)
	r.goos = "darwin"
	exe := writeExecutable(t, "updater")

	_, err := r.Run(context.Background(), exe, Options{})
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("Run() error = %v, want ErrDeclined for nil ConfirmFunc", err)
	}
}

func TestMacOSRunner_Run_ConfirmSeesCommand(t *testing.T) {
	var seen string
	r := NewMacOSRunner(func(command string) bool {
		seen = command
		return false
	})
	r.goos = "darwin"
	exe := writeExecutable(t, "updater")

	_, err := r.Run(context.Background(), exe, Options{Args: []string{"--quiet"}})
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("Run() error = %v, want ErrDeclined", err)
	}
	if !strings.Contains(seen, exe) || !strings.Contains(seen, "--quiet") {
		t.Errorf("confirmation prompt %q does not show the full command", seen)
	}
}

func TestMacOSRunner_Run_DirectExecution(t *testing.T) {
	r := NewMacOSRunner(func(string) bool { return true })
	r.goos = "darwin"
	exe := writeMockTool(t, "updater", `#!/bin/sh
echo "updater ran: $@"
`)

	result, err := r.Run(context.Background(), exe, Options{Args: []string{"--check"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if !strings.Contains(result.Stdout, "updater ran: --check") {
		t.Errorf("Stdout = %q, want direct execution output", result.Stdout)
	}
}

func TestMacOSRunner_Run_DiskImageGoesThroughOpen(t *testing.T) {
	r := NewMacOSRunner(func(string) bool { return true })
	r.goos = "darwin"
	r.OpenPath = writeMockTool(t, "open", `#!/bin/sh
echo "open: $1"
`)
	exe := writeExecutable(t, "SenaDeviceManager.DMG")

	result, err := r.Run(context.Background(), exe, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(result.Stdout, "open: "+exe) {
		t.Errorf("Stdout = %q, want the disk image handed to open", result.Stdout)
	}
}

func TestMacOSRunner_Run_UpdaterExitCode(t *testing.T) {
	r := NewMacOSRunner(func(string) bool { return true })
	r.goos = "darwin"
	exe := writeMockTool(t, "updater", `#!/bin/sh
echo "no device connected" >&2
exit 2
`)

	result, err := r.Run(context.Background(), exe, Options{
		USBDevices: []*catalog.USBDevice{
			{Key: "sena", VendorID: "0x0003", ProductID: "0x092b"},
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v, want nil for non-zero exit", err)
	}
	if result.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", result.ExitCode)
	}
	if !strings.Contains(result.Stderr, "no device connected") {
		t.Errorf("Stderr = %q, want updater stderr", result.Stderr)
	}
}

func TestMacOSRunner_Run_MissingExecutable(t *testing.T) {
	r := NewMacOSRunner(func(string) bool { return true })
	r.goos = "darwin"

	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "ghost.pkg"), Options{})
	var missingErr *MissingExecutableError
	if !errors.As(err, &missingErr) {
		t.Fatalf("Run() error = %v, want *MissingExecutableError", err)
	}
}
