package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/fwprobe/internal/logging"
)

// DefaultOpenPath is the macOS open utility.
const DefaultOpenPath = "open"

// openExtensions route through the open utility instead of direct
// execution.
var openExtensions = map[string]bool{
	".pkg": true,
	".dmg": true,
	".app": true,
}

// MacOSRunner executes updaters natively on macOS. Because the binary
// runs directly on the host, nothing happens without an explicit
// confirmation.
type MacOSRunner struct {
	// ConfirmFunc is asked before anything executes. The argument is
	// the exact command line. A nil ConfirmFunc declines every run,
	// which keeps non-interactive use safe.
	ConfirmFunc func(command string) bool

	// OpenPath is the open utility used for .pkg/.dmg/.app payloads
	OpenPath string

	// goos overrides the platform check in tests
	goos string
}

// NewMacOSRunner creates a runner that confirms through the given
// function.
func NewMacOSRunner(confirm func(command string) bool) *MacOSRunner {
	return &MacOSRunner{
		ConfirmFunc: confirm,
		OpenPath:    DefaultOpenPath,
	}
}

// Name implements Runner.
func (r *MacOSRunner) Name() string {
	return "macos"
}

// Available reports whether the host is macOS.
func (r *MacOSRunner) Available(ctx context.Context) bool {
	return r.hostOS() == "darwin"
}

// Run opens installers and disk images through the open utility and
// executes anything else directly, after confirmation.
func (r *MacOSRunner) Run(ctx context.Context, executable string, opts Options) (*Result, error) {
	if r.hostOS() != "darwin" {
		return nil, &UnsupportedPlatformError{Runner: "macos", Current: r.hostOS()}
	}

	info, err := os.Stat(executable)
	if err != nil {
		return nil, &MissingExecutableError{Path: executable}
	}

	for _, dev := range opts.USBDevices {
		logging.Info("USB device available to the application",
			zap.String("device", dev.Key),
			zap.String("id", dev.VendorID+":"+dev.ProductID),
		)
	}

	var name string
	var args []string
	if openExtensions[strings.ToLower(filepath.Ext(executable))] || info.IsDir() {
		name = r.openPath()
		args = []string{executable}
	} else {
		name = executable
		args = opts.Args
	}

	command := strings.Join(append([]string{name}, args...), " ")
	if r.ConfirmFunc == nil || !r.ConfirmFunc(command) {
		return nil, ErrDeclined
	}

	logging.LogCommand(name, args)

	cmd := exec.CommandContext(ctx, name, args...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("failed to run %s: %w", name, err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &Result{
		ExitCode: exitCode,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: duration,
	}, nil
}

func (r *MacOSRunner) hostOS() string {
	if r.goos != "" {
		return r.goos
	}
	return runtime.GOOS
}

func (r *MacOSRunner) openPath() string {
	if r.OpenPath != "" {
		return r.OpenPath
	}
	return DefaultOpenPath
}
