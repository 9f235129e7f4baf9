package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/fwprobe/internal/logging"
)

const (
	// DefaultWinePath is the wine binary, resolved via PATH
	DefaultWinePath = "wine"

	// DefaultPrefixName is the WINEPREFIX directory created under the
	// user's home when none is configured
	DefaultPrefixName = ".wine-fwprobe"
)

// WineRunner executes Windows updaters through Wine. USB passthrough is
// outside Wine's reach, so USB devices in the options are reported but
// not wired up.
type WineRunner struct {
	// Prefix is the WINEPREFIX directory; empty selects
	// ~/.wine-fwprobe. Created on first run.
	Prefix string

	// WinePath is the wine binary to launch
	WinePath string
}

// NewWineRunner creates a runner with the default prefix and binary.
func NewWineRunner() *WineRunner {
	return &WineRunner{WinePath: DefaultWinePath}
}

// Name implements Runner.
func (r *WineRunner) Name() string {
	return "wine"
}

// Available reports whether wine runs at all.
func (r *WineRunner) Available(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return exec.CommandContext(checkCtx, r.WinePath, "--version").Run() == nil
}

// Run executes a Windows binary under Wine with the capture proxy
// injected through the environment.
func (r *WineRunner) Run(ctx context.Context, executable string, opts Options) (*Result, error) {
	if !r.Available(ctx) {
		return nil, &NotInstalledError{
			Tool: "wine",
			Hint: "Install Wine to run Windows updaters: sudo apt-get install wine, or brew install wine-stable.",
		}
	}

	if _, err := os.Stat(executable); err != nil {
		return nil, &MissingExecutableError{Path: executable}
	}

	prefix, err := r.prefixDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(prefix, 0755); err != nil {
		return nil, fmt.Errorf("failed to create wine prefix %s: %w", prefix, err)
	}

	env := append(os.Environ(),
		"WINEPREFIX="+prefix,
		"WINEDEBUG=-all",
	)
	if opts.ProxyHost != "" {
		proxyURL := fmt.Sprintf("http://%s:%d", opts.ProxyHost, opts.ProxyPort)
		env = append(env, "http_proxy="+proxyURL, "https_proxy="+proxyURL)
	}

	if len(opts.USBDevices) > 0 {
		for _, dev := range opts.USBDevices {
			logging.Warn("wine cannot pass through USB devices",
				zap.String("device", dev.Key),
				zap.String("id", dev.VendorID+":"+dev.ProductID),
				zap.String("hint", "use the VirtualBox runner for USB passthrough"),
			)
		}
	}

	args := append([]string{executable}, opts.Args...)
	logging.LogCommand(r.WinePath, args)
	logging.Info("running updater under wine",
		zap.String("executable", executable),
		zap.String("prefix", prefix),
	)

	cmd := exec.CommandContext(ctx, r.WinePath, args...)
	cmd.Env = env

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
			return nil, fmt.Errorf("failed to run wine: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	logging.LogProcess("wine", cmd.Process.Pid, fmt.Sprintf("exited with code %d", exitCode))

	return &Result{
		ExitCode: exitCode,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: duration,
	}, nil
}

// prefixDir resolves the effective WINEPREFIX.
func (r *WineRunner) prefixDir() (string, error) {
	if r.Prefix != "" {
		return r.Prefix, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory for wine prefix: %w", err)
	}
	return filepath.Join(home, DefaultPrefixName), nil
}
