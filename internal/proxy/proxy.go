package proxy

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/fwprobe/internal/logging"
	"github.com/muurk/fwprobe/internal/urls"
)

//go:embed addon/firmware_addon.py
var addonScript []byte

const (
	// DefaultPort is the proxy listen port
	DefaultPort = 8080

	// DefaultOutputDir is where captures land unless overridden
	DefaultOutputDir = "working/mitmproxy"

	// DefaultMitmdumpPath is the mitmdump binary, resolved via PATH
	DefaultMitmdumpPath = "mitmdump"

	// DefaultStartupGrace is how long a freshly started mitmdump gets
	// to fail fast before it counts as running
	DefaultStartupGrace = 2 * time.Second

	// DefaultShutdownGrace is how long Stop waits after SIGTERM before
	// killing the process
	DefaultShutdownGrace = 5 * time.Second
)

// Capture artifact names inside the output directory.
const (
	FlowFileName    = "traffic.mitm"
	RequestLogName  = "requests.jsonl"
	ResponseLogName = "responses.jsonl"
	addonFileName   = "firmware_addon.py"
)

// Manager launches and stops a mitmdump process wired with the capture
// addon. One Manager drives at most one proxy process at a time.
type Manager struct {
	// Port is the proxy listen port
	Port int

	// OutputDir is where the flow file, JSONL logs, and saved firmware
	// bodies are written. Exported to the addon as OUTDIR.
	OutputDir string

	// MitmdumpPath is the mitmdump binary to launch
	MitmdumpPath string

	// StartupGrace is the fail-fast window after launch
	StartupGrace time.Duration

	// ShutdownGrace is the SIGTERM-to-SIGKILL escalation window
	ShutdownGrace time.Duration

	mu     sync.Mutex
	cmd    *exec.Cmd
	done   chan struct{}
	output bytes.Buffer
}

// New creates a Manager with the default grace windows. Zero port or
// empty outputDir select the defaults.
func New(port int, outputDir string) *Manager {
	if port == 0 {
		port = DefaultPort
	}
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	return &Manager{
		Port:          port,
		OutputDir:     outputDir,
		MitmdumpPath:  DefaultMitmdumpPath,
		StartupGrace:  DefaultStartupGrace,
		ShutdownGrace: DefaultShutdownGrace,
	}
}

// Installed reports whether mitmdump runs at all.
func (m *Manager) Installed(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(checkCtx, m.MitmdumpPath, "--version")
	return cmd.Run() == nil
}

// Start launches mitmdump in the background. The process gets
// StartupGrace to exit on its own (bad port, bad addon, missing certs);
// surviving the window counts as started. The error for a fail-fast
// exit carries everything the process printed.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd != nil {
		return fmt.Errorf("proxy already running (pid %d)", m.cmd.Process.Pid)
	}

	if !m.Installed(ctx) {
		return &NotInstalledError{Path: m.MitmdumpPath}
	}

	if err := os.MkdirAll(m.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", m.OutputDir, err)
	}

	addonPath, err := m.WriteAddon()
	if err != nil {
		return err
	}

	args := []string{
		"-p", strconv.Itoa(m.Port),
		"-s", addonPath,
		"-w", m.FlowFile(),
		"--set", "block_global=false",
		"--ssl-insecure",
	}
	logging.LogCommand(m.MitmdumpPath, args)

	cmd := exec.Command(m.MitmdumpPath, args...)
	cmd.Env = append(os.Environ(), "OUTDIR="+m.OutputDir)
	m.output.Reset()
	cmd.Stdout = &m.output
	cmd.Stderr = &m.output

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start mitmdump: %w", err)
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		// Exited inside the grace window: startup failure.
		exitCode := cmd.ProcessState.ExitCode()
		return &StartError{
			Port:     m.Port,
			ExitCode: exitCode,
			Output:   m.output.String(),
		}
	case <-time.After(m.StartupGrace):
	}

	m.cmd = cmd
	m.done = done
	logging.LogProcess("mitmdump", cmd.Process.Pid, "started")
	logging.Info("proxy capturing",
		zap.Int("port", m.Port),
		zap.String("flow_file", m.FlowFile()),
		zap.String("output_dir", m.OutputDir),
	)
	return nil
}

// Stop terminates the proxy, first with SIGTERM so mitmdump can flush
// its flow file, then with SIGKILL after ShutdownGrace. Stopping an
// already stopped Manager is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd == nil {
		return nil
	}

	pid := m.cmd.Process.Pid
	logging.LogProcess("mitmdump", pid, "stopping")

	if err := m.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone.
		m.cmd = nil
		m.done = nil
		return nil
	}

	select {
	case <-m.done:
	case <-time.After(m.ShutdownGrace):
		logging.Warn("mitmdump ignored SIGTERM, killing", zap.Int("pid", pid))
		_ = m.cmd.Process.Kill()
		<-m.done
	}

	logging.LogProcess("mitmdump", pid, "stopped")
	m.cmd = nil
	m.done = nil
	return nil
}

// Running reports whether the managed process is still alive.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// Pid returns the proxy process ID, or 0 when not running.
func (m *Manager) Pid() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd == nil {
		return 0
	}
	return m.cmd.Process.Pid
}

// WriteAddon materializes the embedded capture addon into the output
// directory and returns its path.
func (m *Manager) WriteAddon() (string, error) {
	path := filepath.Join(m.OutputDir, addonFileName)
	if err := os.WriteFile(path, addonScript, 0644); err != nil {
		return "", fmt.Errorf("failed to write capture addon: %w", err)
	}
	return path, nil
}

// ProxyURL returns the http_proxy/https_proxy value for processes that
// should be captured.
func (m *Manager) ProxyURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", m.Port)
}

// FlowFile returns the mitmproxy native flow dump path.
func (m *Manager) FlowFile() string {
	return filepath.Join(m.OutputDir, FlowFileName)
}

// RequestLog returns the JSONL request log path.
func (m *Manager) RequestLog() string {
	return filepath.Join(m.OutputDir, RequestLogName)
}

// ResponseLog returns the JSONL response log path.
func (m *Manager) ResponseLog() string {
	return filepath.Join(m.OutputDir, ResponseLogName)
}

// NotInstalledError indicates mitmdump is missing or broken.
type NotInstalledError struct {
	// Path is the binary that failed the version check
	Path string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("mitmproxy is not installed (%s failed to run)\n"+
		"Install with: pip install mitmproxy\n"+
		"Downloads: %s",
		e.Path, urls.MitmproxyDownload)
}

// StartError indicates mitmdump exited during the startup grace window.
type StartError struct {
	// Port is the requested listen port
	Port int
	// ExitCode is the exit code of the failed process
	ExitCode int
	// Output is the combined stdout/stderr the process printed
	Output string
}

func (e *StartError) Error() string {
	return fmt.Sprintf("mitmproxy failed to start on port %d (exit code %d)\n"+
		"Output:\n%s",
		e.Port, e.ExitCode, e.Output)
}
