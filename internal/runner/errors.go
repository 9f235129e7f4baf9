package runner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/muurk/fwprobe/internal/urls"
)

// ErrDeclined is returned when the user refuses an interactive
// confirmation prompt.
var ErrDeclined = errors.New("user declined to run the executable")

// NotInstalledError indicates the external tool backing a runner is
// missing.
type NotInstalledError struct {
	// Tool is the binary that could not be found or run
	Tool string
	// Hint suggests how to install it
	Hint string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("%s is not installed\n%s", e.Tool, e.Hint)
}

// MissingExecutableError indicates the updater binary to run does not
// exist.
type MissingExecutableError struct {
	// Path is the missing executable
	Path string
}

func (e *MissingExecutableError) Error() string {
	return fmt.Sprintf("executable not found: %s", e.Path)
}

// VMNotFoundError indicates the configured VirtualBox VM does not
// exist.
type VMNotFoundError struct {
	// VMName is the VM that was looked up
	VMName string
}

func (e *VMNotFoundError) Error() string {
	return fmt.Sprintf("VirtualBox VM %q does not exist\n"+
		"Create a Windows VM with this name first, or pass --vm with an existing one.",
		e.VMName)
}

// UnsupportedPlatformError indicates a runner was used on the wrong
// operating system.
type UnsupportedPlatformError struct {
	// Runner is the runner that refused
	Runner string
	// Current is the host operating system
	Current string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("%s runner cannot be used on %s", e.Runner, e.Current)
}

// UnavailableError indicates no runner on this host can execute
// updaters.
type UnavailableError struct {
	// Candidates are the runner names that were probed, in order
	Candidates []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("no suitable runner found (tried: %s)\n"+
		"Install Wine or VirtualBox to run Windows updaters:\n"+
		"  Wine: sudo apt-get install wine, or brew install wine-stable\n"+
		"  VirtualBox: %s",
		strings.Join(e.Candidates, ", "), urls.VirtualBoxDownload)
}
