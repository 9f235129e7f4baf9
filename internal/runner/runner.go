package runner

import (
	"context"
	"time"

	"github.com/muurk/fwprobe/internal/catalog"
)

// Options carries the optional context for one updater run.
type Options struct {
	// Args are extra arguments passed to the executable
	Args []string

	// USBDevices are the identities the updater should see. How they
	// surface depends on the runner: VirtualBox configures passthrough
	// filters, Wine and macOS can only report them.
	USBDevices []*catalog.USBDevice

	// ProxyHost and ProxyPort point the run at the capture proxy.
	// Empty host means no proxy environment is injected.
	ProxyHost string
	ProxyPort int
}

// Result mirrors the outcome of the launched process.
type Result struct {
	// ExitCode is the process exit status. The updater failing is data,
	// not an error: Run returns a Result for any exit code.
	ExitCode int
	// Stdout is the captured standard output
	Stdout string
	// Stderr is the captured standard error
	Stderr string
	// Duration is how long the run took
	Duration time.Duration
}

// Runner executes an updater binary in some environment. The concrete
// implementations are Wine, a VirtualBox VM with USB passthrough, and
// native execution on macOS.
type Runner interface {
	// Name identifies the runner in logs and progress output
	Name() string

	// Available reports whether this runner can work on this host
	Available(ctx context.Context) bool

	// Run executes the updater. The returned error covers failures to
	// launch; the updater's own exit status lives in the Result.
	Run(ctx context.Context, executable string, opts Options) (*Result, error)
}

// Select probes runners in preference order and returns the first one
// available on this host.
func Select(ctx context.Context, runners ...Runner) (Runner, error) {
	candidates := make([]string, 0, len(runners))
	for _, r := range runners {
		if r.Available(ctx) {
			return r, nil
		}
		candidates = append(candidates, r.Name())
	}
	return nil, &UnavailableError{Candidates: candidates}
}
