package investigate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/fwprobe/internal/analyze"
	"github.com/muurk/fwprobe/internal/catalog"
	"github.com/muurk/fwprobe/internal/download"
	"github.com/muurk/fwprobe/internal/logging"
	"github.com/muurk/fwprobe/internal/proxy"
	"github.com/muurk/fwprobe/internal/runner"
	"github.com/muurk/fwprobe/internal/traffic"
)

const (
	// DefaultPlatform is the download variant the workflow targets.
	// The runners execute Windows binaries, so "windows" is the only
	// variant worth capturing by default.
	DefaultPlatform = "windows"

	// DefaultSettleDelay is how long the capture keeps running after
	// the updaters finish, so trailing requests still land in the logs
	DefaultSettleDelay = 2 * time.Second

	// CaptureDirName is the mitmproxy output directory under the
	// working dir
	CaptureDirName = "mitmproxy"

	totalSteps = 5
)

// StepStatus describes a step transition reported through OnStep.
type StepStatus int

const (
	// StepStarted marks the beginning of a step
	StepStarted StepStatus = iota
	// StepCompleted marks a step that did its work
	StepCompleted
	// StepSkipped marks a step disabled by configuration
	StepSkipped
	// StepDegraded marks a step that failed but did not stop the run
	StepDegraded
)

// StepEvent is one progress notification.
type StepEvent struct {
	// Step is the 1-based step number
	Step int
	// Total is the number of steps in the workflow
	Total int
	// Name is the step title
	Name string
	// Status is the transition being reported
	Status StepStatus
	// Detail carries step-specific context, such as a package count or
	// the reason a step degraded
	Detail string
}

// Workflow configures one end-to-end investigation run.
type Workflow struct {
	// Vendors are the catalog vendor keys to investigate; empty means
	// all of them
	Vendors []string

	// WorkingDir is where downloads, reports and captures land
	WorkingDir string

	// Platform selects the download variant
	Platform string

	// ProxyPort is the capture proxy listen port
	ProxyPort int

	// VMName is the VirtualBox VM the runner targets
	VMName string

	// SkipDownload reuses whatever is already in the working dir
	SkipDownload bool

	// SkipStrings disables the strings analysis step
	SkipStrings bool

	// SkipRun disables updater execution
	SkipRun bool

	// Force re-downloads packages that already exist
	Force bool

	// SettleDelay overrides DefaultSettleDelay
	SettleDelay time.Duration

	// OnStep receives progress events; nil means no reporting
	OnStep func(StepEvent)
}

// Report collects everything a run produced, including the problems it
// survived.
type Report struct {
	// Vendors are the vendor keys the run covered
	Vendors []string

	// Downloads are the download results, in vendor order
	Downloads []*download.Result

	// Analyses maps vendor key to its strings report
	Analyses map[string]*analyze.Result

	// AnalysisErrors maps vendor key to its strings failure
	AnalysisErrors map[string]error

	// ProxyCaptured reports whether the capture proxy ran
	ProxyCaptured bool

	// CaptureDir is the mitmproxy output directory
	CaptureDir string

	// RunnerName is the runner that executed the updaters, empty when
	// none was available
	RunnerName string

	// RunResults maps vendor key to its updater execution outcome
	RunResults map[string]*runner.Result

	// SkippedRuns maps vendor key to why its updater was not executed
	SkippedRuns map[string]string

	// Summary aggregates the captured traffic, nil when nothing was
	// captured
	Summary *traffic.Summary

	// Problems are the non-fatal failures the run worked around
	Problems []error

	// Duration is the wall-clock time of the whole run
	Duration time.Duration
}

// NewWorkflow creates a workflow with the standard layout and targets.
func NewWorkflow(workingDir string) *Workflow {
	if workingDir == "" {
		workingDir = download.DefaultWorkingDir
	}
	return &Workflow{
		WorkingDir:  workingDir,
		Platform:    DefaultPlatform,
		ProxyPort:   proxy.DefaultPort,
		VMName:      runner.DefaultVMName,
		SettleDelay: DefaultSettleDelay,
	}
}

// Run executes the workflow. The returned error is the fatal kind; the
// problems a run degraded around are in Report.Problems.
func (w *Workflow) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		Analyses:       make(map[string]*analyze.Result),
		AnalysisErrors: make(map[string]error),
		RunResults:     make(map[string]*runner.Result),
		SkippedRuns:    make(map[string]string),
		CaptureDir:     filepath.Join(w.WorkingDir, CaptureDirName),
	}
	defer func() { report.Duration = time.Since(start) }()

	cat, err := catalog.Load()
	if err != nil {
		return report, err
	}
	vendors := w.Vendors
	if len(vendors) == 0 {
		vendors = cat.VendorKeys()
	}
	report.Vendors = vendors

	downloader := download.New(w.WorkingDir, w.Platform)
	downloader.Force = w.Force

	if err := w.runDownloadStep(ctx, report, downloader, vendors); err != nil {
		return report, err
	}
	w.runStringsStep(ctx, report, downloader, vendors)

	manager := proxy.New(w.ProxyPort, report.CaptureDir)
	w.runProxyStep(ctx, report, manager)

	w.runUpdaterStep(ctx, report, cat, downloader, vendors)
	w.runCleanupStep(ctx, report, manager)

	return report, nil
}

// runDownloadStep fetches every vendor package. Any failure here is
// fatal: the rest of the workflow has nothing to work on.
func (w *Workflow) runDownloadStep(ctx context.Context, report *Report, downloader *download.Downloader, vendors []string) error {
	w.notify(1, "Download updaters", StepStarted, "")
	if w.SkipDownload {
		w.notify(1, "Download updaters", StepSkipped, "using existing files")
		return nil
	}

	for _, vendorKey := range vendors {
		result, err := downloader.Download(ctx, vendorKey)
		if err != nil {
			return fmt.Errorf("download failed for %s: %w", vendorKey, err)
		}
		report.Downloads = append(report.Downloads, result)
	}
	w.notify(1, "Download updaters", StepCompleted, fmt.Sprintf("%d packages", len(report.Downloads)))
	return nil
}

// runStringsStep analyzes each downloaded package. Per-package failures
// are recorded and the rest keep going.
func (w *Workflow) runStringsStep(ctx context.Context, report *Report, downloader *download.Downloader, vendors []string) {
	w.notify(2, "Strings analysis", StepStarted, "")
	if w.SkipStrings {
		w.notify(2, "Strings analysis", StepSkipped, "")
		return
	}

	analyzer := analyze.New()
	outDir := filepath.Join(w.WorkingDir, analyze.OutputDirName)

	analyzed := 0
	for _, vendorKey := range vendors {
		path, ok := w.updaterPath(report, downloader, vendorKey)
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			report.Problems = append(report.Problems,
				fmt.Errorf("strings skipped for %s: %s does not exist", vendorKey, path))
			continue
		}

		outputFile := filepath.Join(outDir, analyze.OutputName(path))
		found, err := analyzer.Analyze(ctx, path, outputFile)
		if err != nil {
			report.AnalysisErrors[vendorKey] = err
			logging.Warn("strings analysis failed",
				zap.String("vendor", vendorKey),
				zap.Error(err),
			)
			continue
		}
		report.Analyses[vendorKey] = &analyze.Result{
			Input:      path,
			OutputFile: outputFile,
			Count:      len(found),
		}
		analyzed++
	}

	if len(report.AnalysisErrors) > 0 {
		w.notify(2, "Strings analysis", StepDegraded,
			fmt.Sprintf("%d analyzed, %d failed", analyzed, len(report.AnalysisErrors)))
		return
	}
	w.notify(2, "Strings analysis", StepCompleted, fmt.Sprintf("%d packages", analyzed))
}

// runProxyStep starts the capture proxy. A proxy that will not start
// downgrades the run to uncaptured execution.
func (w *Workflow) runProxyStep(ctx context.Context, report *Report, manager *proxy.Manager) {
	w.notify(3, "Start capture proxy", StepStarted, "")

	if err := manager.Start(ctx); err != nil {
		report.Problems = append(report.Problems, fmt.Errorf("capture proxy unavailable: %w", err))
		w.notify(3, "Start capture proxy", StepDegraded, "continuing without capture")
		return
	}
	report.ProxyCaptured = true
	w.notify(3, "Start capture proxy", StepCompleted, manager.ProxyURL())
}

// runUpdaterStep executes each vendor's updater through the best
// available runner. Per-vendor failures are recorded; a host with no
// runner at all skips the step.
func (w *Workflow) runUpdaterStep(ctx context.Context, report *Report, cat *catalog.Catalog, downloader *download.Downloader, vendors []string) {
	w.notify(4, "Run updaters", StepStarted, "")
	if w.SkipRun {
		w.notify(4, "Run updaters", StepSkipped, "")
		return
	}

	wineRunner := runner.NewWineRunner()
	wineRunner.Prefix = filepath.Join(w.WorkingDir, "wine_prefix")

	selected, err := runner.Select(ctx, runner.NewVirtualBoxRunner(w.VMName), wineRunner)
	if err != nil {
		report.Problems = append(report.Problems, err)
		w.notify(4, "Run updaters", StepDegraded, "no runner available")
		return
	}
	report.RunnerName = selected.Name()

	ran := 0
	for _, vendorKey := range vendors {
		path, ok := w.updaterPath(report, downloader, vendorKey)
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			report.SkippedRuns[vendorKey] = "updater not downloaded"
			continue
		}
		if ext := strings.ToLower(filepath.Ext(path)); ext != ".exe" {
			report.SkippedRuns[vendorKey] = fmt.Sprintf("%s packages are not runnable", ext)
			continue
		}

		opts := runner.Options{}
		if report.ProxyCaptured {
			opts.ProxyHost = "127.0.0.1"
			opts.ProxyPort = w.ProxyPort
		}
		if usbDev, ok := cat.USBDevice(vendorKey); ok {
			opts.USBDevices = []*catalog.USBDevice{usbDev}
		}

		result, err := selected.Run(ctx, path, opts)
		if err != nil {
			report.Problems = append(report.Problems,
				fmt.Errorf("%s updater failed to launch: %w", vendorKey, err))
			continue
		}
		report.RunResults[vendorKey] = result
		ran++
		logging.Info("updater run finished",
			zap.String("vendor", vendorKey),
			zap.String("runner", selected.Name()),
			zap.Int("exit_code", result.ExitCode),
		)
	}

	w.notify(4, "Run updaters", StepCompleted,
		fmt.Sprintf("%d via %s, %d skipped", ran, selected.Name(), len(report.SkippedRuns)))
}

// runCleanupStep waits out trailing requests, stops the capture, and
// summarizes what was recorded.
func (w *Workflow) runCleanupStep(ctx context.Context, report *Report, manager *proxy.Manager) {
	w.notify(5, "Stop capture", StepStarted, "")
	if !report.ProxyCaptured {
		w.notify(5, "Stop capture", StepSkipped, "proxy never started")
		return
	}

	settle := w.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	select {
	case <-time.After(settle):
	case <-ctx.Done():
	}

	if err := manager.Stop(); err != nil {
		report.Problems = append(report.Problems, fmt.Errorf("capture proxy did not stop cleanly: %w", err))
	}

	if summary, err := traffic.Summarize(report.CaptureDir); err == nil {
		report.Summary = summary
	}
	w.notify(5, "Stop capture", StepCompleted, report.CaptureDir)
}

// updaterPath resolves where a vendor's package lives in the working
// dir. Resolution failures are recorded as problems.
func (w *Workflow) updaterPath(report *Report, downloader *download.Downloader, vendorKey string) (string, bool) {
	dl, err := downloader.Resolve(vendorKey)
	if err != nil {
		report.Problems = append(report.Problems, err)
		return "", false
	}
	return filepath.Join(w.WorkingDir, dl.Filename), true
}

func (w *Workflow) notify(step int, name string, status StepStatus, detail string) {
	if w.OnStep == nil {
		return
	}
	w.OnStep(StepEvent{Step: step, Total: totalSteps, Name: name, Status: status, Detail: detail})
}
