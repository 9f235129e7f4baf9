package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/fwprobe/internal/analyze"
	"github.com/muurk/fwprobe/internal/catalog"
	"github.com/muurk/fwprobe/internal/config"
	"github.com/muurk/fwprobe/internal/download"
	"github.com/muurk/fwprobe/internal/investigate"
	"github.com/muurk/fwprobe/internal/logging"
	"github.com/muurk/fwprobe/internal/runner"
	"github.com/muurk/fwprobe/internal/ui"
)

// Command flags
var (
	workingDir string
	platform   string
	verbose    bool // Show captured tool output

	downloadVendor string
	downloadForce  bool

	stringsFile      string
	stringsMinLength int

	runVendor     string
	runRunnerName string
	runVMName     string
	runProxyHost  string
	runProxyPort  int

	e2eVendors      []string
	e2eForce        bool
	e2eSkipDownload bool
	e2eSkipStrings  bool
	e2eSkipRun      bool
	e2eProxyPort    int
	e2eVMName       string
	e2eSettle       string
)

func init() {
	// Common flags for all commands (persistent on root)
	rootCmd.PersistentFlags().StringVar(&workingDir, "working-dir", download.DefaultWorkingDir, "Directory for downloads, reports and captures")
	rootCmd.PersistentFlags().StringVar(&platform, "platform", "auto", "Download platform variant (windows, darwin, auto)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed tool output")

	// Add subcommands
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(stringsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(e2eCmd)
	rootCmd.AddCommand(checkCmd)
}

// resolvePlatform maps the --platform flag to a catalog platform tag.
// "auto" means the current OS; the catalog resolves tags it has no
// build for to the vendor's Windows variant.
func resolvePlatform() string {
	if platform == "auto" {
		return ""
	}
	return platform
}

// vendorLabel names the vendor selection for header display
func vendorLabel(vendor string) string {
	if vendor == "" {
		return "all vendors"
	}
	return vendor
}

// formatSize renders a byte count the way download progress usually
// reads
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	case bytes >= 1024:
		return fmt.Sprintf("%.1f kB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// downloadCmd implements the 'download' command
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download vendor updater packages",
	Long: `Download the official updater package for one or every vendor.

Packages land in the working directory under their catalog filenames.
A file that already exists is left untouched unless --force is set, so
repeated runs are cheap and previously captured installers survive.

The --platform flag picks the download variant. Vendors without a
build for the requested platform fall back to their Windows package,
which is also what the Wine and VirtualBox runners execute.`,
	Example: `  # Download every vendor's updater
  fwprobe download

  # Download a single vendor
  fwprobe download --vendor sena

  # Re-download even if the file already exists
  fwprobe download --vendor sena --force

  # Fetch the macOS variants instead
  fwprobe download --platform darwin`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVar(&downloadVendor, "vendor", "", "Catalog vendor key (empty = all vendors)")
	downloadCmd.Flags().BoolVar(&downloadForce, "force", false, "Re-download files that already exist")
}

func runDownload(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	logging.InitializeFromEnv()

	ui.PrintCommandHeader(
		"Updater Download",
		"fwprobe download",
		map[string]string{
			"Working Dir": workingDir,
			"Platform":    platform,
			"Vendors":     vendorLabel(downloadVendor),
		},
	)

	downloader := download.New(workingDir, resolvePlatform())
	downloader.Force = downloadForce

	ctx := context.Background()
	var results []*download.Result
	var err error
	if downloadVendor != "" {
		var result *download.Result
		result, err = downloader.Download(ctx, downloadVendor)
		if result != nil {
			results = append(results, result)
		}
	} else {
		results, err = downloader.DownloadAll(ctx)
	}

	if err != nil {
		ui.PrintFailure("Download failed", err, []string{
			"Check network connectivity to the vendor download site",
			"Vendor portals occasionally move downloads; compare URLs with 'fwprobe devices'",
			"Retry a single vendor with --vendor",
		})
		return err
	}

	details := make(map[string]string, len(results))
	for _, result := range results {
		if result.Skipped {
			details[result.Vendor] = filepath.Base(result.Path) + " (already present, skipped)"
			continue
		}
		details[result.Vendor] = fmt.Sprintf("%s (%s)", filepath.Base(result.Path), formatSize(result.Bytes))
	}
	ui.PrintSuccess("Download complete", details)
	return nil
}

// stringsCmd implements the 'strings' command
var stringsCmd = &cobra.Command{
	Use:   "strings",
	Short: "Extract printable strings from updater binaries",
	Long: `Run the binutils strings tool over downloaded updater packages.

Embedded URLs, hostnames and version markers in an updater binary are
the fastest pointer to where its firmware actually comes from. Reports
are written to <working-dir>/strings_analysis/<binary>.txt, one file
per analyzed package.

Without --file every updater package in the working directory is
analyzed. Individual failures are reported and do not stop the rest.`,
	Example: `  # Analyze every downloaded updater
  fwprobe strings

  # Analyze one specific binary
  fwprobe strings --file working/SenaDeviceManager_Setup.exe

  # Only report longer strings (less noise)
  fwprobe strings --min-length 8`,
	RunE: runStrings,
}

func init() {
	stringsCmd.Flags().StringVar(&stringsFile, "file", "", "Analyze one file instead of the whole working directory")
	stringsCmd.Flags().IntVar(&stringsMinLength, "min-length", analyze.DefaultMinLength, "Shortest printable run to report")
}

func runStrings(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	logging.InitializeFromEnv()

	target := stringsFile
	if target == "" {
		target = workingDir
	}
	ui.PrintCommandHeader(
		"Strings Analysis",
		"fwprobe strings",
		map[string]string{
			"Target":     target,
			"Min Length": strconv.Itoa(stringsMinLength),
			"Reports":    filepath.Join(workingDir, analyze.OutputDirName),
		},
	)

	analyzer := analyze.New()
	analyzer.MinLength = stringsMinLength
	outDir := filepath.Join(workingDir, analyze.OutputDirName)
	ctx := context.Background()

	if stringsFile != "" {
		outputFile := filepath.Join(outDir, analyze.OutputName(stringsFile))
		found, err := analyzer.Analyze(ctx, stringsFile, outputFile)
		if err != nil {
			ui.PrintFailure("Strings analysis failed", err, []string{
				"Install binutils: apt install binutils (Linux) or xcode-select --install (macOS)",
				"Check the file path; downloads land in " + workingDir,
			})
			return err
		}

		ui.PrintSuccess("Strings analysis complete", map[string]string{
			"Input":   stringsFile,
			"Strings": strconv.Itoa(len(found)),
			"Report":  outputFile,
		})
		if verbose && len(found) > 0 {
			sample := found
			if len(sample) > 40 {
				sample = sample[:40]
			}
			ui.PrintToolOutput("Extracted Strings (first 40)", strings.Join(sample, "\n"))
		}
		return nil
	}

	results, failures, err := analyzer.AnalyzeAll(ctx, workingDir, outDir)
	if err != nil {
		ui.PrintFailure("Strings analysis failed", err, []string{
			"Run 'fwprobe download' first so there is something to analyze",
			"Check that the working directory exists: " + workingDir,
		})
		return err
	}

	if len(results) == 0 && len(failures) == 0 {
		ui.PrintWarning("Nothing to analyze", map[string]string{
			"Working Dir": workingDir,
			"Next step":   "Run 'fwprobe download' to fetch updater packages",
		})
		return nil
	}

	details := make(map[string]string, len(results))
	for name, result := range results {
		details[name] = fmt.Sprintf("%d strings → %s", result.Count, result.OutputFile)
	}
	ui.PrintSuccess("Strings analysis complete", details)

	if len(failures) > 0 {
		failed := make(map[string]string, len(failures))
		for name, ferr := range failures {
			failed[name] = ferr.Error()
		}
		ui.PrintWarning("Some files failed", failed)
	}
	return nil
}

// runCmd implements the 'run' command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a vendor's updater through a runner",
	Long: `Execute a downloaded updater through the best available runner.

Runners in preference order:
  virtualbox  Windows VM via VBoxManage, with USB passthrough so the
              updater sees the (real or faked) headset
  wine        Wine with an isolated prefix under the working directory
  macos       direct execution on macOS, after confirmation

By default the runner is probed automatically. Point the updater at a
running capture proxy with --proxy-port so its traffic is recorded.`,
	Example: `  # Run the Sena updater with automatic runner selection
  fwprobe run --vendor sena

  # Force Wine and route traffic through a capture proxy
  fwprobe run --vendor sena --runner wine --proxy-port 8080

  # Use a specific VirtualBox VM
  fwprobe run --vendor cardo --runner virtualbox --vm-name win10-lab`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runVendor, "vendor", "", "Catalog vendor key (required)")
	runCmd.Flags().StringVar(&runRunnerName, "runner", "auto", "Runner to use (auto, virtualbox, wine, macos)")
	runCmd.Flags().StringVar(&runVMName, "vm-name", runner.DefaultVMName, "VirtualBox VM name")
	runCmd.Flags().StringVar(&runProxyHost, "proxy-host", "127.0.0.1", "Capture proxy host for the updater's traffic")
	runCmd.Flags().IntVar(&runProxyPort, "proxy-port", 0, "Capture proxy port (0 = no proxy)")
	runCmd.MarkFlagRequired("vendor")
}

func runRun(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	logging.InitializeFromEnv()

	ui.PrintCommandHeader(
		"Updater Execution",
		"fwprobe run",
		map[string]string{
			"Vendor": runVendor,
			"Runner": runRunnerName,
			"Proxy":  proxyLabel(runProxyHost, runProxyPort),
		},
	)

	downloader := download.New(workingDir, resolvePlatform())
	dl, err := downloader.Resolve(runVendor)
	if err != nil {
		ui.PrintFailure("Updater execution failed", err, []string{
			"List known vendors with 'fwprobe devices'",
		})
		return err
	}

	executable := filepath.Join(workingDir, dl.Filename)
	if _, err := os.Stat(executable); err != nil {
		ui.PrintFailure("Updater not downloaded",
			fmt.Errorf("%s does not exist", executable),
			[]string{
				fmt.Sprintf("Download it first: fwprobe download --vendor %s", runVendor),
			})
		return fmt.Errorf("updater not downloaded: %s", executable)
	}

	ctx := context.Background()
	selected, err := selectRunner(ctx)
	if err != nil {
		ui.PrintFailure("No runner available", err, []string{
			"Install Wine: apt install wine (Linux) or brew install --cask wine-stable (macOS)",
			"Or install VirtualBox and create a Windows VM named " + runVMName,
			"Run 'fwprobe check' for the full capability report",
		})
		return err
	}

	opts := runner.Options{}
	if runProxyPort > 0 {
		opts.ProxyHost = runProxyHost
		opts.ProxyPort = runProxyPort
	}
	cat, err := catalog.Load()
	if err != nil {
		return err
	}
	if usbDev, ok := cat.USBDevice(runVendor); ok {
		opts.USBDevices = []*catalog.USBDevice{usbDev}
	}

	ui.PrintPleaseWait("Running updater", "updaters are interactive, close them to finish")
	result, err := selected.Run(ctx, executable, opts)
	if err != nil {
		if errors.Is(err, runner.ErrDeclined) {
			ui.PrintWarning("Run cancelled", map[string]string{
				"Reason": "execution was not confirmed",
			})
			return nil
		}
		ui.PrintFailure("Updater execution failed", err, []string{
			"Run 'fwprobe check' to verify the runner's tool is installed",
			"Run with --verbose for full tool output",
		})
		return err
	}

	ui.PrintSuccess("Updater run finished", map[string]string{
		"Runner":    selected.Name(),
		"Exit Code": strconv.Itoa(result.ExitCode),
		"Duration":  result.Duration.String(),
	})
	if verbose && (result.Stdout != "" || result.Stderr != "") {
		ui.PrintToolOutput("Updater Output", strings.TrimSpace(result.Stdout+"\n"+result.Stderr))
	}
	return nil
}

// selectRunner resolves the --runner flag to a concrete runner. "auto"
// probes VirtualBox first (USB passthrough), then Wine, then native
// macOS execution.
func selectRunner(ctx context.Context) (runner.Runner, error) {
	wineRunner := runner.NewWineRunner()
	wineRunner.Prefix = filepath.Join(workingDir, "wine_prefix")

	switch runRunnerName {
	case "auto":
		return runner.Select(ctx,
			runner.NewVirtualBoxRunner(runVMName),
			wineRunner,
			runner.NewMacOSRunner(ui.NativeRunConfirmation),
		)
	case "virtualbox":
		return runner.NewVirtualBoxRunner(runVMName), nil
	case "wine":
		return wineRunner, nil
	case "macos":
		return runner.NewMacOSRunner(ui.NativeRunConfirmation), nil
	default:
		return nil, fmt.Errorf("unknown runner %q (want auto, virtualbox, wine, or macos)", runRunnerName)
	}
}

func proxyLabel(host string, port int) string {
	if port <= 0 {
		return "disabled"
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// e2eCmd implements the 'e2e' command
var e2eCmd = &cobra.Command{
	Use:   "e2e",
	Short: "Run the full investigation workflow",
	Long: `Run the complete investigation pipeline for one or more vendors:

  1. Download each vendor's updater package
  2. Extract strings from every package
  3. Start the mitmproxy capture proxy
  4. Run each updater through the best available runner
  5. Stop the capture and summarize the recorded traffic

Only a download failure aborts the run. A proxy that will not start, a
host with no runner, and per-vendor execution failures all degrade the
run and are reported at the end, because a partial capture is still
worth having.`,
	Example: `  # Investigate every vendor
  fwprobe e2e

  # One vendor, reusing existing downloads
  fwprobe e2e --vendor sena --skip-download

  # Analysis only, no updater execution
  fwprobe e2e --skip-run

  # Capture on a different proxy port
  fwprobe e2e --port 9090`,
	RunE: runE2E,
}

func init() {
	e2eCmd.Flags().StringSliceVar(&e2eVendors, "vendor", nil, "Vendor keys to investigate (repeatable; empty = all)")
	e2eCmd.Flags().BoolVar(&e2eForce, "force", false, "Re-download packages that already exist")
	e2eCmd.Flags().BoolVar(&e2eSkipDownload, "skip-download", false, "Reuse whatever is already in the working dir")
	e2eCmd.Flags().BoolVar(&e2eSkipStrings, "skip-strings", false, "Skip the strings analysis step")
	e2eCmd.Flags().BoolVar(&e2eSkipRun, "skip-run", false, "Skip updater execution")
	e2eCmd.Flags().IntVar(&e2eProxyPort, "port", 8080, "Capture proxy listen port")
	e2eCmd.Flags().StringVar(&e2eVMName, "vm-name", runner.DefaultVMName, "VirtualBox VM name")
	e2eCmd.Flags().StringVar(&e2eSettle, "settle", "2s", "How long the capture keeps running after updaters finish")
}

func runE2E(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	logging.InitializeFromEnv()

	settle, err := time.ParseDuration(e2eSettle)
	if err != nil {
		ui.PrintFailure("Invalid arguments", fmt.Errorf("invalid --settle value: %w", err), []string{
			"Use a duration like 2s, 500ms, or 1m",
		})
		return fmt.Errorf("invalid --settle value: %w", err)
	}

	workflow := investigate.NewWorkflow(workingDir)
	workflow.Vendors = e2eVendors
	workflow.ProxyPort = e2eProxyPort
	workflow.VMName = e2eVMName
	workflow.SkipDownload = e2eSkipDownload
	workflow.SkipStrings = e2eSkipStrings
	workflow.SkipRun = e2eSkipRun
	workflow.Force = e2eForce
	workflow.SettleDelay = settle
	if platform != "auto" {
		workflow.Platform = platform
	}

	steps := ui.NewStepRunner(ui.StepRunnerConfig{
		Title:   "Firmware Investigation",
		Command: "fwprobe e2e",
		Params: map[string]string{
			"Working Dir": workingDir,
			"Vendors":     vendorLabel(strings.Join(e2eVendors, ", ")),
			"Proxy Port":  strconv.Itoa(e2eProxyPort),
		},
		TotalSteps: 5,
		StepNames: []string{
			"Download updaters",
			"Strings analysis",
			"Start capture proxy",
			"Run updaters",
			"Stop capture",
		},
		Verbose: verbose,
	})

	var report *investigate.Report
	_, err = steps.RunWithResult(context.Background(), func(onStep ui.StepCallback) (map[string]string, error) {
		workflow.OnStep = func(event investigate.StepEvent) {
			onStep(event.Step, event.Name, stepStatusFor(event.Status), event.Detail)
		}
		var runErr error
		report, runErr = workflow.Run(context.Background())
		if runErr != nil {
			return nil, runErr
		}
		return e2eDetails(report), nil
	})
	if err != nil {
		return err
	}

	if len(report.Problems) > 0 {
		problems := make(map[string]string, len(report.Problems))
		for i, problem := range report.Problems {
			problems[fmt.Sprintf("Problem %d", i+1)] = problem.Error()
		}
		ui.PrintWarning("Run degraded", problems)
	}

	recordInvestigation(report)
	return nil
}

// stepStatusFor maps workflow step transitions onto progress markers.
// Degraded steps render as failed even though the run continues; the
// final summary says what was lost.
func stepStatusFor(status investigate.StepStatus) ui.StepStatus {
	switch status {
	case investigate.StepCompleted:
		return ui.StepComplete
	case investigate.StepSkipped:
		return ui.StepSkipped
	case investigate.StepDegraded:
		return ui.StepFailed
	default:
		return ui.StepRunning
	}
}

// e2eDetails summarizes a finished run for the success box
func e2eDetails(report *investigate.Report) map[string]string {
	details := map[string]string{
		"Vendors": strings.Join(report.Vendors, ", "),
	}

	skipped := 0
	for _, result := range report.Downloads {
		if result.Skipped {
			skipped++
		}
	}
	if len(report.Downloads) > 0 {
		details["Downloads"] = fmt.Sprintf("%d packages (%d already present)", len(report.Downloads), skipped)
	}
	if len(report.Analyses) > 0 {
		details["Strings Reports"] = strconv.Itoa(len(report.Analyses))
	}

	if report.ProxyCaptured {
		details["Capture"] = report.CaptureDir
	} else {
		details["Capture"] = "not captured (proxy unavailable)"
	}

	if report.RunnerName != "" {
		details["Runner"] = report.RunnerName
	} else if len(report.RunResults) == 0 {
		details["Runner"] = "none available"
	}

	if report.Summary != nil {
		details["Requests"] = strconv.Itoa(report.Summary.RequestCount)
		if len(report.Summary.FirmwareURLs) > 0 {
			details["Firmware URLs"] = strings.Join(report.Summary.FirmwareURLs, ", ")
		}
		if len(report.Summary.SavedFirmware) > 0 {
			details["Saved Firmware"] = strings.Join(report.Summary.SavedFirmware, ", ")
		}
	}
	return details
}

// recordInvestigation remembers the run in the user registry so
// 'fwprobe devices' can show when each vendor was last investigated.
// Registry problems never fail a finished run.
func recordInvestigation(report *investigate.Report) {
	registry, err := config.LoadRegistry()
	if err != nil {
		logging.Debug("skipping registry update: " + err.Error())
		return
	}
	for _, vendor := range report.Vendors {
		registry.RecordInvestigation(vendor, report.CaptureDir)
	}
	if err := registry.Save(); err != nil {
		logging.Debug("failed to save registry: " + err.Error())
	}
}

// checkCmd implements the 'check' command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check which external tools are available",
	Long: `Probe every external tool the investigation workflow can use.

Only the strings tool is required. Each of the others gates a single
capability the workflow degrades around: no mitmdump means no capture,
no wine or VirtualBox means updaters are analyzed but not executed,
no lsusb means USB gadget presence cannot be verified.

Run this first on a new machine to see what an investigation will be
able to do.`,
	Example: `  # Full capability report
  fwprobe check`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	logging.InitializeFromEnv()

	ui.PrintCommandHeader(
		"Prerequisite Check",
		"fwprobe check",
		map[string]string{
			"Host": runtime.GOOS,
		},
	)

	result := investigate.CheckPrerequisites(context.Background())
	fmt.Println(investigate.FormatPrerequisiteReport(result))

	available := 0
	for _, check := range result.Checks {
		if check.Available {
			available++
		}
	}

	if !result.AllAvailable {
		ui.PrintFailure("Required tools are missing",
			fmt.Errorf("%d of %d tools available", available, len(result.Checks)),
			[]string{
				"Install binutils for the strings tool: apt install binutils",
				"Optional tools only disable their own capability",
			})
		return fmt.Errorf("required tools are missing")
	}

	ui.PrintSuccess("Ready to investigate", map[string]string{
		"Available": fmt.Sprintf("%d of %d tools", available, len(result.Checks)),
	})
	return nil
}
