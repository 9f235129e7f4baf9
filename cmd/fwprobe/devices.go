package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/fwprobe/internal/catalog"
	"github.com/muurk/fwprobe/internal/config"
	"github.com/muurk/fwprobe/internal/discovery"
	"github.com/muurk/fwprobe/internal/fcc"
	"github.com/muurk/fwprobe/internal/gadget"
	"github.com/muurk/fwprobe/internal/logging"
	"github.com/muurk/fwprobe/internal/ui"
)

// Device command flags
var (
	fccTimeout      int
	gadgetForce     bool
	discoverTimeout int
)

func init() {
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(fccCmd)
	rootCmd.AddCommand(gadgetCmd)
	rootCmd.AddCommand(discoverCmd)

	fccCmd.AddCommand(fccListCmd)
	fccCmd.AddCommand(fccDeviceCmd)
	fccCmd.AddCommand(fccIDCmd)

	gadgetCmd.AddCommand(gadgetSetupCmd)
	gadgetCmd.AddCommand(gadgetCheckCmd)
	gadgetCmd.AddCommand(gadgetCleanupCmd)
}

// devicesCmd lists everything the catalog knows
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List cataloged vendors, devices and USB identities",
	Long: `List the built-in device catalog.

The catalog drives everything else: vendor download URLs, FCC records
for regulatory lookups, and the USB identities the gadget faker can
present. Devices previously investigated on this machine show their
last run from the user registry.`,
	Example: `  # Show the full catalog
  fwprobe devices`,
	RunE: runDevices,
}

func runDevices(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cat, err := catalog.Load()
	if err != nil {
		return fmt.Errorf("failed to load device catalog: %w", err)
	}
	registry, _ := config.LoadRegistry()

	fmt.Println("Vendors (updater downloads):")
	fmt.Println()
	for _, key := range cat.VendorKeys() {
		vendor, _ := cat.Vendor(key)
		fmt.Printf("  %-10s %s\n", key, vendor.Name)

		platforms := make([]string, 0, len(vendor.Downloads))
		for tag := range vendor.Downloads {
			platforms = append(platforms, tag)
		}
		sort.Strings(platforms)
		for _, tag := range platforms {
			dl := vendor.Downloads[tag]
			fmt.Printf("  %-10s %s: %s\n", "", tag, dl.Filename)
		}
	}

	fmt.Println()
	fmt.Println("Devices (FCC records):")
	fmt.Println()
	for _, key := range cat.DeviceKeys() {
		device, _ := cat.Device(key)
		fmt.Printf("  %-24s %s, FCC ID %s (%s)\n", key, device.Name, device.FCCID, device.Manufacturer)
		if registry != nil {
			if notes := registry.GetDevice(key); notes != nil {
				if notes.Nickname != "" {
					fmt.Printf("  %-24s nickname: %s\n", "", notes.Nickname)
				}
				if !notes.LastInvestigated.IsZero() {
					fmt.Printf("  %-24s last investigated: %s\n", "", notes.LastInvestigated.Format("2006-01-02 15:04"))
				}
			}
		}
	}

	fmt.Println()
	fmt.Println("USB identities (gadget faker):")
	fmt.Println()
	for _, key := range cat.USBDeviceKeys() {
		usb, _ := cat.USBDevice(key)
		fmt.Printf("  %-10s %s:%s %s %s (gadget %s)\n",
			key, usb.VendorID, usb.ProductID, usb.Manufacturer, usb.Product, usb.GadgetName)
	}

	fmt.Println()
	fmt.Println("Use 'fwprobe fcc device <key>' for full FCC details")
	fmt.Println("Use 'fwprobe download --vendor <key>' to fetch an updater")
	return nil
}

// fccCmd groups FCC lookups
var fccCmd = &cobra.Command{
	Use:   "fcc",
	Short: "Look up FCC filings for cataloged devices",
	Long: `Look up FCC regulatory filings.

Every radio device sold in the US has a public FCC filing with internal
photos, test reports and often block diagrams. For firmware work the
filing tells you what radio chips a headset actually contains before a
single byte of firmware has been captured.`,
}

// fccListCmd implements 'fcc list'
var fccListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known device FCC records",
	RunE:  runFCCList,
}

func runFCCList(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	devices := fcc.List()
	fmt.Printf("Known devices (%d):\n\n", len(devices))
	for _, device := range devices {
		fmt.Printf("  %-24s %s\n", device.Key, device.Name)
		fmt.Printf("  %-24s FCC ID %s, %s\n", "", device.FCCID, device.Manufacturer)
		fmt.Printf("  %-24s %s\n", "", device.ReportURL)
		fmt.Println()
	}
	fmt.Println("Use 'fwprobe fcc device <key>' for details, or 'fwprobe fcc id <fcc-id>' for any FCC ID")
	return nil
}

// fccDeviceCmd implements 'fcc device <key>'
var fccDeviceCmd = &cobra.Command{
	Use:   "device <key>",
	Short: "Show the FCC record for a cataloged device",
	Example: `  # Look up the Sena 50S
  fwprobe fcc device sena_50s`,
	Args: cobra.ExactArgs(1),
	RunE: runFCCDevice,
}

func runFCCDevice(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	key := args[0]
	device, ok := fcc.Lookup(key)
	if !ok {
		fmt.Printf("Unknown device key %q.\n\nKnown keys:\n", key)
		for _, known := range fcc.List() {
			fmt.Printf("  %s\n", known.Key)
		}
		return fmt.Errorf("unknown device key: %s", key)
	}

	fmt.Printf("%s\n\n", device.Name)
	fmt.Printf("  Key:          %s\n", device.Key)
	fmt.Printf("  FCC ID:       %s\n", device.FCCID)
	fmt.Printf("  Manufacturer: %s\n", device.Manufacturer)
	fmt.Printf("  Report:       %s\n", device.ReportURL)
	if device.Notes != "" {
		fmt.Printf("  Notes:        %s\n", device.Notes)
	}

	if registry, err := config.LoadRegistry(); err == nil {
		if notes := registry.GetDevice(key); notes != nil && len(notes.Findings) > 0 {
			fmt.Println("\n  Your findings:")
			for _, finding := range notes.Findings {
				fmt.Printf("    - %s\n", finding)
			}
		}
	}
	return nil
}

// fccIDCmd implements 'fcc id <fcc-id>'
var fccIDCmd = &cobra.Command{
	Use:   "id <fcc-id>",
	Short: "Fetch an FCC filing from the remote API",
	Long: `Fetch filing metadata for an arbitrary FCC ID from the fcc.report
API and print it as JSON.

An ID with no filing is reported as not found; that is an answer, not
an error.`,
	Example: `  # Fetch the Sena 50S filing
  fwprobe fcc id Q95ER19

  # Any FCC ID works, not just cataloged ones
  fwprobe fcc id 2AEMI-A1`,
	Args: cobra.ExactArgs(1),
	RunE: runFCCID,
}

func init() {
	fccIDCmd.Flags().IntVar(&fccTimeout, "timeout", 10, "API request timeout in seconds")
}

func runFCCID(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	logging.InitializeFromEnv()

	fccID := args[0]
	fmt.Printf("Fetching FCC filing for %s...\n\n", fccID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(fccTimeout)*time.Second)
	defer cancel()

	client := fcc.NewClient()
	report, err := client.FetchReport(ctx, fccID)
	if err != nil {
		if fcc.IsNotFound(err) {
			fmt.Printf("No filing found for FCC ID %s.\n", fccID)
			fmt.Printf("Check the ID on %s\n", fcc.ReportURL(fccID))
			return nil
		}
		return fmt.Errorf("FCC lookup failed: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format filing: %w", err)
	}
	fmt.Println(string(data))
	fmt.Printf("\nFull filing: %s\n", fcc.ReportURL(fccID))
	return nil
}

// gadgetCmd groups USB gadget faking
var gadgetCmd = &cobra.Command{
	Use:   "gadget",
	Short: "Fake headset USB identities via configfs",
	Long: `Present cataloged headset USB identities to this machine.

Updaters refuse to do anything interesting without their device
connected. On Linux hosts with a USB device controller (a Raspberry Pi
Zero or 4 in OTG mode), the configfs gadget subsystem can present the
Sena or Cardo vendor:product identity to the updater instead of real
hardware.

Gadget registration writes under /sys/kernel/config/usb_gadget and
needs root.`,
}

// gadgetSetupCmd implements 'gadget setup'
var gadgetSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Register fake gadgets for every cataloged USB identity",
	Long: `Register a configfs gadget for each cataloged USB identity.

Identities that lsusb already shows are skipped, so setup is safe to
re-run and stays out of the way when the real headset is plugged in.
Use --force to register regardless.`,
	Example: `  # Register fake gadgets (as root)
  sudo fwprobe gadget setup

  # Register even when lsusb already shows the identity
  sudo fwprobe gadget setup --force`,
	RunE: runGadgetSetup,
}

func init() {
	gadgetSetupCmd.Flags().BoolVar(&gadgetForce, "force", false, "Register even when the identity is already on the bus")
}

func runGadgetSetup(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	logging.InitializeFromEnv()

	faker := gadget.New()

	ui.PrintCommandHeader(
		"USB Gadget Setup",
		"fwprobe gadget setup",
		map[string]string{
			"ConfigFS": faker.ConfigFS,
			"UDC":      udcLabel(faker),
		},
	)

	if os.Geteuid() != 0 {
		ui.PrintWarning("Not running as root", map[string]string{
			"Problem": "configfs writes usually need root",
			"Fix":     "sudo fwprobe gadget setup",
		})
	}

	if !faker.Available() {
		err := fmt.Errorf("configfs gadget directory not available: %s", faker.ConfigFS)
		ui.PrintFailure("USB gadget setup failed", err, []string{
			"Load the gadget module: sudo modprobe libcomposite",
			"Gadget mode needs a USB device controller (Raspberry Pi Zero/4 in OTG mode)",
			"Gadget faking is Linux-only",
		})
		return err
	}

	ctx := context.Background()
	results := faker.SetupAll(ctx, !gadgetForce)

	details := make(map[string]string, len(results))
	failed := 0
	for key, ok := range results {
		if !ok {
			details[key] = "registration failed"
			failed++
			continue
		}
		details[key] = "registered"
	}

	// Verify what the bus actually shows now
	if cat, err := catalogUSB(); err == nil {
		for key, usb := range cat {
			if _, ok := details[key]; !ok {
				continue
			}
			if faker.DevicePresent(ctx, usb.VendorID, usb.ProductID) {
				details[key] = fmt.Sprintf("visible as %s:%s", usb.VendorID, usb.ProductID)
			}
		}
	}

	if failed > 0 {
		ui.PrintFailure("USB gadget setup incomplete",
			fmt.Errorf("%d of %d identities failed", failed, len(results)),
			[]string{
				"Run as root: sudo fwprobe gadget setup",
				"Check that a UDC exists: ls /sys/class/udc",
				"Set FWPROBE_LOG_LEVEL=debug for per-write details",
			})
		return fmt.Errorf("gadget setup failed for %d identities", failed)
	}

	ui.PrintSuccess("USB gadget setup complete", details)
	return nil
}

// gadgetCheckCmd implements 'gadget check'
var gadgetCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check which cataloged USB identities are on the bus",
	Long: `Check lsusb for every cataloged USB identity.

Matching ignores case and 0x prefixes, so the catalog's "0x092b"
matches lsusb's "092b". This works without root and reports real
headsets just as happily as faked ones.`,
	Example: `  # Check the bus
  fwprobe gadget check`,
	RunE: runGadgetCheck,
}

func runGadgetCheck(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	logging.InitializeFromEnv()

	usb, err := catalogUSB()
	if err != nil {
		return err
	}

	faker := gadget.New()
	ctx := context.Background()

	fmt.Println("USB identities on the bus:")
	fmt.Println()
	present := 0

	keys := make([]string, 0, len(usb))
	for key := range usb {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		dev := usb[key]
		if faker.DevicePresent(ctx, dev.VendorID, dev.ProductID) {
			fmt.Printf("  ✓ %-10s %s:%s (%s)\n", key, dev.VendorID, dev.ProductID, dev.Product)
			present++
		} else {
			fmt.Printf("  ✗ %-10s %s:%s (%s)\n", key, dev.VendorID, dev.ProductID, dev.Product)
		}
	}

	fmt.Println()
	if present == 0 {
		fmt.Println("No cataloged identities found.")
		fmt.Println("Plug in the headset, or fake one with 'sudo fwprobe gadget setup'.")
	} else {
		fmt.Printf("%d of %d identities present.\n", present, len(usb))
	}
	return nil
}

// gadgetCleanupCmd implements 'gadget cleanup'
var gadgetCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove every fake gadget fwprobe registers",
	Long: `Tear down the configfs gadgets for every cataloged identity.

Gadgets registered by an earlier process are removed too; cleanup
works from the catalog, not from in-process state. Identities that
were never registered are skipped silently.`,
	Example: `  # Remove all fake gadgets (as root)
  sudo fwprobe gadget cleanup`,
	RunE: runGadgetCleanup,
}

func runGadgetCleanup(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	logging.InitializeFromEnv()

	usb, err := catalogUSB()
	if err != nil {
		return err
	}

	faker := gadget.New()
	removed := 0
	var firstErr error
	for _, dev := range usb {
		if err := faker.Remove(dev.GadgetName); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}

	if firstErr != nil {
		ui.PrintFailure("Gadget cleanup incomplete", firstErr, []string{
			"Run as root: sudo fwprobe gadget cleanup",
			"Inspect leftovers under /sys/kernel/config/usb_gadget",
		})
		return firstErr
	}

	fmt.Printf("Removed %d gadget(s).\n", removed)
	return nil
}

// catalogUSB returns the cataloged USB identities keyed by catalog key
func catalogUSB() (map[string]*catalog.USBDevice, error) {
	cat, err := catalog.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load device catalog: %w", err)
	}
	usb := make(map[string]*catalog.USBDevice)
	for _, key := range cat.USBDeviceKeys() {
		if dev, ok := cat.USBDevice(key); ok {
			usb[key] = dev
		}
	}
	return usb, nil
}

func udcLabel(faker *gadget.Faker) string {
	if udc := faker.AvailableUDC(); udc != "" {
		return udc
	}
	return "none found"
}

// discoverCmd implements the 'discover' command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the network for device update services",
	Long: `Scan for HTTP services advertised over mDNS.

Headset WiFi adapters and charging cradles announce _http._tcp
services when they are in update mode. The scan tags services whose
names match known vendors and keeps unknown ones too; during an
investigation the unrecognized advertisement is often the interesting
one.`,
	Example: `  # Scan for 10 seconds (default)
  fwprobe discover

  # Quick 3-second scan
  fwprobe discover --timeout 3

  # Longer scan for sleepy devices
  fwprobe discover --timeout 30`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout", 10, "Scan timeout in seconds")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	logging.InitializeFromEnv()

	fmt.Printf("Scanning for update services (timeout: %ds)...\n\n", discoverTimeout)

	services, err := discovery.ScanServices(time.Duration(discoverTimeout) * time.Second)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(services) == 0 {
		fmt.Println("No services found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Put the headset or cradle in update/pairing mode")
		fmt.Println("  - Join the WiFi hotspot the device creates, if it makes one")
		fmt.Println("  - Check that this network allows multicast (mDNS)")
		fmt.Println("  - Try increasing --timeout for slower devices")
		return nil
	}

	fmt.Printf("Found %d service(s):\n\n", len(services))
	for i, service := range services {
		fmt.Printf("%d. %s\n", i+1, service.String())
		fmt.Printf("   URL: %s\n", service.BaseURL())
		if service.Known() {
			fmt.Printf("   Vendor: %s\n", service.Vendor)
		}
		if len(service.Text) > 0 {
			fmt.Printf("   TXT: %v\n", service.Text)
		}
		fmt.Println()
	}

	fmt.Println("Point a capture at a service with http_proxy set, or run 'fwprobe e2e'")
	return nil
}
