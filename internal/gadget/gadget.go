package gadget

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/fwprobe/internal/catalog"
	"github.com/muurk/fwprobe/internal/logging"
)

const (
	// DefaultConfigFS is the kernel configfs root for USB gadgets
	DefaultConfigFS = "/sys/kernel/config/usb_gadget"

	// DefaultUDCClass is where bound USB device controllers are listed
	DefaultUDCClass = "/sys/class/udc"

	// DefaultLsusbPath is the lsusb binary, resolved via PATH
	DefaultLsusbPath = "lsusb"
)

// Fixed descriptor values written for every gadget.
const (
	deviceRelease = "0x0100" // bcdDevice, device release 1.0
	usbVersion    = "0x0200" // bcdUSB, USB 2.0
	maxPower      = "250"    // in 2 mA units, 500 mA total
	englishUS     = "0x409"  // string descriptor language
)

// Faker registers fake USB devices through the Linux gadget configfs so
// vendor updaters see the hardware they expect.
type Faker struct {
	// ConfigFS is the usb_gadget configfs root
	ConfigFS string

	// UDCClass is the directory listing available USB device controllers
	UDCClass string

	// LsusbPath is the lsusb binary used for presence checks
	LsusbPath string

	mu      sync.Mutex
	created []string
}

// New creates a Faker against the standard kernel paths.
func New() *Faker {
	return &Faker{
		ConfigFS:  DefaultConfigFS,
		UDCClass:  DefaultUDCClass,
		LsusbPath: DefaultLsusbPath,
	}
}

// Available reports whether the gadget configfs is mounted.
func (f *Faker) Available() bool {
	info, err := os.Stat(f.ConfigFS)
	return err == nil && info.IsDir()
}

// Create registers one fake USB device. A gadget that already exists is
// left alone and counts as success. Binding fails soft when no UDC is
// loaded: the gadget tree is in place but not visible on any bus until
// a controller (e.g. dummy_hcd) appears.
func (f *Faker) Create(dev *catalog.USBDevice) error {
	if !f.Available() {
		return &ConfigFSUnavailableError{Path: f.ConfigFS}
	}

	gadgetPath := filepath.Join(f.ConfigFS, dev.GadgetName)
	if _, err := os.Stat(gadgetPath); err == nil {
		logging.Info("gadget already exists",
			zap.String("gadget", dev.GadgetName),
			zap.String("path", gadgetPath),
		)
		return nil
	}

	if err := os.MkdirAll(gadgetPath, 0755); err != nil {
		return wrapWriteError(gadgetPath, err)
	}

	// Device descriptor.
	descriptor := []struct {
		file  string
		value string
	}{
		{"idVendor", dev.VendorID},
		{"idProduct", dev.ProductID},
		{"bcdDevice", deviceRelease},
		{"bcdUSB", usbVersion},
	}
	for _, attr := range descriptor {
		if err := writeAttr(filepath.Join(gadgetPath, attr.file), attr.value); err != nil {
			return err
		}
	}

	// String descriptors.
	stringsDir := filepath.Join(gadgetPath, "strings", englishUS)
	if err := os.MkdirAll(stringsDir, 0755); err != nil {
		return wrapWriteError(stringsDir, err)
	}
	identity := []struct {
		file  string
		value string
	}{
		{"manufacturer", dev.Manufacturer},
		{"product", dev.Product},
		{"serialnumber", dev.Serial},
	}
	for _, attr := range identity {
		if err := writeAttr(filepath.Join(stringsDir, attr.file), attr.value); err != nil {
			return err
		}
	}

	// Configuration c.1.
	configDir := filepath.Join(gadgetPath, "configs", "c.1")
	configStringsDir := filepath.Join(configDir, "strings", englishUS)
	if err := os.MkdirAll(configStringsDir, 0755); err != nil {
		return wrapWriteError(configStringsDir, err)
	}
	if err := writeAttr(filepath.Join(configStringsDir, "configuration"), dev.Product+" Configuration"); err != nil {
		return err
	}
	if err := writeAttr(filepath.Join(configDir, "MaxPower"), maxPower); err != nil {
		return err
	}

	// Bind to the first available controller.
	if udc := f.AvailableUDC(); udc != "" {
		if err := writeAttr(filepath.Join(gadgetPath, "UDC"), udc); err != nil {
			return err
		}
		logging.Info("created and bound gadget",
			zap.String("gadget", dev.GadgetName),
			zap.String("udc", udc),
		)
	} else {
		logging.Warn("created gadget but no UDC available to bind",
			zap.String("gadget", dev.GadgetName),
			zap.String("hint", "load a UDC driver such as dummy_hcd"),
		)
	}

	f.mu.Lock()
	f.created = append(f.created, dev.GadgetName)
	f.mu.Unlock()

	return nil
}

// Remove tears down a gadget in reverse creation order. A gadget that
// does not exist counts as success.
func (f *Faker) Remove(gadgetName string) error {
	gadgetPath := filepath.Join(f.ConfigFS, gadgetName)
	if _, err := os.Stat(gadgetPath); os.IsNotExist(err) {
		return nil
	}

	// Unbind from the controller first.
	udcFile := filepath.Join(gadgetPath, "UDC")
	if _, err := os.Stat(udcFile); err == nil {
		if err := writeAttr(udcFile, ""); err != nil {
			return err
		}
	}

	// configfs refuses unlink on attribute files and drops them at
	// rmdir; plain directory trees need the unlink first. Failures
	// here are irrelevant either way.
	for _, attr := range []string{
		filepath.Join(gadgetPath, "configs", "c.1", "strings", englishUS, "configuration"),
		filepath.Join(gadgetPath, "configs", "c.1", "MaxPower"),
		filepath.Join(gadgetPath, "strings", englishUS, "manufacturer"),
		filepath.Join(gadgetPath, "strings", englishUS, "product"),
		filepath.Join(gadgetPath, "strings", englishUS, "serialnumber"),
		filepath.Join(gadgetPath, "UDC"),
		filepath.Join(gadgetPath, "idVendor"),
		filepath.Join(gadgetPath, "idProduct"),
		filepath.Join(gadgetPath, "bcdDevice"),
		filepath.Join(gadgetPath, "bcdUSB"),
	} {
		_ = os.Remove(attr)
	}

	for _, dir := range []string{
		filepath.Join(gadgetPath, "configs", "c.1", "strings", englishUS),
		filepath.Join(gadgetPath, "configs", "c.1", "strings"),
		filepath.Join(gadgetPath, "configs", "c.1"),
		filepath.Join(gadgetPath, "configs"),
		filepath.Join(gadgetPath, "strings", englishUS),
		filepath.Join(gadgetPath, "strings"),
		gadgetPath,
	} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		if err := os.Remove(dir); err != nil {
			return wrapWriteError(dir, err)
		}
	}

	logging.Info("removed gadget", zap.String("gadget", gadgetName))

	f.mu.Lock()
	for i, name := range f.created {
		if name == gadgetName {
			f.created = append(f.created[:i], f.created[i+1:]...)
			break
		}
	}
	f.mu.Unlock()

	return nil
}

// SetupAll registers a fake gadget for every cataloged USB identity.
// With checkExisting, identities already visible on the bus are skipped
// and reported as success. The returned map is keyed by identity key.
func (f *Faker) SetupAll(ctx context.Context, checkExisting bool) map[string]bool {
	cat, err := catalog.Load()
	if err != nil {
		logging.Error("failed to load device catalog", zap.Error(err))
		return nil
	}

	results := make(map[string]bool)
	for _, key := range cat.USBDeviceKeys() {
		dev, ok := cat.USBDevice(key)
		if !ok {
			continue
		}

		if checkExisting && f.DevicePresent(ctx, dev.VendorID, dev.ProductID) {
			logging.Info("device already present, skipping",
				zap.String("device", key),
				zap.String("id", dev.VendorID+":"+dev.ProductID),
			)
			results[key] = true
			continue
		}

		if err := f.Create(dev); err != nil {
			logging.Error("failed to create gadget",
				zap.String("device", key),
				zap.Error(err),
			)
			results[key] = false
			continue
		}
		results[key] = true
	}
	return results
}

// Cleanup removes every gadget this Faker created, keeping going past
// individual failures.
func (f *Faker) Cleanup() error {
	f.mu.Lock()
	names := make([]string, len(f.created))
	copy(names, f.created)
	f.mu.Unlock()

	var firstErr error
	for _, name := range names {
		if err := f.Remove(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Created returns the gadget names this Faker has registered and not
// yet removed.
func (f *Faker) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, len(f.created))
	copy(names, f.created)
	return names
}

// DevicePresent reports whether lsusb lists a device with the given
// vendor:product ID. IDs match regardless of case or 0x prefix. A
// missing lsusb binary means false, never an error.
func (f *Faker) DevicePresent(ctx context.Context, vendorID, productID string) bool {
	if _, err := exec.LookPath(f.LsusbPath); err != nil {
		logging.Debug("lsusb not found, assuming device absent",
			zap.String("lsusb", f.LsusbPath),
		)
		return false
	}

	cmd := exec.CommandContext(ctx, f.LsusbPath)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		logging.Debug("lsusb failed", zap.Error(err))
	}

	// lsusb format: "Bus 001 Device 002: ID 0003:092b ..."
	deviceID := NormalizeID(vendorID) + ":" + NormalizeID(productID)
	return strings.Contains(strings.ToLower(stdout.String()), deviceID)
}

// AvailableUDC returns the first USB device controller on the system,
// or "" when none is loaded.
func (f *Faker) AvailableUDC() string {
	entries, err := os.ReadDir(f.UDCClass)
	if err != nil || len(entries) == 0 {
		return ""
	}
	return entries[0].Name()
}

// NormalizeID lowercases a USB vendor or product ID and strips any 0x
// prefix, so "0x092B" and "092b" compare equal.
func NormalizeID(id string) string {
	return strings.TrimPrefix(strings.ToLower(id), "0x")
}

// writeAttr writes one configfs attribute with the trailing newline the
// kernel expects.
func writeAttr(path, value string) error {
	if err := os.WriteFile(path, []byte(value+"\n"), 0644); err != nil {
		return wrapWriteError(path, err)
	}
	return nil
}

// wrapWriteError maps permission failures to the typed error carrying
// the sudo hint.
func wrapWriteError(path string, err error) error {
	if os.IsPermission(err) {
		return &PermissionError{Path: path, Err: err}
	}
	return fmt.Errorf("gadget configfs operation failed on %s: %w", path, err)
}

// ConfigFSUnavailableError indicates the usb_gadget configfs is not
// mounted, so no gadget can be registered.
type ConfigFSUnavailableError struct {
	// Path is the configfs root that was probed
	Path string
}

func (e *ConfigFSUnavailableError) Error() string {
	return fmt.Sprintf("USB gadget configfs not available at %s\n"+
		"Ensure configfs is mounted and the kernel supports USB gadgets:\n"+
		"  sudo modprobe libcomposite",
		e.Path)
}

// PermissionError indicates a configfs write was refused. Gadget
// registration needs root.
type PermissionError struct {
	// Path is the file or directory that could not be written
	Path string
	// Err is the underlying filesystem error
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied writing %s\n"+
		"USB gadget registration requires root privileges. Try running with sudo.",
		e.Path)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}
