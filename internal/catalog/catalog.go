package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed devices/devices.yaml
var devicesYAML []byte

// Platform tags used by download descriptors. Any tag not present in a
// vendor's download map resolves to the windows entry (or the default
// entry for platform-agnostic vendors).
const (
	PlatformWindows = "windows"
	PlatformDarwin  = "darwin"
	PlatformDefault = "default"
)

// Download is one fetchable artifact: where to get it and what to call it.
type Download struct {
	// URL is the download location
	URL string `yaml:"url"`

	// Filename is the name the artifact is saved under in the working dir
	Filename string `yaml:"filename"`
}

// Vendor describes one updater vendor and its per-platform installers.
type Vendor struct {
	// Key is the stable identifier used on the command line (e.g. "sena")
	Key string `yaml:"key"`

	// Name is the human-readable vendor name
	Name string `yaml:"name"`

	// Downloads maps platform tags to installer artifacts. A "default"
	// entry applies to every platform (used for APKs).
	Downloads map[string]Download `yaml:"downloads"`
}

// Device is an FCC filing record for a known device.
type Device struct {
	// Key is the stable identifier used on the command line (e.g. "sena_50s")
	Key string `yaml:"key"`

	// Name is the marketing name of the device
	Name string `yaml:"name"`

	// FCCID is the FCC filing identifier (e.g. "Q95ER19")
	FCCID string `yaml:"fcc_id"`

	// Manufacturer is the filing manufacturer of record
	Manufacturer string `yaml:"manufacturer"`

	// ReportURL is the human-readable fcc.report filing page
	ReportURL string `yaml:"report_url"`

	// Notes contains additional information about this device
	Notes string `yaml:"notes"`
}

// USBDevice describes a USB identity to fake via the gadget subsystem.
type USBDevice struct {
	// Key links the descriptor to a vendor key (e.g. "sena")
	Key string `yaml:"key"`

	// VendorID is the USB vendor id in "0x0003" form
	VendorID string `yaml:"vendor_id"`

	// ProductID is the USB product id in "0x092b" form
	ProductID string `yaml:"product_id"`

	// Manufacturer is the USB manufacturer descriptor string
	Manufacturer string `yaml:"manufacturer"`

	// Product is the USB product descriptor string
	Product string `yaml:"product"`

	// Serial is the USB serial number descriptor string
	Serial string `yaml:"serial"`

	// GadgetName is the configfs directory name for the faked device
	GadgetName string `yaml:"gadget_name"`
}

// Catalog holds all static device knowledge shipped with the binary.
type Catalog struct {
	// Vendors is a slice of all updater vendors
	Vendors []*Vendor

	// Devices is a slice of all FCC device records
	Devices []*Device

	// USBDevices is a slice of all fakeable USB identities
	USBDevices []*USBDevice

	// indexes map keys to entries for fast lookup
	vendorIndex map[string]*Vendor
	deviceIndex map[string]*Device
	usbIndex    map[string]*USBDevice

	// mu protects the indexes
	mu sync.RWMutex
}

// catalogContainer is for YAML unmarshaling
type catalogContainer struct {
	Vendors    []*Vendor    `yaml:"vendors"`
	Devices    []*Device    `yaml:"devices"`
	USBDevices []*USBDevice `yaml:"usb_devices"`
}

var (
	// globalCatalog is the singleton catalog
	globalCatalog *Catalog
	// globalCatalogOnce ensures we only load the catalog once
	globalCatalogOnce sync.Once
	// globalCatalogErr stores any error from loading
	globalCatalogErr error
)

// Load loads the embedded device catalog.
// This function is safe to call multiple times; the catalog is loaded only once.
func Load() (*Catalog, error) {
	globalCatalogOnce.Do(func() {
		globalCatalog, globalCatalogErr = loadInternal()
	})
	return globalCatalog, globalCatalogErr
}

// loadInternal does the actual loading of the device catalog.
func loadInternal() (*Catalog, error) {
	var container catalogContainer
	if err := yaml.Unmarshal(devicesYAML, &container); err != nil {
		return nil, fmt.Errorf("failed to parse devices.yaml: %w", err)
	}

	c := &Catalog{
		Vendors:     container.Vendors,
		Devices:     container.Devices,
		USBDevices:  container.USBDevices,
		vendorIndex: make(map[string]*Vendor),
		deviceIndex: make(map[string]*Device),
		usbIndex:    make(map[string]*USBDevice),
	}

	// Build indexes
	for _, v := range c.Vendors {
		if len(v.Downloads) == 0 {
			return nil, fmt.Errorf("vendor %q has no downloads", v.Key)
		}
		if _, ok := v.Downloads[PlatformWindows]; !ok {
			if _, ok := v.Downloads[PlatformDefault]; !ok {
				return nil, fmt.Errorf("vendor %q has neither a windows nor a default download", v.Key)
			}
		}
		c.vendorIndex[v.Key] = v
	}
	for _, d := range c.Devices {
		c.deviceIndex[d.Key] = d
	}
	for _, u := range c.USBDevices {
		c.usbIndex[u.Key] = u
	}

	return c, nil
}

// Vendor retrieves a vendor by key.
// Returns nil, false if the key is not found.
func (c *Catalog) Vendor(key string) (*Vendor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.vendorIndex[key]
	return v, ok
}

// Device retrieves an FCC device record by key.
// Returns nil, false if the key is not found.
func (c *Catalog) Device(key string) (*Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.deviceIndex[key]
	return d, ok
}

// USBDevice retrieves a fakeable USB identity by vendor key.
// Returns nil, false if the key is not found.
func (c *Catalog) USBDevice(key string) (*USBDevice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	u, ok := c.usbIndex[key]
	return u, ok
}

// VendorKeys returns all vendor keys in sorted order.
func (c *Catalog) VendorKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.vendorIndex))
	for key := range c.vendorIndex {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// DeviceKeys returns all FCC device keys in sorted order.
func (c *Catalog) DeviceKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.deviceIndex))
	for key := range c.deviceIndex {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// USBDeviceKeys returns all fakeable USB identity keys in sorted order.
func (c *Catalog) USBDeviceKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.usbIndex))
	for key := range c.usbIndex {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Resolve returns the download for a platform tag. Unknown tags fall back
// to the default entry when present, then to the windows entry.
func (v *Vendor) Resolve(platform string) Download {
	if d, ok := v.Downloads[platform]; ok {
		return d
	}
	if d, ok := v.Downloads[PlatformDefault]; ok {
		return d
	}
	return v.Downloads[PlatformWindows]
}

// String returns a human-readable representation of the vendor.
func (v *Vendor) String() string {
	return fmt.Sprintf("%s (%s)", v.Name, v.Key)
}

// String returns a human-readable representation of the device record.
func (d *Device) String() string {
	return fmt.Sprintf("%s - FCC ID %s (%s)", d.Name, d.FCCID, d.Manufacturer)
}

// String returns a human-readable representation of the USB identity.
func (u *USBDevice) String() string {
	return fmt.Sprintf("%s:%s %s", u.VendorID, u.ProductID, u.Product)
}
