// Package catalog provides the static device knowledge shipped with fwprobe.
//
// The catalog is a YAML document embedded at build time and loaded once. It
// records three kinds of entries:
//
//   - Vendors: updater installers per platform tag. Resolution is
//     deliberately forgiving - an unknown tag falls back to the windows
//     installer, and platform-agnostic vendors (APKs) declare a single
//     "default" artifact.
//   - Devices: FCC filing records (FCC ID, manufacturer, report URL) for
//     the hardware whose updaters we investigate.
//   - USB devices: vendor/product ids and descriptor strings for the USB
//     identities the gadget faker can present.
//
// # Usage Example
//
//	c, err := catalog.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	v, _ := c.Vendor("sena")
//	d := v.Resolve("windows")
//	fmt.Printf("fetch %s as %s\n", d.URL, d.Filename)
//
//	dev, ok := c.Device("sena_50s")
//	if ok {
//	    fmt.Println(dev.ReportURL)
//	}
//
// # Extending the Catalog
//
// New vendors and devices are added by editing devices/devices.yaml and
// rebuilding. Lookups are index-backed, so catalog size does not affect
// call sites.
//
// # Thread Safety
//
// Load uses sync.Once; the returned catalog is read-only and safe for
// concurrent use.
package catalog
