// Package gadget registers fake USB devices through the Linux gadget
// configfs.
//
// Vendor updaters often refuse to do anything interesting until they
// see the matching headset on the USB bus. Faking the device identity
// with the kernel's gadget subsystem is enough to get many updaters
// past that check and talking to their update servers, which is the
// traffic this toolkit exists to capture.
//
// # Gadget Layout
//
// Each fake device is one directory under /sys/kernel/config/usb_gadget
// with the standard composite-gadget layout:
//
//	sena_fake/
//	├── idVendor            0x0003
//	├── idProduct           0x092b
//	├── bcdDevice           0x0100
//	├── bcdUSB              0x0200
//	├── strings/0x409/      manufacturer, product, serialnumber
//	├── configs/c.1/
//	│   ├── MaxPower        250
//	│   └── strings/0x409/  configuration
//	└── UDC                 controller name once bound
//
// Teardown happens strictly in reverse: unbind the controller, then
// remove directories leaf to root. The kernel refuses rmdir in any
// other order.
//
// # Usage Example
//
//	faker := gadget.New()
//	results := faker.SetupAll(ctx, true)
//	defer faker.Cleanup()
//
//	if faker.DevicePresent(ctx, "0x0003", "0x092b") {
//	    fmt.Println("Sena identity visible on the bus")
//	}
//
// # Requirements
//
//   - configfs mounted with the libcomposite module loaded
//   - root privileges for any write under the configfs tree
//   - a USB device controller; dummy_hcd works for loopback testing
//
// Presence checks shell out to lsusb and are read-only, so they work
// without root and without configfs.
package gadget
