package gadget

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/muurk/fwprobe/internal/catalog"
)

// newTestFaker returns a Faker rooted in temp directories with no UDC
// and no lsusb.
func newTestFaker(t *testing.T) *Faker {
	t.Helper()
	tempDir := t.TempDir()

	configFS := filepath.Join(tempDir, "usb_gadget")
	if err := os.MkdirAll(configFS, 0755); err != nil {
		t.Fatalf("failed to create fake configfs: %v", err)
	}
	udcClass := filepath.Join(tempDir, "udc")
	if err := os.MkdirAll(udcClass, 0755); err != nil {
		t.Fatalf("failed to create fake udc class: %v", err)
	}

	return &Faker{
		ConfigFS:  configFS,
		UDCClass:  udcClass,
		LsusbPath: filepath.Join(tempDir, "no-such-lsusb"),
	}
}

// writeMockLsusb installs a stub lsusb printing the given output.
func writeMockLsusb(t *testing.T, dir, output string) string {
	t.Helper()
	mock := filepath.Join(dir, "mock-lsusb")
	script := "#!/bin/sh\ncat <<'EOF'\n" + output + "\nEOF\n"
	if err := os.WriteFile(mock, []byte(script), 0755); err != nil {
		t.Fatalf("failed to create mock lsusb: %v", err)
	}
	return mock
}

func senaDevice(t *testing.T) *catalog.USBDevice {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load failed: %v", err)
	}
	dev, ok := cat.USBDevice("sena")
	if !ok {
		t.Fatal("sena USB device missing from catalog")
	}
	return dev
}

func TestFaker_Create_DescriptorTree(t *testing.T) {
	f := newTestFaker(t)
	dev := senaDevice(t)

	if err := f.Create(dev); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	gadgetPath := filepath.Join(f.ConfigFS, "sena_fake")
	wantFiles := map[string]string{
		"idVendor":  "0x0003\n",
		"idProduct": "0x092b\n",
		"bcdDevice": "0x0100\n",
		"bcdUSB":    "0x0200\n",
		filepath.Join("strings", "0x409", "manufacturer"):                 "Sena Technologies\n",
		filepath.Join("strings", "0x409", "product"):                      "Sena Bluetooth Device\n",
		filepath.Join("strings", "0x409", "serialnumber"):                 "SENA123456\n",
		filepath.Join("configs", "c.1", "strings", "0x409", "configuration"): "Sena Bluetooth Device Configuration\n",
		filepath.Join("configs", "c.1", "MaxPower"):                       "250\n",
	}

	for rel, want := range wantFiles {
		data, err := os.ReadFile(filepath.Join(gadgetPath, rel))
		if err != nil {
			t.Errorf("missing descriptor file %s: %v", rel, err)
			continue
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", rel, data, want)
		}
	}

	// No UDC was available, so the gadget must stay unbound.
	if _, err := os.Stat(filepath.Join(gadgetPath, "UDC")); !os.IsNotExist(err) {
		t.Error("UDC file written with no controller available")
	}

	created := f.Created()
	if len(created) != 1 || created[0] != "sena_fake" {
		t.Errorf("Created() = %v, want [sena_fake]", created)
	}
}

func TestFaker_Create_BindsUDC(t *testing.T) {
	f := newTestFaker(t)
	if err := os.MkdirAll(filepath.Join(f.UDCClass, "dummy_udc.0"), 0755); err != nil {
		t.Fatalf("failed to create fake controller: %v", err)
	}

	if err := f.Create(senaDevice(t)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(f.ConfigFS, "sena_fake", "UDC"))
	if err != nil {
		t.Fatalf("UDC file not written: %v", err)
	}
	if string(data) != "dummy_udc.0\n" {
		t.Errorf("UDC = %q, want %q", data, "dummy_udc.0\n")
	}
}

func TestFaker_Create_ExistingGadget(t *testing.T) {
	f := newTestFaker(t)
	dev := senaDevice(t)

	gadgetPath := filepath.Join(f.ConfigFS, "sena_fake")
	if err := os.MkdirAll(gadgetPath, 0755); err != nil {
		t.Fatalf("failed to pre-create gadget: %v", err)
	}
	sentinel := filepath.Join(gadgetPath, "idVendor")
	if err := os.WriteFile(sentinel, []byte("0xdead\n"), 0644); err != nil {
		t.Fatalf("failed to seed sentinel: %v", err)
	}

	if err := f.Create(dev); err != nil {
		t.Fatalf("Create() on existing gadget error = %v", err)
	}

	data, err := os.ReadFile(sentinel)
	if err != nil {
		t.Fatalf("sentinel unreadable: %v", err)
	}
	if string(data) != "0xdead\n" {
		t.Errorf("existing gadget was rewritten: idVendor = %q", data)
	}

	if len(f.Created()) != 0 {
		t.Errorf("Created() = %v for pre-existing gadget, want empty", f.Created())
	}
}

func TestFaker_Create_ConfigFSUnavailable(t *testing.T) {
	f := newTestFaker(t)
	f.ConfigFS = filepath.Join(t.TempDir(), "missing")

	err := f.Create(senaDevice(t))
	if err == nil {
		t.Fatal("Create() error = nil, want ConfigFSUnavailableError")
	}

	var cfgErr *ConfigFSUnavailableError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Create() error = %T, want *ConfigFSUnavailableError", err)
	}
}

func TestFaker_Remove(t *testing.T) {
	f := newTestFaker(t)
	if err := f.Create(senaDevice(t)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := f.Remove("sena_fake"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(f.ConfigFS, "sena_fake")); !os.IsNotExist(err) {
		t.Error("gadget directory still present after Remove")
	}
	if len(f.Created()) != 0 {
		t.Errorf("Created() = %v after Remove, want empty", f.Created())
	}
}

func TestFaker_Remove_Absent(t *testing.T) {
	f := newTestFaker(t)
	if err := f.Remove("never_created"); err != nil {
		t.Errorf("Remove() of absent gadget error = %v, want nil", err)
	}
}

func TestFaker_Cleanup(t *testing.T) {
	f := newTestFaker(t)
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load failed: %v", err)
	}

	for _, key := range cat.USBDeviceKeys() {
		dev, _ := cat.USBDevice(key)
		if err := f.Create(dev); err != nil {
			t.Fatalf("Create(%s) error = %v", key, err)
		}
	}
	if len(f.Created()) != 2 {
		t.Fatalf("Created() = %v, want 2 gadgets", f.Created())
	}

	if err := f.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	for _, name := range []string{"sena_fake", "cardo_fake"} {
		if _, err := os.Stat(filepath.Join(f.ConfigFS, name)); !os.IsNotExist(err) {
			t.Errorf("gadget %s still present after Cleanup", name)
		}
	}
	if len(f.Created()) != 0 {
		t.Errorf("Created() = %v after Cleanup, want empty", f.Created())
	}
}

func TestFaker_DevicePresent(t *testing.T) {
	tempDir := t.TempDir()
	mock := writeMockLsusb(t, tempDir,
		"Bus 001 Device 001: ID 1d6b:0002 Linux Foundation 2.0 root hub\n"+
			"Bus 001 Device 002: ID 0003:092B Sena Technologies 50S")

	f := newTestFaker(t)
	f.LsusbPath = mock

	tests := []struct {
		name      string
		vendorID  string
		productID string
		want      bool
	}{
		{"exact lowercase", "0003", "092b", true},
		{"0x prefix", "0x0003", "0x092b", true},
		{"uppercase query", "0X0003", "092B", true},
		{"mixed prefix and case", "0x0003", "0x092B", true},
		{"absent device", "2685", "0900", false},
		{"wrong pairing", "0003", "0900", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.DevicePresent(context.Background(), tt.vendorID, tt.productID)
			if got != tt.want {
				t.Errorf("DevicePresent(%q, %q) = %v, want %v", tt.vendorID, tt.productID, got, tt.want)
			}
		})
	}
}

func TestFaker_DevicePresent_NoLsusb(t *testing.T) {
	f := newTestFaker(t)
	if f.DevicePresent(context.Background(), "0x0003", "0x092b") {
		t.Error("DevicePresent() = true with no lsusb installed, want false")
	}
}

func TestFaker_SetupAll(t *testing.T) {
	f := newTestFaker(t)

	results := f.SetupAll(context.Background(), true)
	if len(results) != 2 {
		t.Fatalf("SetupAll() returned %d results, want 2: %v", len(results), results)
	}
	for key, ok := range results {
		if !ok {
			t.Errorf("SetupAll() result for %s = false, want true", key)
		}
	}

	for _, name := range []string{"sena_fake", "cardo_fake"} {
		if _, err := os.Stat(filepath.Join(f.ConfigFS, name)); err != nil {
			t.Errorf("gadget %s not created: %v", name, err)
		}
	}
}

func TestFaker_SetupAll_SkipsPresent(t *testing.T) {
	tempDir := t.TempDir()
	mock := writeMockLsusb(t, tempDir,
		"Bus 001 Device 002: ID 0003:092b Sena Technologies 50S")

	f := newTestFaker(t)
	f.LsusbPath = mock

	results := f.SetupAll(context.Background(), true)
	if !results["sena"] {
		t.Error("SetupAll() sena = false, want true (already present)")
	}
	if !results["cardo"] {
		t.Error("SetupAll() cardo = false, want true (created)")
	}

	if _, err := os.Stat(filepath.Join(f.ConfigFS, "sena_fake")); !os.IsNotExist(err) {
		t.Error("sena_fake created despite device being present")
	}
	if _, err := os.Stat(filepath.Join(f.ConfigFS, "cardo_fake")); err != nil {
		t.Errorf("cardo_fake not created: %v", err)
	}
}

func TestFaker_AvailableUDC(t *testing.T) {
	f := newTestFaker(t)

	if udc := f.AvailableUDC(); udc != "" {
		t.Errorf("AvailableUDC() = %q with no controllers, want empty", udc)
	}

	if err := os.MkdirAll(filepath.Join(f.UDCClass, "fe980000.usb"), 0755); err != nil {
		t.Fatalf("failed to create fake controller: %v", err)
	}
	if udc := f.AvailableUDC(); udc != "fe980000.usb" {
		t.Errorf("AvailableUDC() = %q, want fe980000.usb", udc)
	}
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0x092b", "092b"},
		{"0x092B", "092b"},
		{"092B", "092b"},
		{"0X2685", "2685"},
		{"2685", "2685"},
	}

	for _, tt := range tests {
		if got := NormalizeID(tt.in); got != tt.want {
			t.Errorf("NormalizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
