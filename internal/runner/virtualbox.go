package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/fwprobe/internal/gadget"
	"github.com/muurk/fwprobe/internal/logging"
)

const (
	// DefaultVBoxManagePath is the VBoxManage binary, resolved via PATH
	DefaultVBoxManagePath = "VBoxManage"

	// DefaultVMName is the Windows VM updaters run in
	DefaultVMName = "fwprobe-vm"
)

// VirtualBoxRunner prepares a Windows VM for an updater run. It is the
// only runner with real USB passthrough: each device becomes a
// VBoxManage usbfilter on the VM. The runner configures the VM but does
// not drive the guest; the updater is started manually inside it.
type VirtualBoxRunner struct {
	// VMName is the target VM
	VMName string

	// VBoxManagePath is the VBoxManage binary
	VBoxManagePath string
}

// NewVirtualBoxRunner creates a runner against the default VM name.
func NewVirtualBoxRunner(vmName string) *VirtualBoxRunner {
	if vmName == "" {
		vmName = DefaultVMName
	}
	return &VirtualBoxRunner{
		VMName:         vmName,
		VBoxManagePath: DefaultVBoxManagePath,
	}
}

// Name implements Runner.
func (r *VirtualBoxRunner) Name() string {
	return "virtualbox"
}

// Available reports whether VirtualBox is installed and the configured
// VM exists. Both must hold; an installed VirtualBox with no VM cannot
// run anything.
func (r *VirtualBoxRunner) Available(ctx context.Context) bool {
	return r.Installed(ctx) && r.VMExists(ctx)
}

// Installed reports whether VBoxManage runs at all.
func (r *VirtualBoxRunner) Installed(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return exec.CommandContext(checkCtx, r.VBoxManagePath, "--version").Run() == nil
}

// VMExists reports whether the configured VM is registered.
func (r *VirtualBoxRunner) VMExists(ctx context.Context) bool {
	if !r.Installed(ctx) {
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return exec.CommandContext(checkCtx, r.VBoxManagePath, "showvminfo", r.VMName).Run() == nil
}

// AttachUSB adds a USB filter for one vendor:product pair to the VM.
// VirtualBox wants bare hex IDs, so any 0x prefix is stripped.
func (r *VirtualBoxRunner) AttachUSB(ctx context.Context, vendorID, productID string) error {
	vid := gadget.NormalizeID(vendorID)
	pid := gadget.NormalizeID(productID)
	filterName := fmt.Sprintf("usb_%s_%s", vid, pid)

	args := []string{
		"usbfilter", "add", "0",
		"--target", r.VMName,
		"--name", filterName,
		"--vendorid", vid,
		"--productid", pid,
	}
	logging.LogCommand(r.VBoxManagePath, args)

	cmd := exec.CommandContext(ctx, r.VBoxManagePath, args...)
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to add USB filter %s: %s: %w", filterName, stderrBuf.String(), err)
	}
	return nil
}

// Run validates the VM, configures USB passthrough for the requested
// devices, and reports success. A filter that fails to attach is a
// warning, not a run failure.
func (r *VirtualBoxRunner) Run(ctx context.Context, executable string, opts Options) (*Result, error) {
	if !r.Installed(ctx) {
		return nil, &NotInstalledError{
			Tool: "VirtualBox",
			Hint: "Install VirtualBox to run updaters with USB passthrough: https://www.virtualbox.org/",
		}
	}

	if _, err := os.Stat(executable); err != nil {
		return nil, &MissingExecutableError{Path: executable}
	}

	if !r.VMExists(ctx) {
		return nil, &VMNotFoundError{VMName: r.VMName}
	}

	start := time.Now()
	attached := 0
	for _, dev := range opts.USBDevices {
		if err := r.AttachUSB(ctx, dev.VendorID, dev.ProductID); err != nil {
			logging.Warn("USB filter not configured",
				zap.String("device", dev.Key),
				zap.Error(err),
			)
			continue
		}
		attached++
		logging.Info("USB filter configured",
			zap.String("device", dev.Key),
			zap.String("vm", r.VMName),
		)
	}

	stdout := fmt.Sprintf(
		"VM %q prepared: %d of %d USB filters configured.\n"+
			"Run %s inside the guest; the proxy and USB devices are in place.",
		r.VMName, attached, len(opts.USBDevices), executable,
	)

	return &Result{
		ExitCode: 0,
		Stdout:   stdout,
		Duration: time.Since(start),
	}, nil
}
