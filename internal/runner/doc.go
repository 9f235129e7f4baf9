// Package runner executes downloaded updater binaries in whatever
// environment the host can offer.
//
// Vendor updaters are Windows programs, so running them for traffic
// capture needs a compatibility story. Three runners implement one
// interface and are probed in preference order:
//
//   - VirtualBoxRunner: preferred when the configured VM exists,
//     because it is the only runner with real USB passthrough. It
//     configures usbfilters on the VM and leaves launching the updater
//     inside the guest to the operator.
//   - WineRunner: runs the updater directly under Wine with the capture
//     proxy injected via http_proxy/https_proxy and WINEDEBUG=-all to
//     keep the output readable. USB devices cannot be passed through.
//   - MacOSRunner: native execution on macOS behind an explicit
//     confirmation prompt; .pkg, .dmg and .app payloads go through the
//     open utility.
//
// Selection is capability probing, not configuration:
//
//	r, err := runner.Select(ctx,
//	    runner.NewVirtualBoxRunner("fwprobe-vm"),
//	    runner.NewWineRunner(),
//	)
//	if err != nil {
//	    return err // no runner available, error lists what was tried
//	}
//	result, err := r.Run(ctx, "working/SenaDeviceManager_Setup.exe", opts)
//
// A run that launches but exits non-zero is not an error: the exit code
// is part of the Result, because a failing updater still produces the
// traffic capture this toolkit is after.
package runner
