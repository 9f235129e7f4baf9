package investigate

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/muurk/fwprobe/internal/gadget"
	"github.com/muurk/fwprobe/internal/urls"
)

// PrerequisiteCheck is the result of probing one external tool.
type PrerequisiteCheck struct {
	// Name is the human-readable name of the prerequisite
	Name string
	// Available indicates whether the prerequisite is usable
	Available bool
	// Required marks checks whose absence fails the overall result
	Required bool
	// Path is the resolved binary path, for binary checks
	Path string
	// Version is the detected version, if the tool reports one
	Version string
	// Message provides additional context, an error hint or success info
	Message string
	// Error contains the underlying error if the check failed
	Error error
}

// PrerequisiteResult contains the results of all prerequisite checks.
type PrerequisiteResult struct {
	// Checks contains individual check results
	Checks []PrerequisiteCheck
	// AllAvailable is true when every required prerequisite is usable
	AllAvailable bool
}

// CheckPrerequisites probes every external tool the workflow can use.
// Only the strings tool is required: each of the others gates one
// capability the workflow degrades around.
func CheckPrerequisites(ctx context.Context) *PrerequisiteResult {
	result := &PrerequisiteResult{AllAvailable: true}

	add := func(check PrerequisiteCheck) {
		result.Checks = append(result.Checks, check)
		if check.Required && !check.Available {
			result.AllAvailable = false
		}
	}

	strCheck := checkBinary(ctx, "strings",
		"Install the binutils package to get the strings tool.")
	strCheck.Required = true
	add(strCheck)

	mitmCheck := checkBinary(ctx, "mitmdump",
		fmt.Sprintf("Traffic capture will be skipped.\nInstall mitmproxy: pip install mitmproxy, brew install mitmproxy, or see %s", urls.MitmproxyDownload))
	add(mitmCheck)

	wineCheck := checkBinary(ctx, "wine",
		"Windows updaters cannot run without Wine or a VirtualBox VM.\nInstall Wine: sudo apt-get install wine, or brew install wine-stable.")
	add(wineCheck)

	vboxCheck := checkBinary(ctx, "VBoxManage",
		fmt.Sprintf("USB passthrough needs a VirtualBox VM.\nDownload from %s", urls.VirtualBoxDownload))
	add(vboxCheck)

	lsusbCheck := checkBinary(ctx, "lsusb",
		"USB presence checks will be skipped.\nInstall the usbutils package to get lsusb.")
	add(lsusbCheck)

	add(checkConfigFS())

	return result
}

// checkBinary verifies a tool is on PATH and answers --version.
func checkBinary(ctx context.Context, name, hint string) PrerequisiteCheck {
	check := PrerequisiteCheck{Name: name}

	path, err := exec.LookPath(name)
	if err != nil {
		check.Available = false
		check.Error = err
		check.Message = fmt.Sprintf("%s not found in PATH\n%s", name, hint)
		return check
	}
	check.Path = path

	versionCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	output, err := exec.CommandContext(versionCtx, path, "--version").Output()
	if err != nil {
		check.Available = false
		check.Error = err
		check.Message = fmt.Sprintf("%s found at %s but failed to execute: %v", name, path, err)
		return check
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		check.Version = strings.TrimSpace(lines[0])
	}

	check.Available = true
	check.Message = fmt.Sprintf("Found at %s", path)
	return check
}

// checkConfigFS reports whether USB gadget faking is possible on this
// host. Absence is normal on anything but a Linux box with the
// libcomposite module.
func checkConfigFS() PrerequisiteCheck {
	check := PrerequisiteCheck{Name: "USB gadget configfs"}

	faker := gadget.New()
	if !faker.Available() {
		check.Available = false
		check.Message = fmt.Sprintf("configfs not mounted at %s\n"+
			"USB device faking will be skipped. See %s", faker.ConfigFS, urls.USBGadgetDocs)
		return check
	}

	check.Available = true
	check.Path = faker.ConfigFS
	check.Message = fmt.Sprintf("Mounted at %s", faker.ConfigFS)
	if udc := faker.AvailableUDC(); udc != "" {
		check.Message += fmt.Sprintf(", UDC %s", udc)
	}
	return check
}

// FormatPrerequisiteReport formats a PrerequisiteResult into a
// human-readable string.
func FormatPrerequisiteReport(result *PrerequisiteResult) string {
	var sb strings.Builder

	sb.WriteString("Investigation Prerequisites:\n")
	sb.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	for _, check := range result.Checks {
		if check.Available {
			sb.WriteString(fmt.Sprintf("✓ %s\n", check.Name))
			if check.Version != "" {
				sb.WriteString(fmt.Sprintf("  Version: %s\n", check.Version))
			}
			if check.Message != "" {
				sb.WriteString(fmt.Sprintf("  %s\n", check.Message))
			}
		} else {
			marker := "✗"
			if !check.Required {
				marker = "⚠"
			}
			sb.WriteString(fmt.Sprintf("%s %s\n", marker, check.Name))
			if check.Message != "" {
				for _, line := range strings.Split(check.Message, "\n") {
					sb.WriteString(fmt.Sprintf("  %s\n", line))
				}
			}
		}
		sb.WriteString("\n")
	}

	if result.AllAvailable {
		sb.WriteString("All required tools are available.\n")
	} else {
		sb.WriteString("Required tools are missing. Install them before running the workflow.\n")
	}

	return sb.String()
}
