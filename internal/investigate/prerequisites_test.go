package investigate

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func checkByName(result *PrerequisiteResult, name string) *PrerequisiteCheck {
	for i := range result.Checks {
		if result.Checks[i].Name == name {
			return &result.Checks[i]
		}
	}
	return nil
}

func TestCheckPrerequisites_NothingInstalled(t *testing.T) {
	newToolDir(t)

	result := CheckPrerequisites(context.Background())

	if result.AllAvailable {
		t.Error("AllAvailable = true with an empty PATH")
	}

	strCheck := checkByName(result, "strings")
	if strCheck == nil {
		t.Fatal("no check for strings")
	}
	if !strCheck.Required {
		t.Error("strings should be required")
	}
	if strCheck.Available {
		t.Error("strings reported available with an empty PATH")
	}
	if !strings.Contains(strCheck.Message, "binutils") {
		t.Errorf("Message = %q, want binutils install hint", strCheck.Message)
	}

	for _, name := range []string{"mitmdump", "wine", "VBoxManage", "lsusb"} {
		check := checkByName(result, name)
		if check == nil {
			t.Errorf("no check for %s", name)
			continue
		}
		if check.Required {
			t.Errorf("%s should be optional", name)
		}
		if check.Available {
			t.Errorf("%s reported available with an empty PATH", name)
		}
	}

	if checkByName(result, "USB gadget configfs") == nil {
		t.Error("no check for configfs")
	}
}

func TestCheckPrerequisites_ToolsOnPath(t *testing.T) {
	toolDir := newToolDir(t)
	versions := map[string]string{
		"strings":    "GNU strings (GNU Binutils) 2.42",
		"mitmdump":   "Mitmproxy: 10.3.1",
		"wine":       "wine-9.0",
		"VBoxManage": "7.1.4r165100",
		"lsusb":      "lsusb (usbutils) 017",
	}
	for name, version := range versions {
		addTool(t, toolDir, name, "#!/bin/sh\necho \""+version+"\"\n")
	}

	result := CheckPrerequisites(context.Background())

	if !result.AllAvailable {
		t.Error("AllAvailable = false with every tool present")
	}
	for name, version := range versions {
		check := checkByName(result, name)
		if check == nil {
			t.Fatalf("no check for %s", name)
		}
		if !check.Available {
			t.Errorf("%s not available: %s", name, check.Message)
		}
		if check.Version != version {
			t.Errorf("%s version = %q, want %q", name, check.Version, version)
		}
		if check.Path == "" {
			t.Errorf("%s path not resolved", name)
		}
	}
}

func TestCheckPrerequisites_BrokenBinary(t *testing.T) {
	toolDir := newToolDir(t)
	addTool(t, toolDir, "strings", "#!/bin/sh\nexit 7\n")

	result := CheckPrerequisites(context.Background())

	strCheck := checkByName(result, "strings")
	if strCheck == nil {
		t.Fatal("no check for strings")
	}
	if strCheck.Available {
		t.Error("a binary that cannot run --version should not count as available")
	}
	if strCheck.Error == nil {
		t.Error("Error should carry the execution failure")
	}
	if result.AllAvailable {
		t.Error("AllAvailable = true with a broken required tool")
	}
}

func TestFormatPrerequisiteReport(t *testing.T) {
	result := &PrerequisiteResult{
		Checks: []PrerequisiteCheck{
			{
				Name:      "strings",
				Available: true,
				Required:  true,
				Version:   "GNU strings 2.42",
				Message:   "Found at /usr/bin/strings",
			},
			{
				Name:    "mitmdump",
				Message: "mitmdump not found in PATH\nInstall mitmproxy",
			},
		},
		AllAvailable: true,
	}

	report := FormatPrerequisiteReport(result)

	if !strings.Contains(report, "✓ strings") {
		t.Error("available check should render with a check mark")
	}
	if !strings.Contains(report, "Version: GNU strings 2.42") {
		t.Error("version line missing")
	}
	if !strings.Contains(report, "⚠ mitmdump") {
		t.Error("missing optional check should render as a warning")
	}
	if !strings.Contains(report, "All required tools are available.") {
		t.Error("summary line missing")
	}

	result.AllAvailable = false
	result.Checks[0].Available = false
	result.Checks[0].Error = errors.New("not found")
	report = FormatPrerequisiteReport(result)

	if !strings.Contains(report, "✗ strings") {
		t.Error("missing required check should render with a cross")
	}
	if !strings.Contains(report, "Required tools are missing") {
		t.Error("failure summary line missing")
	}
}
