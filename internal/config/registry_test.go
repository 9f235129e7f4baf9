package config

import (
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	// Should not be empty
	if configDir == "" {
		t.Error("GetConfigDir() returned empty string")
	}

	// Should contain "fwprobe"
	if !contains(configDir, "fwprobe") {
		t.Errorf("GetConfigDir() = %v, should contain 'fwprobe'", configDir)
	}

	// Platform-specific checks
	switch runtime.GOOS {
	case "windows":
		if !contains(configDir, "AppData") && !contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin", "linux":
		if !contains(configDir, ".config") {
			t.Errorf("Unix config dir should contain '.config', got: %v", configDir)
		}
	}

	t.Logf("Config directory: %s", configDir)
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	// Should end with config.yaml
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}

	t.Logf("Config path: %s", configPath)
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != 1 {
		t.Errorf("NewRegistry().Version = %v, want 1", reg.Version)
	}

	if reg.Devices == nil {
		t.Error("NewRegistry().Devices should not be nil")
	}

	if reg.Preferences == nil {
		t.Fatal("NewRegistry().Preferences should not be nil")
	}

	if reg.Preferences.WorkingDir != "working" {
		t.Errorf("NewRegistry().Preferences.WorkingDir = %v, want 'working'", reg.Preferences.WorkingDir)
	}

	if reg.Preferences.ProxyPort != 8080 {
		t.Errorf("NewRegistry().Preferences.ProxyPort = %v, want 8080", reg.Preferences.ProxyPort)
	}

	if reg.Preferences.VMName != "fwprobe-vm" {
		t.Errorf("NewRegistry().Preferences.VMName = %v, want 'fwprobe-vm'", reg.Preferences.VMName)
	}

	if reg.Preferences.DiscoverTimeout != 10 {
		t.Errorf("NewRegistry().Preferences.DiscoverTimeout = %v, want 10", reg.Preferences.DiscoverTimeout)
	}
}

func TestRegistryEnsureDevice(t *testing.T) {
	reg := NewRegistry()

	// First call should create device
	device1 := reg.EnsureDevice("sena_50s")
	if device1 == nil {
		t.Fatal("EnsureDevice() returned nil")
	}

	// Second call should return same device
	device2 := reg.EnsureDevice("sena_50s")
	if device1 != device2 {
		t.Error("EnsureDevice() should return same instance for same key")
	}

	// Different key should create new device
	device3 := reg.EnsureDevice("cardo_packtalk_bold")
	if device1 == device3 {
		t.Error("EnsureDevice() should create new instance for different key")
	}
}

func TestRegistrySetDeviceNickname(t *testing.T) {
	reg := NewRegistry()

	reg.SetDeviceNickname("sena_50s", "Garage 50S")

	device := reg.GetDevice("sena_50s")
	if device == nil {
		t.Fatal("Device should exist after SetDeviceNickname()")
	}

	if device.Nickname != "Garage 50S" {
		t.Errorf("Nickname = %v, want 'Garage 50S'", device.Nickname)
	}
}

func TestRegistryAddFinding(t *testing.T) {
	reg := NewRegistry()

	reg.AddFinding("sena_50s", "updater talks to firmware.sena.com")
	reg.AddFinding("sena_50s", "installer is NSIS packed")

	device := reg.GetDevice("sena_50s")
	if device == nil {
		t.Fatal("Device should exist after AddFinding()")
	}

	if len(device.Findings) != 2 {
		t.Fatalf("Findings length = %d, want 2", len(device.Findings))
	}

	if device.Findings[0] != "updater talks to firmware.sena.com" {
		t.Errorf("Findings[0] = %v, want first finding", device.Findings[0])
	}
}

func TestRegistryRecordInvestigation(t *testing.T) {
	reg := NewRegistry()

	before := time.Now()
	reg.RecordInvestigation("sena_50s", "/tmp/working/mitmproxy")
	after := time.Now()

	device := reg.GetDevice("sena_50s")
	if device == nil {
		t.Fatal("Device should exist after RecordInvestigation()")
	}

	if device.LastCaptureDir != "/tmp/working/mitmproxy" {
		t.Errorf("LastCaptureDir = %v, want /tmp/working/mitmproxy", device.LastCaptureDir)
	}

	if device.LastInvestigated.Before(before) || device.LastInvestigated.After(after) {
		t.Errorf("LastInvestigated = %v, should be between %v and %v", device.LastInvestigated, before, after)
	}
}

func TestParseRegistry(t *testing.T) {
	data := []byte(`version: 1
devices:
  sena_50s:
    nickname: "Garage 50S"
    findings:
      - "updater talks to firmware.sena.com"
preferences:
  working_dir: /tmp/fw
  proxy_port: 9090
  vm_name: win10-usb
  discover_timeout: 5
`)

	reg, err := parseRegistry(data)
	if err != nil {
		t.Fatalf("parseRegistry() error = %v", err)
	}

	device := reg.GetDevice("sena_50s")
	if device == nil {
		t.Fatal("Device should exist in parsed registry")
	}

	if device.Nickname != "Garage 50S" {
		t.Errorf("Nickname = %v, want 'Garage 50S'", device.Nickname)
	}

	if len(device.Findings) != 1 {
		t.Errorf("Findings length = %d, want 1", len(device.Findings))
	}

	if reg.Preferences.WorkingDir != "/tmp/fw" {
		t.Errorf("WorkingDir = %v, want /tmp/fw", reg.Preferences.WorkingDir)
	}

	if reg.Preferences.ProxyPort != 9090 {
		t.Errorf("ProxyPort = %v, want 9090", reg.Preferences.ProxyPort)
	}
}

func TestParseRegistry_MissingSections(t *testing.T) {
	reg, err := parseRegistry([]byte("version: 1\n"))
	if err != nil {
		t.Fatalf("parseRegistry() error = %v", err)
	}

	if reg.Devices == nil {
		t.Error("Devices map should be initialized for sparse config")
	}

	if reg.Preferences == nil {
		t.Fatal("Preferences should be defaulted for sparse config")
	}

	if reg.Preferences.ProxyPort != 8080 {
		t.Errorf("defaulted ProxyPort = %v, want 8080", reg.Preferences.ProxyPort)
	}
}

func TestParseRegistry_UnsupportedVersion(t *testing.T) {
	_, err := parseRegistry([]byte("version: 2\n"))
	if err == nil {
		t.Error("parseRegistry() should reject unsupported version")
	}
}

// Helper functions

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > 0 && (s[:len(substr)] == substr || contains(s[1:], substr))))
}

// Benchmark tests

func BenchmarkGetConfigDir(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = GetConfigDir()
	}
}

func BenchmarkEnsureDevice(b *testing.B) {
	reg := NewRegistry()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.EnsureDevice("sena_50s")
	}
}
