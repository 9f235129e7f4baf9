package config

import "time"

// Registry represents the entire user configuration file.
// This stores investigation preferences and per-device notes.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by catalog device key
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device represents user-recorded notes for a single investigated device.
// This is keyed by the device's catalog key (e.g. "sena_50s") in the Registry.
type Device struct {
	Nickname         string    `yaml:"nickname,omitempty"`          // User-friendly name
	LastInvestigated time.Time `yaml:"last_investigated,omitempty"` // Last e2e run for this device
	LastCaptureDir   string    `yaml:"last_capture_dir,omitempty"`  // Where the last capture landed
	Findings         []string  `yaml:"findings,omitempty"`          // Free-form investigation notes
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	WorkingDir      string `yaml:"working_dir"`        // Default working directory for downloads and captures
	Platform        string `yaml:"platform,omitempty"` // Download platform override; empty means auto-detect
	ProxyPort       int    `yaml:"proxy_port"`         // mitmproxy listen port
	VMName          string `yaml:"vm_name"`            // VirtualBox VM used for USB passthrough runs
	DiscoverTimeout int    `yaml:"discover_timeout"`   // mDNS discovery timeout in seconds
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version: 1,
		Devices: make(map[string]*Device),
		Preferences: &Preferences{
			WorkingDir:      "working",
			ProxyPort:       8080,
			VMName:          "fwprobe-vm",
			DiscoverTimeout: 10,
		},
	}
}

// GetDevice retrieves device notes by catalog key.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(key string) *Device {
	return r.Devices[key]
}

// EnsureDevice ensures a device entry exists in the registry.
// If the device doesn't exist, creates a new empty entry.
// Returns the device entry (existing or newly created).
func (r *Registry) EnsureDevice(key string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[key]; exists {
		return device
	}

	device := &Device{}
	r.Devices[key] = device
	return device
}

// SetDeviceNickname sets a user-friendly nickname for a device.
func (r *Registry) SetDeviceNickname(key, nickname string) {
	device := r.EnsureDevice(key)
	device.Nickname = nickname
}

// AddFinding appends a free-form investigation note to a device.
func (r *Registry) AddFinding(key, finding string) {
	device := r.EnsureDevice(key)
	device.Findings = append(device.Findings, finding)
}

// RecordInvestigation updates the last-investigated timestamp and capture
// directory for a device after an e2e run.
func (r *Registry) RecordInvestigation(key, captureDir string) {
	device := r.EnsureDevice(key)
	device.LastInvestigated = time.Now()
	device.LastCaptureDir = captureDir
}
