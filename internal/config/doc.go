// Package config provides user configuration management for fwprobe.
//
// This package manages a YAML-based configuration file that stores
// investigation preferences (working directory, proxy port, VM name) and
// free-form notes per investigated device. The configuration follows
// OS-specific conventions for storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/fwprobe/config.yaml or $HOME/.config/fwprobe/config.yaml
//   - macOS: $HOME/.config/fwprobe/config.yaml
//   - Windows: %LOCALAPPDATA%\fwprobe\config.yaml
//
// # Security
//
// IMPORTANT: This package NEVER stores credentials of any kind.
//
// # Usage Example
//
//	// Load the global registry
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Record what an investigation turned up
//	registry.SetDeviceNickname("sena_50s", "Garage 50S")
//	registry.AddFinding("sena_50s", "updater talks to firmware.sena.com")
//	registry.RecordInvestigation("sena_50s", "working/mitmproxy")
//
//	// Save changes atomically
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
