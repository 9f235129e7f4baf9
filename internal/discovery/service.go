package discovery

import (
	"fmt"
	"time"
)

// Service represents an HTTP service advertised on the local network.
// During an investigation these are candidates for device-side update
// endpoints, such as a headset's WiFi adapter serving firmware.
type Service struct {
	// Instance is the mDNS instance name (e.g., "Sena WiFi Adapter")
	Instance string

	// Hostname is the mDNS hostname (e.g., "sena-wifi-adapter.local.")
	Hostname string

	// IP is the IPv4 address (e.g., "192.168.4.16")
	IP string

	// Port is the HTTP port (typically 80)
	Port int

	// Vendor is the matched catalog vendor key ("sena", "cardo", ...),
	// or empty when the advertisement matches no known vendor
	Vendor string

	// Text contains additional mDNS TXT record data
	// Common fields: "path=/", "srcvers=1D90645"
	Text map[string]string

	// DiscoveredAt is when the service was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the service
func (s *Service) String() string {
	label := s.Instance
	if label == "" {
		label = s.Hostname
	}
	if s.Vendor != "" {
		label = fmt.Sprintf("%s [%s]", label, s.Vendor)
	}
	return fmt.Sprintf("%s at %s:%d", label, s.IP, s.Port)
}

// BaseURL returns the HTTP base URL for the service
func (s *Service) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.IP, s.Port)
}

// Known reports whether the service matched a known vendor
func (s *Service) Known() bool {
	return s.Vendor != ""
}

// GetText retrieves a TXT record value by key, or returns empty string if not found
func (s *Service) GetText(key string) string {
	if s.Text == nil {
		return ""
	}
	return s.Text[key]
}
