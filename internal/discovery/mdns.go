package discovery

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type to browse.
	// Device-side update endpoints (headset WiFi adapters, cradles)
	// advertise as plain "_http._tcp" services.
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for service discovery
	DefaultScanTimeout = 10 * time.Second

	// DefaultPort is the fallback HTTP port for advertisements without one
	DefaultPort = 80
)

// vendorPattern links a catalog vendor key to the pattern its mDNS
// advertisements match. Matched against instance name, hostname, and
// TXT record values.
type vendorPattern struct {
	vendor  string
	pattern *regexp.Regexp
}

// vendorPatterns is checked in order; first match wins.
// Motorola headsets are made by Bullitt and advertise under that name.
var vendorPatterns = []vendorPattern{
	{"sena", regexp.MustCompile(`(?i)sena`)},
	{"cardo", regexp.MustCompile(`(?i)cardo`)},
	{"motorola", regexp.MustCompile(`(?i)motorola|bullitt`)},
}

// Scanner handles mDNS service discovery
type Scanner struct {
	// Timeout is the maximum time to wait for service discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// ScanServices discovers all HTTP services on the local network
// Returns a list of discovered services or an error
func (s *Scanner) ScanServices() ([]*Service, error) {
	return s.ScanServicesWithContext(context.Background())
}

// ScanServicesWithContext discovers services with a custom context
func (s *Scanner) ScanServicesWithContext(ctx context.Context) ([]*Service, error) {
	// Create a context with timeout
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	// Channel to receive service entries
	entries := make(chan *zeroconf.ServiceEntry)
	services := make([]*Service, 0)

	// Start the resolver
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	// Browse for services in a goroutine
	go func() {
		for entry := range entries {
			service := s.parseServiceEntry(entry)
			if service != nil {
				services = append(services, service)
			}
		}
	}()

	// Start browsing for HTTP services
	err = resolver.Browse(ctx, ServiceType, ServiceDomain, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	// Wait for context to complete (timeout or cancellation)
	<-ctx.Done()

	return services, nil
}

// WaitForVendor waits for a service matching a specific vendor key
// Returns the service or an error if not found within timeout
func (s *Scanner) WaitForVendor(vendor string) (*Service, error) {
	return s.WaitForVendorWithContext(context.Background(), vendor)
}

// WaitForVendorWithContext waits for a vendor's service with a custom context
func (s *Scanner) WaitForVendorWithContext(ctx context.Context, vendor string) (*Service, error) {
	// Create a context with timeout
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	// Channel to receive service entries
	entries := make(chan *zeroconf.ServiceEntry)
	serviceChan := make(chan *Service, 1)

	// Start the resolver
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	// Browse for services in a goroutine
	go func() {
		for entry := range entries {
			service := s.parseServiceEntry(entry)
			if service != nil && service.Vendor == vendor {
				serviceChan <- service
				cancel() // Found the vendor, cancel context
				return
			}
		}
	}()

	// Start browsing for HTTP services
	err = resolver.Browse(ctx, ServiceType, ServiceDomain, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	// Wait for service or timeout
	select {
	case service := <-serviceChan:
		return service, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no %s service found within timeout", vendor)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Service.
// Returns nil if the entry has no usable address. Services that match
// no known vendor are kept with an empty Vendor so the caller can still
// inspect everything the network advertises.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Service {
	// Get IP address (prefer IPv4)
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}

	// Fallback to IPv6 if no IPv4
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}

	if ip == "" {
		return nil
	}

	// Get port (default to 80 if not specified)
	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	// Parse TXT records into metadata
	text := make(map[string]string)
	for _, txt := range entry.Text {
		// TXT records are in "key=value" format
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			text[parts[0]] = parts[1]
		} else {
			// Key without value
			text[parts[0]] = ""
		}
	}

	return &Service{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Vendor:       matchVendor(entry, text),
		Text:         text,
		DiscoveredAt: time.Now(),
	}
}

// matchVendor checks an advertisement against the known vendor patterns
func matchVendor(entry *zeroconf.ServiceEntry, text map[string]string) string {
	for _, vp := range vendorPatterns {
		if vp.pattern.MatchString(entry.Instance) || vp.pattern.MatchString(entry.HostName) {
			return vp.vendor
		}
		for _, value := range text {
			if vp.pattern.MatchString(value) {
				return vp.vendor
			}
		}
	}
	return ""
}

// ScanServices is a convenience function to scan for services with a custom timeout
func ScanServices(timeout time.Duration) ([]*Service, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.ScanServices()
}

// QuickScan performs a fast scan with a 3-second timeout
func QuickScan() ([]*Service, error) {
	scanner := NewScanner()
	scanner.Timeout = 3 * time.Second
	return scanner.ScanServices()
}

// FindVendor searches for a specific vendor's service with default timeout
func FindVendor(vendor string) (*Service, error) {
	scanner := NewScanner()
	return scanner.WaitForVendor(vendor)
}
