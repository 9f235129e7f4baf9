// Package discovery provides mDNS-based scanning for device update services.
//
// This package implements multicast DNS (mDNS) service discovery to locate
// HTTP services on the local network. Intercom headsets and their companion
// hardware (WiFi adapters, charging cradles) expose plain "_http._tcp"
// endpoints that serve or fetch firmware, and finding them shows the
// device-side half of an update that the capture proxy cannot see.
//
// # Discovery Process
//
// The discovery process works as follows:
//  1. Broadcasts mDNS queries on the local network
//  2. Listens for "_http._tcp" service advertisements
//  3. Tags services whose names match known vendors (Sena, Cardo, Motorola)
//  4. Collects service information (instance name, hostname, IP, TXT records)
//  5. Returns everything found after the timeout period
//
// Unknown services are kept rather than filtered out. During an
// investigation an unrecognized advertisement is often the interesting one.
//
// # Usage Example
//
//	// Discover services with 10-second timeout
//	services, err := discovery.ScanServices(10 * time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Print discovered services
//	for _, service := range services {
//	    fmt.Printf("Found: %s (vendor: %s)\n", service, service.Vendor)
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Services must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
//
// To see a headset's own update endpoint, join the hotspot the device
// creates in pairing mode first.
//
// # Thread Safety
//
// This package is safe for concurrent use. Multiple discovery sessions can
// run simultaneously without interference.
package discovery
