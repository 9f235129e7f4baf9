// Package urls provides centralized constants for the external URLs used
// throughout the application.
//
// This package was created to enable URL updates without hunting through code.
// Tool download pages and FCC endpoints are defined here as exported constants
// and can be updated in a single location before release.
//
// Usage:
//
//	import "github.com/muurk/fwprobe/internal/urls"
//
//	fmt.Printf("Install mitmproxy from: %s\n", urls.MitmproxyDownload)
package urls
