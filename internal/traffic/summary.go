package traffic

import (
	"path/filepath"
	"sort"
	"strings"
)

// firmwareHints are URL fragments that mark a request as a likely
// firmware download. Kept in sync with the capture addon.
var firmwareHints = []string{".bin", ".hex", ".fw", ".firmware"}

// IsFirmwareURL reports whether a URL looks like a firmware download.
func IsFirmwareURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, hint := range firmwareHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// FirmwareCandidate reports whether a flow looks like a firmware
// download, by URL or by response Content-Type.
func FirmwareCandidate(f *Flow) bool {
	if f.Request != nil && IsFirmwareURL(f.Request.URL) {
		return true
	}
	if f.Response != nil && strings.Contains(strings.ToLower(f.Response.ContentType()), "bin") {
		return true
	}
	return false
}

// Summary aggregates one capture directory.
type Summary struct {
	// RequestCount is the number of captured requests
	RequestCount int `json:"request_count"`

	// ResponseCount is the number of captured responses
	ResponseCount int `json:"response_count"`

	// Hosts maps request host to hit count
	Hosts map[string]int `json:"hosts"`

	// Methods maps HTTP method to hit count
	Methods map[string]int `json:"methods"`

	// StatusCodes maps response status to hit count
	StatusCodes map[int]int `json:"status_codes"`

	// FirmwareURLs are the distinct firmware-candidate request URLs, in
	// capture order
	FirmwareURLs []string `json:"firmware_urls,omitempty"`

	// SavedFirmware are the firmware_*.bin payloads the addon dumped,
	// as file names relative to the capture directory
	SavedFirmware []string `json:"saved_firmware,omitempty"`
}

// TopHosts returns the hosts sorted by hit count, busiest first.
func (s *Summary) TopHosts() []string {
	hosts := make([]string, 0, len(s.Hosts))
	for host := range s.Hosts {
		hosts = append(hosts, host)
	}
	sort.Slice(hosts, func(i, j int) bool {
		if s.Hosts[hosts[i]] != s.Hosts[hosts[j]] {
			return s.Hosts[hosts[i]] > s.Hosts[hosts[j]]
		}
		return hosts[i] < hosts[j]
	})
	return hosts
}

// Summarize loads the capture logs in dir and aggregates them.
func Summarize(dir string) (*Summary, error) {
	flows, err := LoadFlows(dir)
	if err != nil {
		return nil, err
	}
	summary := SummarizeFlows(flows)

	saved, err := filepath.Glob(filepath.Join(dir, "firmware_*.bin"))
	if err == nil {
		for _, path := range saved {
			summary.SavedFirmware = append(summary.SavedFirmware, filepath.Base(path))
		}
		sort.Strings(summary.SavedFirmware)
	}

	return summary, nil
}

// SummarizeFlows aggregates already-loaded flows.
func SummarizeFlows(flows []*Flow) *Summary {
	summary := &Summary{
		Hosts:       make(map[string]int),
		Methods:     make(map[string]int),
		StatusCodes: make(map[int]int),
	}

	seenURL := make(map[string]bool)
	for _, flow := range flows {
		if flow.Request != nil {
			summary.RequestCount++
			summary.Hosts[flow.Request.Host()]++
			summary.Methods[flow.Request.Method]++
			if FirmwareCandidate(flow) && !seenURL[flow.Request.URL] {
				seenURL[flow.Request.URL] = true
				summary.FirmwareURLs = append(summary.FirmwareURLs, flow.Request.URL)
			}
		}
		if flow.Response != nil {
			summary.ResponseCount++
			summary.StatusCodes[flow.Response.StatusCode]++
		}
	}

	return summary
}
