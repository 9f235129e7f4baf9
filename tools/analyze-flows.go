//go:build ignore

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RequestEntry matches the structure the capture addon writes
type RequestEntry struct {
	ID        int               `json:"id"`
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	Timestamp float64           `json:"timestamp"`
}

// ResponseEntry matches the structure the capture addon writes
type ResponseEntry struct {
	ID            int               `json:"id"`
	StatusCode    int               `json:"status_code"`
	Headers       map[string]string `json:"headers"`
	ContentLength int64             `json:"content_length"`
	Timestamp     float64           `json:"timestamp"`
}

// firmwareHints matches the capture addon's idea of a firmware URL
var firmwareHints = []string{".bin", ".hex", ".fw", ".firmware"}

func main() {
	dir := "working/mitmproxy"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	requests := readRequests(filepath.Join(dir, "requests.jsonl"))
	responses := readResponses(filepath.Join(dir, "responses.jsonl"))

	if len(requests) == 0 && len(responses) == 0 {
		fmt.Printf("No capture logs found in %s\n\n", dir)
		fmt.Println("Usage: analyze-flows [capture-dir]")
		fmt.Println("Example: analyze-flows working/mitmproxy")
		os.Exit(1)
	}

	fmt.Printf("=== Capture Flow Analyzer ===\n")
	fmt.Printf("Directory: %s\n", dir)
	fmt.Printf("Requests:  %d\n", len(requests))
	fmt.Printf("Responses: %d\n\n", len(responses))

	responseByID := make(map[int]ResponseEntry, len(responses))
	for _, resp := range responses {
		responseByID[resp.ID] = resp
	}

	printHosts(requests)
	printMethods(requests)
	printStatusCodes(responses)
	printContentTypes(responses)
	printFirmwareCandidates(requests, responseByID)
	printSavedFirmware(dir)
}

func readRequests(path string) []RequestEntry {
	var entries []RequestEntry
	forEachLine(path, func(line string) {
		var entry RequestEntry
		if err := json.Unmarshal([]byte(line), &entry); err == nil {
			entries = append(entries, entry)
		}
	})
	return entries
}

func readResponses(path string) []ResponseEntry {
	var entries []ResponseEntry
	forEachLine(path, func(line string) {
		var entry ResponseEntry
		if err := json.Unmarshal([]byte(line), &entry); err == nil {
			entries = append(entries, entry)
		}
	})
	return entries
}

func forEachLine(path string, fn func(line string)) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			fn(line)
		}
	}
}

func host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

func printHosts(requests []RequestEntry) {
	counts := make(map[string]int)
	for _, req := range requests {
		counts[host(req.URL)]++
	}

	fmt.Println("Hosts Contacted:")
	fmt.Println("Hits    Host")
	fmt.Println("------  ----------------------------------------")
	for _, h := range sortedByCount(counts) {
		fmt.Printf("%6d  %s\n", counts[h], h)
	}
	fmt.Println()
}

func printMethods(requests []RequestEntry) {
	counts := make(map[string]int)
	for _, req := range requests {
		counts[req.Method]++
	}

	fmt.Println("Methods:")
	for _, method := range sortedByCount(counts) {
		fmt.Printf("  %-8s %d\n", method, counts[method])
	}
	fmt.Println()
}

func printStatusCodes(responses []ResponseEntry) {
	counts := make(map[string]int)
	for _, resp := range responses {
		counts[fmt.Sprintf("%d", resp.StatusCode)]++
	}

	fmt.Println("Status Codes:")
	for _, code := range sortedByCount(counts) {
		fmt.Printf("  %-8s %d\n", code, counts[code])
	}
	fmt.Println()
}

func contentType(resp ResponseEntry) string {
	for key, value := range resp.Headers {
		if strings.EqualFold(key, "Content-Type") {
			if idx := strings.Index(value, ";"); idx > 0 {
				return value[:idx]
			}
			return value
		}
	}
	return "(none)"
}

func printContentTypes(responses []ResponseEntry) {
	counts := make(map[string]int)
	for _, resp := range responses {
		counts[contentType(resp)]++
	}

	fmt.Println("Content Types:")
	for _, ct := range sortedByCount(counts) {
		fmt.Printf("  %-40s %d\n", ct, counts[ct])
	}
	fmt.Println()
}

func isFirmwareURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, hint := range firmwareHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func printFirmwareCandidates(requests []RequestEntry, responseByID map[int]ResponseEntry) {
	fmt.Println("Firmware Candidates:")
	found := 0
	for _, req := range requests {
		resp, haveResp := responseByID[req.ID]
		binContent := haveResp && strings.Contains(strings.ToLower(contentType(resp)), "bin")
		if !isFirmwareURL(req.URL) && !binContent {
			continue
		}
		found++

		size := "no response"
		if haveResp {
			size = fmt.Sprintf("%d bytes, %s", resp.ContentLength, contentType(resp))
		}
		fmt.Printf("  [%d] %s %s\n", req.ID, req.Method, req.URL)
		fmt.Printf("       %s\n", size)
	}
	if found == 0 {
		fmt.Println("  (none)")
	}
	fmt.Println()
}

func printSavedFirmware(dir string) {
	saved, err := filepath.Glob(filepath.Join(dir, "firmware_*.bin"))
	if err != nil || len(saved) == 0 {
		return
	}
	sort.Strings(saved)

	fmt.Println("Saved Firmware Payloads:")
	for _, path := range saved {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		fmt.Printf("  %-30s %d bytes\n", filepath.Base(path), info.Size())
	}
	fmt.Println()
}

// sortedByCount orders keys by descending count, then name
func sortedByCount(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
