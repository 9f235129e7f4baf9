//go:build ignore

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// Import the capture packages
	"github.com/muurk/fwprobe/internal/proxy"
	"github.com/muurk/fwprobe/internal/traffic"
)

// Statistics tracks capture log integrity across directories
type Statistics struct {
	TotalDirs          int
	RequestLines       int
	ResponseLines      int
	ParsedRequests     int
	ParsedResponses    int
	CompleteFlows      int
	RequestOnlyFlows   int
	ResponseOnlyFlows  int
	DuplicateIDs       int
	OrderingViolations int
	Problems           []Problem
}

// Problem stores information about a capture integrity issue
type Problem struct {
	Dir    string
	Detail string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: validate-capture <capture-dir> [capture-dir...]")
		fmt.Println("Example: validate-capture working/mitmproxy")
		fmt.Println("         validate-capture captures/sena captures/cardo")
		os.Exit(1)
	}

	stats := Statistics{
		Problems: []Problem{},
	}

	dirs := os.Args[1:]

	fmt.Printf("=== Capture Log Validator ===\n")
	fmt.Printf("Directories to process: %d\n\n", len(dirs))

	for _, dir := range dirs {
		processDir(dir, &stats)
	}

	printStatistics(&stats)

	if len(stats.Problems) > 0 {
		os.Exit(1)
	}
}

func processDir(dir string, stats *Statistics) {
	stats.TotalDirs++

	info, err := os.Stat(dir)
	if err != nil {
		addProblem(stats, dir, fmt.Sprintf("cannot access directory: %v", err))
		return
	}
	if !info.IsDir() {
		addProblem(stats, dir, "not a directory")
		return
	}

	reqPath := filepath.Join(dir, proxy.RequestLogName)
	respPath := filepath.Join(dir, proxy.ResponseLogName)

	// Raw line counts, to see how many lines the parser rejects
	reqLines := countLines(reqPath)
	respLines := countLines(respPath)
	stats.RequestLines += reqLines
	stats.ResponseLines += respLines

	requests, err := traffic.ReadRequests(reqPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		addProblem(stats, dir, fmt.Sprintf("request log unreadable: %v", err))
	}
	responses, err := traffic.ReadResponses(respPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		addProblem(stats, dir, fmt.Sprintf("response log unreadable: %v", err))
	}

	stats.ParsedRequests += len(requests)
	stats.ParsedResponses += len(responses)

	if dropped := reqLines - len(requests); dropped > 0 {
		addProblem(stats, dir, fmt.Sprintf("%d malformed line(s) in %s", dropped, proxy.RequestLogName))
	}
	if dropped := respLines - len(responses); dropped > 0 {
		addProblem(stats, dir, fmt.Sprintf("%d malformed line(s) in %s", dropped, proxy.ResponseLogName))
	}

	checkRequestIDs(dir, requests, stats)

	flows, err := traffic.LoadFlows(dir)
	if err != nil {
		var noCapture *traffic.NoCaptureError
		if errors.As(err, &noCapture) {
			addProblem(stats, dir, "no capture logs found")
			return
		}
		addProblem(stats, dir, fmt.Sprintf("flow pairing failed: %v", err))
		return
	}

	for _, flow := range flows {
		switch {
		case flow.Complete():
			stats.CompleteFlows++
		case flow.Request != nil:
			stats.RequestOnlyFlows++
		default:
			// Response without a matching request means the request
			// log lost a line somewhere
			stats.ResponseOnlyFlows++
			addProblem(stats, dir, fmt.Sprintf("response id %d has no matching request", flow.ID))
		}
	}
}

// checkRequestIDs verifies the addon's monotonically increasing ids
func checkRequestIDs(dir string, requests []traffic.RequestEntry, stats *Statistics) {
	seen := make(map[int]bool, len(requests))
	lastID := 0

	for _, req := range requests {
		if seen[req.ID] {
			stats.DuplicateIDs++
			addProblem(stats, dir, fmt.Sprintf("duplicate request id %d", req.ID))
		}
		seen[req.ID] = true

		if req.ID < lastID {
			stats.OrderingViolations++
			addProblem(stats, dir, fmt.Sprintf("request id %d appears after id %d", req.ID, lastID))
		}
		if req.ID > lastID {
			lastID = req.ID
		}
	}
}

func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			count++
		}
	}
	return count
}

func addProblem(stats *Statistics, dir, detail string) {
	stats.Problems = append(stats.Problems, Problem{Dir: dir, Detail: detail})
}

func printStatistics(stats *Statistics) {
	fmt.Printf("\n========================================\n")
	fmt.Printf("VALIDATION RESULTS\n")
	fmt.Printf("========================================\n\n")

	fmt.Printf("Directories Processed: %d\n", stats.TotalDirs)
	fmt.Printf("Request Lines:         %d (%d parsed)\n", stats.RequestLines, stats.ParsedRequests)
	fmt.Printf("Response Lines:        %d (%d parsed)\n", stats.ResponseLines, stats.ParsedResponses)

	fmt.Printf("\n----------------------------------------\n")
	fmt.Printf("FLOW PAIRING\n")
	fmt.Printf("----------------------------------------\n")
	total := stats.CompleteFlows + stats.RequestOnlyFlows + stats.ResponseOnlyFlows
	fmt.Printf("Total Flows:     %d\n", total)
	fmt.Printf("Complete:        %d\n", stats.CompleteFlows)
	fmt.Printf("Request Only:    %d (no response captured)\n", stats.RequestOnlyFlows)
	fmt.Printf("Response Only:   %d (orphaned)\n", stats.ResponseOnlyFlows)

	fmt.Printf("\n----------------------------------------\n")
	fmt.Printf("ID CHECKS\n")
	fmt.Printf("----------------------------------------\n")
	fmt.Printf("Duplicate IDs:        %d\n", stats.DuplicateIDs)
	fmt.Printf("Ordering Violations:  %d\n", stats.OrderingViolations)

	if len(stats.Problems) > 0 {
		fmt.Printf("\n----------------------------------------\n")
		fmt.Printf("PROBLEMS (%d total)\n", len(stats.Problems))
		fmt.Printf("----------------------------------------\n")

		maxShow := 10
		if len(stats.Problems) > maxShow {
			fmt.Printf("(Showing first %d of %d problems)\n", maxShow, len(stats.Problems))
		}

		for i, problem := range stats.Problems {
			if i >= maxShow {
				break
			}
			fmt.Printf("\nProblem #%d:\n", i+1)
			fmt.Printf("  Dir: %s\n", problem.Dir)
			fmt.Printf("  Detail: %s\n", problem.Detail)
		}
	}

	fmt.Printf("\n========================================\n")
	if len(stats.Problems) == 0 {
		fmt.Printf("✅ SUCCESS: All capture logs are consistent!\n")
	} else {
		fmt.Printf("⚠️  ISSUES FOUND: %d problem(s) detected\n", len(stats.Problems))
	}
	fmt.Printf("========================================\n")
}
