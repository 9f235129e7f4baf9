// Package analyze extracts printable strings from updater binaries by
// shelling out to the binutils strings tool.
package analyze

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/fwprobe/internal/logging"
)

const (
	// DefaultMinLength is the shortest printable run worth reporting
	DefaultMinLength = 4

	// DefaultStringsPath is the strings binary, resolved via PATH
	DefaultStringsPath = "strings"

	// DefaultTimeout bounds one strings invocation
	DefaultTimeout = 2 * time.Minute

	// OutputDirName is the per-run report directory under the working dir
	OutputDirName = "strings_analysis"
)

// updaterExtensions are the file types AnalyzeAll considers updater
// payloads worth running strings over.
var updaterExtensions = map[string]bool{
	".exe": true,
	".dll": true,
	".pkg": true,
	".dmg": true,
	".app": true,
	".apk": true,
}

// Result summarizes one analyzed binary.
type Result struct {
	// Input is the analyzed file
	Input string
	// OutputFile is the persisted report path, empty when not saved
	OutputFile string
	// Count is the number of strings extracted
	Count int
	// Duration is how long the strings run took
	Duration time.Duration
}

// Analyzer runs the strings tool over binaries.
type Analyzer struct {
	// MinLength is the shortest string to report (strings -n)
	MinLength int

	// StringsPath is the strings binary to invoke
	StringsPath string

	// Timeout bounds a single invocation
	Timeout time.Duration
}

// New creates an Analyzer with the default minimum length and a
// PATH-resolved strings binary.
func New() *Analyzer {
	return &Analyzer{
		MinLength:   DefaultMinLength,
		StringsPath: DefaultStringsPath,
		Timeout:     DefaultTimeout,
	}
}

// Analyze runs strings over one file and returns the extracted strings.
// When outputFile is non-empty the raw tool output is also written
// there, creating parent directories as needed.
func (a *Analyzer) Analyze(ctx context.Context, path, outputFile string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &MissingFileError{Path: path}
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if _, err := exec.LookPath(a.StringsPath); err != nil {
		return nil, &ToolNotFoundError{
			Tool: a.StringsPath,
			Hint: "Install the binutils package to get the strings tool.",
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	args := []string{"-n", strconv.Itoa(a.MinLength), path}
	logging.LogCommand(a.StringsPath, args)

	cmd := exec.CommandContext(timeoutCtx, a.StringsPath, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return nil, &ExecutionError{
			File:     path,
			ExitCode: exitCode,
			Stderr:   stderrBuf.String(),
			Err:      err,
		}
	}

	if outputFile != "" {
		if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(outputFile, stdoutBuf.Bytes(), 0644); err != nil {
			return nil, fmt.Errorf("failed to write strings output: %w", err)
		}
	}

	return splitStrings(stdoutBuf.String()), nil
}

// AnalyzeAll runs strings over every updater-like file directly in dir
// (.exe, .dll, .pkg, .dmg, .app, .apk), writing one report per input
// into outDir. A file that fails to analyze does not stop the rest; the
// error is recorded against its name.
func (a *Analyzer) AnalyzeAll(ctx context.Context, dir, outDir string) (map[string]*Result, map[string]error, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	results := make(map[string]*Result)
	failures := make(map[string]error)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !updaterExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		input := filepath.Join(dir, entry.Name())
		output := filepath.Join(outDir, OutputName(entry.Name()))

		start := time.Now()
		extracted, err := a.Analyze(ctx, input, output)
		if err != nil {
			failures[entry.Name()] = err
			continue
		}

		results[entry.Name()] = &Result{
			Input:      input,
			OutputFile: output,
			Count:      len(extracted),
			Duration:   time.Since(start),
		}
	}

	return results, failures, nil
}

// OutputName returns the report filename for an input binary,
// e.g. "Setup.exe" becomes "Setup_strings.txt".
func OutputName(input string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem + "_strings.txt"
}

// splitStrings turns raw strings output into a slice, dropping the
// trailing newline artifact.
func splitStrings(output string) []string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

// MissingFileError indicates the binary to analyze does not exist.
type MissingFileError struct {
	// Path is the missing file
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("file not found: %s", e.Path)
}

// ToolNotFoundError indicates the strings binary is not installed.
type ToolNotFoundError struct {
	// Tool is the binary that could not be resolved
	Tool string
	// Hint suggests how to install it
	Hint string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("%s not found in PATH\n%s", e.Tool, e.Hint)
}

// ExecutionError indicates the strings tool ran but failed.
type ExecutionError struct {
	// File is the input binary
	File string
	// ExitCode is the tool's exit code (-1 when it never started)
	ExitCode int
	// Stderr is the tool's stderr output
	Stderr string
	// Err is the underlying process error
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("strings failed for %s (exit code %d): %s", e.File, e.ExitCode, e.Stderr)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
