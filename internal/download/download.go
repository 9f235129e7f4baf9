// Package download fetches vendor updater packages into the local
// working directory.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/muurk/fwprobe/internal/catalog"
	"github.com/muurk/fwprobe/internal/logging"
)

const (
	// DefaultWorkingDir is where updater downloads land unless overridden
	DefaultWorkingDir = "working"

	// DefaultTimeout bounds a single download end to end. Updater
	// installers run to tens of megabytes, so this is generous.
	DefaultTimeout = 10 * time.Minute
)

// Result describes the outcome of a single vendor download.
type Result struct {
	// Vendor is the catalog vendor key
	Vendor string
	// URL is the resolved download URL
	URL string
	// Path is the local path of the downloaded file
	Path string
	// Bytes is the size of the file on disk
	Bytes int64
	// Duration is how long the transfer took (zero when skipped)
	Duration time.Duration
	// Skipped is true when the file already existed and Force was off
	Skipped bool
}

// Downloader fetches vendor updater packages resolved through the
// device catalog.
type Downloader struct {
	// WorkingDir is the directory downloads are written into.
	// Created on first use.
	WorkingDir string

	// Platform selects the catalog download variant ("windows",
	// "darwin"). Empty means the current OS. Unrecognized values fall
	// back to the vendor's Windows build.
	Platform string

	// Force re-downloads files that already exist
	Force bool

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client
}

// New creates a Downloader. An empty workingDir uses DefaultWorkingDir;
// an empty platform uses the current OS.
func New(workingDir, platform string) *Downloader {
	if workingDir == "" {
		workingDir = DefaultWorkingDir
	}
	if platform == "" {
		platform = runtime.GOOS
	}
	return &Downloader{
		WorkingDir: workingDir,
		Platform:   platform,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Resolve returns the URL/filename pair the downloader would fetch for
// a vendor, without touching the network.
func (d *Downloader) Resolve(vendorKey string) (catalog.Download, error) {
	cat, err := catalog.Load()
	if err != nil {
		return catalog.Download{}, err
	}
	vendor, ok := cat.Vendor(vendorKey)
	if !ok {
		return catalog.Download{}, &UnknownVendorError{Vendor: vendorKey, Known: cat.VendorKeys()}
	}
	return vendor.Resolve(d.Platform), nil
}

// Download fetches the updater package for one vendor. When the target
// file already exists and Force is off, the file is left untouched and
// the result reports Skipped.
func (d *Downloader) Download(ctx context.Context, vendorKey string) (*Result, error) {
	dl, err := d.Resolve(vendorKey)
	if err != nil {
		return nil, err
	}
	return d.Fetch(ctx, vendorKey, dl)
}

// Fetch downloads a specific URL/filename descriptor, bypassing catalog
// resolution. Download is the usual entry point; Fetch exists for
// one-off URLs.
func (d *Downloader) Fetch(ctx context.Context, vendorKey string, dl catalog.Download) (*Result, error) {
	if err := os.MkdirAll(d.WorkingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create working directory %s: %w", d.WorkingDir, err)
	}

	target := filepath.Join(d.WorkingDir, dl.Filename)

	if !d.Force {
		if info, err := os.Stat(target); err == nil {
			logging.LogDownload(vendorKey, dl.URL, target, info.Size(), true)
			return &Result{
				Vendor:  vendorKey,
				URL:     dl.URL,
				Path:    target,
				Bytes:   info.Size(),
				Skipped: true,
			}, nil
		}
	}

	start := time.Now()
	logging.LogDownload(vendorKey, dl.URL, target, 0, false)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dl.URL, nil)
	if err != nil {
		return nil, &DownloadError{Vendor: vendorKey, URL: dl.URL, Err: err}
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, &DownloadError{Vendor: vendorKey, URL: dl.URL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DownloadError{Vendor: vendorKey, URL: dl.URL, StatusCode: resp.StatusCode}
	}

	bytes, err := writeFile(target, resp.Body)
	if err != nil {
		return nil, &DownloadError{Vendor: vendorKey, URL: dl.URL, Err: err}
	}
	logFileHead(vendorKey, target)

	return &Result{
		Vendor:   vendorKey,
		URL:      dl.URL,
		Path:     target,
		Bytes:    bytes,
		Duration: time.Since(start),
	}, nil
}

// logFileHead debug-logs the leading bytes of a finished download. The
// file magic shows whether a vendor portal served a real installer or
// an HTML page where the download used to be.
func logFileHead(vendorKey, path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 32)
	n, _ := f.Read(head)
	if n == 0 {
		return
	}
	logging.LogRawBytes(vendorKey+" file head", head[:n])
}

// DownloadAll fetches the updater for every cataloged vendor. One
// vendor failing does not stop the others; all failures are joined
// into the returned error alongside the successful results.
func (d *Downloader) DownloadAll(ctx context.Context) ([]*Result, error) {
	cat, err := catalog.Load()
	if err != nil {
		return nil, err
	}

	var results []*Result
	var errs []error
	for _, key := range cat.VendorKeys() {
		result, err := d.Download(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}

// writeFile streams body to a temp file next to the target, then
// renames it into place so a partial transfer never masquerades as a
// finished download.
func writeFile(target string, body io.Reader) (int64, error) {
	partial := target + ".partial"

	f, err := os.Create(partial)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, body)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(partial)
		return 0, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(partial)
		return 0, err
	}

	if err := os.Rename(partial, target); err != nil {
		_ = os.Remove(partial)
		return 0, err
	}
	return n, nil
}

// DownloadError represents a failed fetch of a vendor updater package.
type DownloadError struct {
	// Vendor is the catalog vendor key
	Vendor string
	// URL is the download URL that failed
	URL string
	// StatusCode is set when the server responded with a non-2xx status
	StatusCode int
	// Err is the underlying transport or filesystem error, if any
	Err error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download failed for %s (HTTP %d): %s", e.Vendor, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("download failed for %s: %v", e.Vendor, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// UnknownVendorError indicates a vendor key with no catalog entry.
type UnknownVendorError struct {
	// Vendor is the unrecognized key
	Vendor string
	// Known lists valid vendor keys
	Known []string
}

func (e *UnknownVendorError) Error() string {
	return fmt.Sprintf("unknown vendor %q (known vendors: %v)", e.Vendor, e.Known)
}
