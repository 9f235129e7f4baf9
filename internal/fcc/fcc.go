// Package fcc resolves device identities through FCC filings.
//
// Every radio-bearing device sold in the US carries an FCC ID, and the
// public filing behind it names the manufacturer, internal photos, and
// often the exact radio chipset. That makes the ID the fastest route
// from a device on the bench to its update ecosystem. The package keeps
// a small static table of known devices (backed by the catalog package)
// and can fetch full filing details from the fcc.report JSON API.
package fcc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/muurk/fwprobe/internal/catalog"
	"github.com/muurk/fwprobe/internal/logging"
	"github.com/muurk/fwprobe/internal/urls"
)

const (
	// DefaultTimeout is the default HTTP request timeout for API lookups
	DefaultTimeout = 10 * time.Second

	// maxBodySnippet bounds how much of an error response body is kept
	// for diagnostics
	maxBodySnippet = 512
)

// Lookup returns the catalog entry for a device key such as "sena_50s".
// Unknown keys return ok=false; Lookup itself never fails.
func Lookup(key string) (*catalog.Device, bool) {
	cat, err := catalog.Load()
	if err != nil {
		return nil, false
	}
	return cat.Device(key)
}

// List returns every cataloged device sorted by key.
func List() []*catalog.Device {
	cat, err := catalog.Load()
	if err != nil {
		return nil
	}
	keys := cat.DeviceKeys()
	devices := make([]*catalog.Device, 0, len(keys))
	for _, key := range keys {
		if d, ok := cat.Device(key); ok {
			devices = append(devices, d)
		}
	}
	return devices
}

// ReportURL returns the human-readable fcc.report filing page for an FCC ID.
func ReportURL(fccID string) string {
	return urls.FCCReportBase + url.PathEscape(fccID)
}

// Client queries the fcc.report JSON API for filing details.
type Client struct {
	// APIBase is the API URL prefix; the FCC ID is appended directly.
	// Defaults to urls.FCCAPIBase.
	APIBase string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client
}

// NewClient creates a client for the public fcc.report API.
func NewClient() *Client {
	return &Client{
		APIBase:    urls.FCCAPIBase,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// FetchReport retrieves filing details for an FCC ID from fcc.report.
// A 404 response becomes a *NotFoundError; any other non-200 status
// becomes an *APIError. The decoded JSON document is returned as-is
// because the API schema varies by filing type.
func (c *Client) FetchReport(ctx context.Context, fccID string) (map[string]interface{}, error) {
	reqURL := c.APIBase + url.PathEscape(fccID)
	logging.LogCommand("fcc-api", []string{"GET", reqURL})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create FCC API request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("FCC API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{FCCID: fccID}
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
		return nil, &APIError{FCCID: fccID, StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read FCC API response: %w", err)
	}

	var report map[string]interface{}
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("failed to parse FCC API response: %w", err)
	}

	return report, nil
}
