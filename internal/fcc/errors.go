package fcc

import (
	"fmt"

	"github.com/muurk/fwprobe/internal/urls"
)

// NotFoundError indicates fcc.report has no filing for the requested ID.
// Either the ID is mistyped or the filing predates the fcc.report index.
type NotFoundError struct {
	// FCCID is the ID that was looked up
	FCCID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no FCC filing found for ID %q\n"+
		"Hint: Verify the ID printed on the device label, or browse %s%s manually.",
		e.FCCID, urls.FCCReportBase, e.FCCID)
}

// APIError represents an unexpected response from the fcc.report API
// (anything other than 200 or 404).
type APIError struct {
	// FCCID is the ID that was looked up
	FCCID string
	// StatusCode is the HTTP status returned by the API
	StatusCode int
	// Body holds the start of the response body for diagnostics
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fcc.report API returned HTTP %d for ID %q", e.StatusCode, e.FCCID)
}

// IsNotFound reports whether an error is a missing-filing lookup result.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
