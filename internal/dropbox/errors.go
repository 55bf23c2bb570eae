package dropbox

import (
	"fmt"
	"net/http"
	"strings"
)

// APIError is returned when the Dropbox API answers with a non-2xx status.
type APIError struct {
	Op      string
	Status  int
	Summary string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dropbox %s failed: status %d: %s", e.Op, e.Status, e.Summary)
}

// IsNotFound reports whether err represents a missing path. Dropbox signals
// this with a 409 whose error_summary starts with "path/not_found" (or
// "path_lookup/not_found" on download), so both are matched along with a
// plain 404.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	if apiErr.Status == http.StatusNotFound {
		return true
	}
	return apiErr.Status == http.StatusConflict && strings.Contains(apiErr.Summary, "not_found")
}

// IsSharedLinkExists reports whether err is the conflict returned when a
// shared link already exists for a path.
func IsSharedLinkExists(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	return apiErr.Status == http.StatusConflict && strings.Contains(apiErr.Summary, "shared_link_already_exists")
}
