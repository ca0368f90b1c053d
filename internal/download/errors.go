package download

import (
	"errors"
	"fmt"
)

// ErrDownloadFailed is wrapped by every download error except cancellation.
var ErrDownloadFailed = errors.New("download failed")

// Error describes why one queue item could not be fetched.
type Error struct {
	Name       string
	StatusCode int    // non-2xx HTTP status, 0 otherwise
	Reason     string // e.g. "empty file", "stalled"
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("download %s: HTTP %d", e.Name, e.StatusCode)
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("download %s: %s: %v", e.Name, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("download %s: %s", e.Name, e.Reason)
	default:
		return fmt.Sprintf("download %s: %v", e.Name, e.Err)
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDownloadFailed}
	}
	return []error{ErrDownloadFailed, e.Err}
}
