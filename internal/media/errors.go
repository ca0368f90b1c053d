package media

import (
	"errors"
	"fmt"
)

var (
	// ErrProbeFailed means ffprobe could not describe a file.
	ErrProbeFailed = errors.New("probe failed")

	// ErrInsufficientInputs is returned before any subprocess runs when a
	// merge gets fewer than two inputs.
	ErrInsufficientInputs = errors.New("at least two inputs are required")

	// ErrFastMergeIncompatible is the expected, recoverable failure of the
	// stream-copy path.
	ErrFastMergeIncompatible = errors.New("inputs cannot be stream-copied together")

	// ErrRobustMergeFailed is the terminal failure of the re-encode path.
	ErrRobustMergeFailed = errors.New("re-encode merge failed")

	// ErrMetadataUnavailable means an input could not be probed before re-encoding.
	ErrMetadataUnavailable = errors.New("input metadata unavailable")

	// ErrInvalidDuration means the inputs add up to zero seconds.
	ErrInvalidDuration = errors.New("total input duration is zero")
)

// MergeError carries the tool diagnostic of a failed merge attempt.
type MergeError struct {
	Strategy   Strategy
	ExitCode   int
	Diagnostic string // tail of ffmpeg stderr
	Err        error
}

func (e *MergeError) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("%s merge: %v", e.Strategy, e.Err)
	}
	return fmt.Sprintf("%s merge: %v (exit %d): %s", e.Strategy, e.Err, e.ExitCode, e.Diagnostic)
}

func (e *MergeError) Unwrap() error { return e.Err }

// Diagnostic returns the tool output attached to err, if any.
func Diagnostic(err error) string {
	var me *MergeError
	if errors.As(err, &me) {
		return me.Diagnostic
	}
	return ""
}
