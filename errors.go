package ghostbuses

import (
	"errors"
	"fmt"
)

var (
	// A date's realtime observations could not be fetched. The
	// date is skipped.
	ErrDataUnavailable = errors.New("realtime data unavailable")

	// No schedule version could be loaded.
	ErrNoSchedules = errors.New("no schedule version could be loaded")

	// No date in the requested range had realtime data.
	ErrNoRealtimeData = errors.New("no realtime data in requested range")

	// Storage and the resolved calendar disagree on a date's
	// services.
	ErrServiceMismatch = errors.New("active services mismatch")
)

// Failure to process a single schedule version. Other versions are
// unaffected.
type VersionError struct {
	Version string
	Err     error
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("schedule version %s: %v", e.Version, e.Err)
}

func (e *VersionError) Unwrap() error {
	return e.Err
}
