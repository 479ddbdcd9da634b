package playout

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by transitions that require a live OBS
// connection. It is surfaced to the caller, never retried.
var ErrNotConnected = errors.New("obs is not connected")

// InvalidPathError rejects a media path outside the configured media root.
// It is a user input error, raised before any engine call is made.
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("path %q is outside the media root", e.Path)
}

// IsInvalidPath reports whether err is an InvalidPathError.
func IsInvalidPath(err error) bool {
	var ipe *InvalidPathError
	return errors.As(err, &ipe)
}
