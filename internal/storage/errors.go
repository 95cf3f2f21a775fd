package storage

import "errors"

var (
	// ErrFileExists is returned by Mirror.Save when the target file is
	// already present and overwriting is disabled. Callers usually treat
	// it as "keep the earlier copy" rather than as a failure.
	ErrFileExists = errors.New("file already exists")

	// ErrUnsafePath is returned when a URL maps to a path outside the
	// mirror directory, e.g. through ".." path segments.
	ErrUnsafePath = errors.New("url maps outside the save directory")

	// ErrEmptyURL is returned when the URL has no usable path segments.
	ErrEmptyURL = errors.New("url has no path segments")
)
