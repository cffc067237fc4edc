package store

import "errors"

var (
	// ErrCorruptRecord indicates that a stored integer could not be parsed.
	ErrCorruptRecord = errors.New("corrupt state record")
	// ErrUnsupportedVersion indicates a record written by an incompatible version.
	ErrUnsupportedVersion = errors.New("unsupported state record version")
)
