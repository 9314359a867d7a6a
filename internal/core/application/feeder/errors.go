package feeder

import "errors"

var (
	// ErrManagerClosed is returned by Close when invoked more than once.
	ErrManagerClosed = errors.New("feed manager is closed")
)
