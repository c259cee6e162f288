package monitor

import "errors"

var (
	// ErrModuleLoad is returned by Allocate when the named module is not
	// registered.
	ErrModuleLoad = errors.New("monitor: unknown module")
	// ErrNotFound is returned when a monitor name matches nothing.
	ErrNotFound = errors.New("monitor: not found")
	// ErrAlreadyRunning is returned by Start on a running monitor.
	ErrAlreadyRunning = errors.New("monitor: already running")
	// ErrInvalidTimeout rejects zero or negative timeout values.
	ErrInvalidTimeout = errors.New("monitor: timeout must be positive")
	// ErrUnknownTimeoutKind rejects an unrecognized timeout selector.
	ErrUnknownTimeoutKind = errors.New("monitor: unknown timeout kind")
	// ErrUnknownEvent marks an unparseable event name.
	ErrUnknownEvent = errors.New("monitor: unknown event")
)
