package monitor

import (
	"io"

	"github.com/amirimatin/go-dbmon/pkg/config"
)

// Handle is the opaque per-monitor state a module returns from Start. The
// core stores it and hands it back to Stop; it never looks inside.
type Handle interface{}

// Module supplies the type-specific probing behavior of a monitor. The core
// owns the generic lifecycle and shared polling infrastructure; the module
// owns the polling loop itself.
//
// Start launches the module's loop for mon and returns its handle, or an
// error when the monitor cannot start (the monitor then stays in its prior
// state). Stop signals the loop to halt and blocks until it has acknowledged;
// it must tolerate a handle whose loop has already ended.
type Module interface {
	Start(mon *Monitor, params *config.Parameters) (Handle, error)
	Stop(h Handle)
}

// Diagnoser is an optional module capability for free-form diagnostics
// output on the admin surface.
type Diagnoser interface {
	Diagnostics(w io.Writer, mon *Monitor)
}

// Factory constructs a module instance. Module implementations are selected
// by name at configuration time through the registry's module table.
type Factory func() Module
