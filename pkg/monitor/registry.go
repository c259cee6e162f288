package monitor

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/amirimatin/go-dbmon/pkg/db"
	obsmetrics "github.com/amirimatin/go-dbmon/pkg/observability/metrics"
	"github.com/amirimatin/go-dbmon/pkg/script"
	"github.com/amirimatin/go-dbmon/pkg/secrets"
)

// Options carries the collaborators shared by all monitors of a registry.
type Options struct {
	// Logger for the registry and, with a per-monitor name field, for each
	// monitor. Defaults to a disabled logger.
	Logger zerolog.Logger
	// Connector dials backend nodes. Defaults to the MySQL connector.
	Connector db.Connector
	// Decryptor resolves stored passwords. Defaults to plain text.
	Decryptor secrets.Decryptor
	// Runner launches monitor scripts. Defaults to os/exec.
	Runner script.Runner
	// Modules is the table of named module implementations available to
	// Allocate.
	Modules map[string]Factory
}

func (o Options) withDefaults() Options {
	if o.Connector == nil {
		o.Connector = db.MySQLConnector{}
	}
	if o.Decryptor == nil {
		o.Decryptor = secrets.Plaintext{}
	}
	if o.Runner == nil {
		o.Runner = script.ExecRunner{}
	}
	return o
}

// Registry is the process-wide list of monitors. Its lock protects only the
// list structure; each monitor guards its own mutable state. It is
// constructed once at process start and torn down with Close.
type Registry struct {
	mu       sync.Mutex
	monitors []*Monitor
	opts     Options
}

// NewRegistry constructs an empty registry and registers the subsystem
// metrics.
func NewRegistry(opts Options) *Registry {
	obsmetrics.Register()
	return &Registry{opts: opts.withDefaults()}
}

// Allocate creates a monitor bound to the named module and prepends it to
// the registry. Name uniqueness is not enforced; Find returns the first
// match. An unknown module name fails the allocation.
func (r *Registry) Allocate(name, moduleName string) (*Monitor, error) {
	factory, ok := r.opts.Modules[moduleName]
	if !ok {
		r.opts.Logger.Error().Str("monitor", name).Str("module", moduleName).Msg("unable to load monitor module")
		return nil, fmt.Errorf("%w: %q", ErrModuleLoad, moduleName)
	}
	mon := &Monitor{
		name:           name,
		moduleName:     moduleName,
		module:         factory(),
		state:          StateAllocated,
		connectTimeout: defaultConnectTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		interval:       defaultInterval,
		logger:         r.opts.Logger.With().Str("monitor", name).Logger(),
		connector:      r.opts.Connector,
		decryptor:      r.opts.Decryptor,
		runner:         r.opts.Runner,
	}
	r.mu.Lock()
	r.monitors = append([]*Monitor{mon}, r.monitors...)
	r.mu.Unlock()
	return mon, nil
}

// Free stops the monitor, unlinks it from the registry by identity and
// releases its servers and parameters.
func (r *Registry) Free(mon *Monitor) {
	mon.Stop()
	r.mu.Lock()
	for i, m := range r.monitors {
		if m == mon {
			r.monitors = append(r.monitors[:i], r.monitors[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	mon.free()
}

// FindByName returns the first monitor whose name matches exactly, or nil.
func (r *Registry) FindByName(name string) *Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.monitors {
		if m.name == name {
			return m
		}
	}
	return nil
}

// snapshot copies the monitor list so blocking per-monitor operations never
// run under the registry lock.
func (r *Registry) snapshot() []*Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Monitor(nil), r.monitors...)
}

// Monitors returns a snapshot of all registered monitors.
func (r *Registry) Monitors() []*Monitor { return r.snapshot() }

// StartAll starts every monitor with its own parameter mapping. A single
// monitor's failure is logged and does not abort the iteration.
func (r *Registry) StartAll() {
	for _, m := range r.snapshot() {
		if err := m.Start(nil); err != nil {
			r.opts.Logger.Error().Err(err).Str("monitor", m.Name()).Msg("start-all: monitor failed to start")
		}
	}
}

// StopAll stops every running monitor.
func (r *Registry) StopAll() {
	for _, m := range r.snapshot() {
		m.Stop()
	}
}

// Info is one row of the monitor list snapshot.
type Info struct {
	Name    string
	Running bool
}

// List returns (name, isRunning) for every monitor, for display purposes.
func (r *Registry) List() []Info {
	out := make([]Info, 0)
	for _, m := range r.snapshot() {
		out = append(out, Info{Name: m.Name(), Running: m.IsRunning()})
	}
	return out
}

// Close stops all monitors. The registry is not usable afterwards.
func (r *Registry) Close() {
	r.StopAll()
}
