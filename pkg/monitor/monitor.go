package monitor

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirimatin/go-dbmon/pkg/config"
	"github.com/amirimatin/go-dbmon/pkg/db"
	"github.com/amirimatin/go-dbmon/pkg/script"
	"github.com/amirimatin/go-dbmon/pkg/secrets"
	"github.com/amirimatin/go-dbmon/pkg/server"
	obsmetrics "github.com/amirimatin/go-dbmon/pkg/observability/metrics"
)

// State is the lifecycle state of a monitor instance.
type State int

const (
	StateAllocated State = iota
	StateRunning
	StateStopping
	StateStopped
	StateFreed
)

func (s State) String() string {
	switch s {
	case StateAllocated:
		return "Allocated"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateFreed:
		return "Freed"
	default:
		return "Unknown"
	}
}

// TimeoutKind selects which network timeout SetNetworkTimeout adjusts.
type TimeoutKind int

const (
	ConnectTimeout TimeoutKind = iota
	ReadTimeout
	WriteTimeout
)

// Defaults mirror a conservative monitoring profile: short probes, a 10s
// sampling interval.
const (
	defaultConnectTimeout = 3 * time.Second
	defaultReadTimeout    = 1 * time.Second
	defaultWriteTimeout   = 2 * time.Second
	defaultInterval       = 10 * time.Second
)

// Monitor is one configured monitoring policy: a module behavior plus an
// ordered list of monitored backend nodes. Monitors are created through a
// Registry and run their polling loops independently of each other.
type Monitor struct {
	name       string
	moduleName string
	module     Module

	mu      sync.Mutex
	state   State
	handle  Handle
	servers []*ServerRecord

	user     string
	password string // stored encrypted; decrypted at connect time

	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	interval       time.Duration

	params config.Parameters

	logger    zerolog.Logger
	connector db.Connector
	decryptor secrets.Decryptor
	runner    script.Runner
}

// Name returns the monitor's configured name. Names are not unique; the
// registry returns the first match.
func (m *Monitor) Name() string { return m.name }

// ModuleName returns the name the module was registered under.
func (m *Monitor) ModuleName() string { return m.moduleName }

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsRunning reports whether the monitor's module loop is active.
func (m *Monitor) IsRunning() bool { return m.State() == StateRunning }

// Logger returns the monitor's logger for module use. The pointer keeps
// zerolog's level methods callable directly on the return value.
func (m *Monitor) Logger() *zerolog.Logger { return &m.logger }

// Start invokes the module's start behavior with the given parameters and,
// on success, transitions to Running. Rejected while the monitor is running
// or still draining a stop; on failure the monitor keeps its prior state.
func (m *Monitor) Start(params *config.Parameters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateRunning || m.state == StateStopping {
		return ErrAlreadyRunning
	}
	if params == nil {
		params = &m.params
	}
	handle, err := m.module.Start(m, params)
	if err != nil {
		m.logger.Error().Err(err).Str("monitor", m.name).Msg("failed to start monitor")
		return err
	}
	m.handle = handle
	m.state = StateRunning
	obsmetrics.MonitorsRunning.Inc()
	return nil
}

// Stop halts a running monitor: it signals the module, waits for the loop to
// acknowledge, then closes and clears every record's connection. A no-op in
// any state but Running. The instance lock is released while waiting so an
// in-flight poll pass can finish; the pass itself takes the lock for server
// and timeout snapshots.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return
	}
	m.state = StateStopping
	handle := m.handle
	m.handle = nil
	m.mu.Unlock()

	m.module.Stop(handle)

	m.mu.Lock()
	m.state = StateStopped
	obsmetrics.MonitorsRunning.Dec()
	for _, rec := range m.servers {
		rec.closeConn()
	}
	m.mu.Unlock()
}

// AddServer appends a backend node to the tail of the monitored list. Legal
// in any state; a running module picks the node up on its next pass.
func (m *Monitor) AddServer(s *server.Server) {
	rec := newServerRecord(s)
	m.mu.Lock()
	m.servers = append(m.servers, rec)
	m.mu.Unlock()
}

// Servers returns a snapshot of the monitored-server list in insertion order.
func (m *Monitor) Servers() []*ServerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ServerRecord(nil), m.servers...)
}

// AddDefaultCredentials sets the monitor-wide credentials used when a node
// carries no override. The password is expected to be stored encrypted.
func (m *Monitor) AddDefaultCredentials(user, password string) {
	m.mu.Lock()
	m.user = user
	m.password = password
	m.mu.Unlock()
}

// SetInterval sets the sampling interval. A running monitor applies the new
// value when its loop arms the next poll timer.
func (m *Monitor) SetInterval(interval time.Duration) {
	m.mu.Lock()
	m.interval = interval
	m.mu.Unlock()
}

// Interval returns the sampling interval.
func (m *Monitor) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// SetNetworkTimeout adjusts one of the connect/read/write timeouts. Zero and
// negative values are rejected, as is an unknown kind; nothing is mutated on
// rejection.
func (m *Monitor) SetNetworkTimeout(kind TimeoutKind, seconds int) error {
	if seconds <= 0 {
		m.logger.Error().Int("value", seconds).Str("monitor", m.name).Msg("non-positive monitor timeout rejected")
		return ErrInvalidTimeout
	}
	d := time.Duration(seconds) * time.Second
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case ConnectTimeout:
		m.connectTimeout = d
	case ReadTimeout:
		m.readTimeout = d
	case WriteTimeout:
		m.writeTimeout = d
	default:
		m.logger.Error().Int("kind", int(kind)).Str("monitor", m.name).Msg("unsupported monitor timeout kind")
		return ErrUnknownTimeoutKind
	}
	return nil
}

// NetworkTimeouts returns the current timeouts as a db.Timeouts.
func (m *Monitor) NetworkTimeouts() db.Timeouts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return db.Timeouts{Connect: m.connectTimeout, Read: m.readTimeout, Write: m.writeTimeout}
}

// AddParameters clones the given parameters into the monitor's parameter
// mapping with prepend semantics: later additions shadow earlier ones.
func (m *Monitor) AddParameters(params []config.Parameter) {
	m.mu.Lock()
	m.params.Add(params)
	m.mu.Unlock()
}

// Parameters returns the monitor's parameter mapping.
func (m *Monitor) Parameters() *config.Parameters { return &m.params }

// free stops the monitor and releases its owned state. Called by the
// registry with the monitor already unlinked or being unlinked.
func (m *Monitor) free() {
	m.Stop()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.servers {
		rec.closeConn()
	}
	m.servers = nil
	m.params = config.Parameters{}
	m.state = StateFreed
}
