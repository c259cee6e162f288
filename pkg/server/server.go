package server

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Status bits describing a backend node's availability and replication or
// cluster role. The monitor is the sole writer of a server's live status.
const (
	StatusRunning uint64 = 1 << iota
	StatusMaster
	StatusSlave
	// StatusSynced marks a node joined to a synchronous replication cluster.
	StatusSynced
	// StatusNDB marks a node joined to an alternate cluster engine.
	StatusNDB
	StatusMaintenance
)

// RoleMask covers the role flags a node may carry in addition to running.
const RoleMask = StatusMaster | StatusSlave | StatusSynced | StatusNDB

// Server is a backend database node shared between the monitoring subsystem
// and the rest of the proxy. The routing layer reads the live status while a
// monitor's polling loop writes it, so status access goes through atomics and
// every poll pass commits the status in a single store.
type Server struct {
	// Name is the network host the node is reached at.
	Name string
	// Port is the TCP port of the node.
	Port int
	// UniqueName identifies the server in configuration and logs.
	UniqueName string

	// MonUser and MonPassword optionally override the owning monitor's
	// default credentials for this node. MonPassword is stored encrypted.
	MonUser     string
	MonPassword string

	status atomic.Uint64
}

// New constructs a Server with no status flags set.
func New(uniqueName, name string, port int) *Server {
	return &Server{UniqueName: uniqueName, Name: name, Port: port}
}

// Status returns the live status bitmask.
func (s *Server) Status() uint64 { return s.status.Load() }

// SetStatus commits a full status bitmask in one atomic store.
func (s *Server) SetStatus(v uint64) { s.status.Store(v) }

// IsRunning reports whether the node answered its last poll.
func (s *Server) IsRunning() bool { return s.Status()&StatusRunning != 0 }

// IsDown reports whether the node is considered unreachable.
func (s *Server) IsDown() bool { return !s.IsRunning() }

// Addr returns the node address in "name:port" form, the shape used for
// script node lists and log lines.
func (s *Server) Addr() string { return fmt.Sprintf("%s:%d", s.Name, s.Port) }

// StatusString renders a status bitmask as a comma-separated flag list for
// state-change logging, e.g. "Running, Master".
func StatusString(status uint64) string {
	var parts []string
	for _, f := range []struct {
		bit  uint64
		name string
	}{
		{StatusMaintenance, "Maintenance"},
		{StatusMaster, "Master"},
		{StatusSlave, "Slave"},
		{StatusSynced, "Synced"},
		{StatusNDB, "NDB"},
		{StatusRunning, "Running"},
	} {
		if status&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	if status&StatusRunning == 0 {
		parts = append(parts, "Down")
	}
	return strings.Join(parts, ", ")
}
