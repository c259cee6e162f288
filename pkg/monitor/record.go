package monitor

import (
	"github.com/amirimatin/go-dbmon/pkg/db"
	"github.com/amirimatin/go-dbmon/pkg/server"
)

// prevUnset marks a record whose previous status has never been recorded.
// A record stays unset exactly until its first completed poll pass.
const prevUnset = ^uint64(0)

// ServerRecord is the per-node bookkeeping a monitor keeps for one backend.
// It holds a non-owning reference to the shared Server entity and owns the
// monitoring connection. Outside of list mutation (guarded by the monitor
// lock), a record is only touched by its monitor's polling loop.
type ServerRecord struct {
	Server *server.Server

	conn          db.Conn
	prevStatus    uint64
	pendingStatus uint64
	errCount      int
	versionWarned bool
}

func newServerRecord(s *server.Server) *ServerRecord {
	return &ServerRecord{Server: s, prevStatus: prevUnset}
}

// Conn returns the record's connection handle, nil when not connected.
func (r *ServerRecord) Conn() db.Conn { return r.conn }

func (r *ServerRecord) closeConn() {
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

// ResetPending clears the pending status at the start of a probe.
func (r *ServerRecord) ResetPending() { r.pendingStatus = 0 }

// SetPendingStatus sets status bits accumulated during the current probe.
func (r *ServerRecord) SetPendingStatus(bits uint64) { r.pendingStatus |= bits }

// ClearPendingStatus clears status bits from the pending mask.
func (r *ServerRecord) ClearPendingStatus(bits uint64) { r.pendingStatus &^= bits }

// PendingStatus returns the accumulated pending mask.
func (r *ServerRecord) PendingStatus() uint64 { return r.pendingStatus }

// Commit publishes the pending status to the shared server entity in a
// single atomic store.
func (r *ServerRecord) Commit() { r.Server.SetStatus(r.pendingStatus) }

// PrevStatus returns the status recorded at the end of the last pass, or
// the unset sentinel before the first pass completes.
func (r *ServerRecord) PrevStatus() uint64 { return r.prevStatus }

// UpdatePrev records the committed status as the baseline for the next pass.
func (r *ServerRecord) UpdatePrev() { r.prevStatus = r.Server.Status() }

// StatusChanged reports whether the committed status differs from the
// previous pass. It is false until the first pass has completed.
func (r *ServerRecord) StatusChanged() bool {
	return r.prevStatus != prevUnset && r.prevStatus != r.Server.Status()
}

// Event classifies the transition between the previous and committed status.
func (r *ServerRecord) Event() Event {
	if r.prevStatus == prevUnset {
		return EventNone
	}
	return Classify(r.prevStatus, r.Server.Status())
}

// ShouldLogFailure reports whether a connect failure on this node is worth a
// log line: the node is down and this is its first consecutive failure.
func (r *ServerRecord) ShouldLogFailure() bool {
	return r.Server.IsDown() && r.errCount == 0
}

// IncErrCount bumps the consecutive-failure counter.
func (r *ServerRecord) IncErrCount() { r.errCount++ }

// ResetErrCount clears the consecutive-failure counter after a success.
func (r *ServerRecord) ResetErrCount() { r.errCount = 0 }

// ErrCount returns the consecutive-failure counter.
func (r *ServerRecord) ErrCount() int { return r.errCount }

// WarnVersionOnce returns true the first time it is called for this record,
// gating a log-once backend version diagnostic.
func (r *ServerRecord) WarnVersionOnce() bool {
	if r.versionWarned {
		return false
	}
	r.versionWarned = true
	return true
}
