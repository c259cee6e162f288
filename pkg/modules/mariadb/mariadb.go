// Package mariadb implements the replication-cluster monitoring module. Each
// pass probes every registered node, derives master/slave roles from the
// backend's read_only flag and publishes the result through the shared server
// entities.
package mariadb

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/amirimatin/go-dbmon/pkg/config"
	"github.com/amirimatin/go-dbmon/pkg/db"
	"github.com/amirimatin/go-dbmon/pkg/monitor"
	obsmetrics "github.com/amirimatin/go-dbmon/pkg/observability/metrics"
	"github.com/amirimatin/go-dbmon/pkg/server"
)

// ModuleName is the name the module registers under.
const ModuleName = "mariadbmon"

const (
	paramScript = "script"
	paramEvents = "events"

	readOnlyQuery = "SELECT @@global.read_only"
	versionQuery  = "SELECT VERSION()"
)

// Module is the replication monitoring behavior. A single Module value may
// back any number of monitors; all per-monitor state lives in the handle.
type Module struct{}

// New constructs the module. Registered under ModuleName.
func New() monitor.Module { return &Module{} }

type handle struct {
	stop chan struct{}
	done chan struct{}
}

// Start validates the script and event parameters and launches the polling
// loop. An unparseable event list fails the start.
func (mod *Module) Start(mon *monitor.Monitor, params *config.Parameters) (monitor.Handle, error) {
	script := params.GetOr(paramScript, "")
	var enabled map[monitor.Event]bool
	if list := params.GetOr(paramEvents, ""); list != "" {
		var err error
		enabled, err = monitor.ParseEventList(list)
		if err != nil {
			return nil, fmt.Errorf("parse %s parameter: %w", paramEvents, err)
		}
	}
	h := &handle{stop: make(chan struct{}), done: make(chan struct{})}
	go run(mon, h, script, enabled)
	return h, nil
}

// Stop signals the loop and blocks until it has exited.
func (mod *Module) Stop(h monitor.Handle) {
	hh, ok := h.(*handle)
	if !ok || hh == nil {
		return
	}
	close(hh.stop)
	<-hh.done
}

func run(mon *monitor.Monitor, h *handle, script string, enabled map[monitor.Event]bool) {
	defer close(h.done)
	ctx := context.Background()

	// First pass immediately, then on the sampling interval. The timer is
	// re-armed from the monitor after every pass so SetInterval takes effect
	// on a running loop.
	pollPass(ctx, mon, script, enabled)
	timer := time.NewTimer(mon.Interval())
	defer timer.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-timer.C:
			pollPass(ctx, mon, script, enabled)
			timer.Reset(mon.Interval())
		}
	}
}

// pollPass probes every node, then walks the results in registration order
// logging transitions and dispatching the script for enabled events.
func pollPass(ctx context.Context, mon *monitor.Monitor, script string, enabled map[monitor.Event]bool) {
	records := mon.Servers()
	for _, rec := range records {
		probeNode(ctx, mon, rec)
	}
	for _, rec := range records {
		if rec.StatusChanged() {
			mon.LogStateChange(rec)
			ev := rec.Event()
			if ev != monitor.EventNone {
				obsmetrics.EventsFired.WithLabelValues(mon.Name(), ev.String()).Inc()
				if script != "" && eventEnabled(enabled, ev) {
					mon.LaunchScript(ctx, rec, ev, script)
				}
			}
		}
		rec.UpdatePrev()
	}
	obsmetrics.PollPasses.WithLabelValues(mon.Name()).Inc()
}

// probeNode runs one node's probe and commits the resulting status in a
// single store.
func probeNode(ctx context.Context, mon *monitor.Monitor, rec *monitor.ServerRecord) {
	rec.ResetPending()
	res := mon.Connect(ctx, rec)
	if res != db.ConnectOK {
		rec.Commit()
		if rec.ShouldLogFailure() {
			mon.LogConnectError(rec, res)
		}
		rec.IncErrCount()
		return
	}
	rec.SetPendingStatus(server.StatusRunning)

	if rec.WarnVersionOnce() {
		if v, err := rec.Conn().QueryValue(ctx, versionQuery); err == nil {
			mon.Logger().Debug().Str("server", rec.Server.Addr()).Str("version", v).
				Msg("backend version")
		}
	}

	val, err := rec.Conn().QueryValue(ctx, readOnlyQuery)
	if err != nil {
		// Keep the node Running but roleless; a transient query failure must
		// not fabricate a role transition.
		mon.Logger().Error().Err(err).Str("server", rec.Server.Addr()).
			Msg("failed to query read_only state")
	} else if isWritable(val) {
		rec.SetPendingStatus(server.StatusMaster)
	} else {
		rec.SetPendingStatus(server.StatusSlave)
	}
	rec.ResetErrCount()
	rec.Commit()
}

// isWritable interprets the backend's read_only value; both the numeric and
// the symbolic form occur in the wild.
func isWritable(readOnly string) bool {
	v := strings.TrimSpace(readOnly)
	return v == "0" || strings.EqualFold(v, "OFF")
}

func eventEnabled(enabled map[monitor.Event]bool, ev monitor.Event) bool {
	if enabled == nil {
		return true
	}
	return enabled[ev]
}

// Diagnostics writes the per-node probe state for the admin show surface.
func (mod *Module) Diagnostics(w io.Writer, mon *monitor.Monitor) {
	fmt.Fprintf(w, "\tSampling interval:\t%s\n", mon.Interval())
	for _, rec := range mon.Servers() {
		fmt.Fprintf(w, "\tServer: %s (%s)\n", rec.Server.UniqueName, rec.Server.Addr())
		fmt.Fprintf(w, "\t\tStatus: %s\n", server.StatusString(rec.Server.Status()))
		if n := rec.ErrCount(); n > 0 {
			fmt.Fprintf(w, "\t\tConsecutive failures: %d\n", n)
		}
	}
}
