// Package galera implements the synchronous-cluster monitoring module. A node
// is flagged joined when its local wsrep state reports Synced; roles are then
// derived from the read_only flag among joined nodes.
package galera

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
const ModuleName = "galeramon"

const (
	paramScript = "script"
	paramEvents = "events"

	wsrepStateQuery = "SELECT VARIABLE_VALUE FROM information_schema.GLOBAL_STATUS" +
		" WHERE VARIABLE_NAME = 'WSREP_LOCAL_STATE'"
	readOnlyQuery = "SELECT @@global.read_only"

	// wsrep_local_state value for a fully synced cluster member.
	wsrepStateSynced = "4"
)

// Module is the synchronous-cluster monitoring behavior.
type Module struct{}

// New constructs the module. Registered under ModuleName.
func New() monitor.Module { return &Module{} }

type handle struct {
	stop chan struct{}
	done chan struct{}
}

// Start validates the script and event parameters and launches the polling
// loop.
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

	// Timer rather than ticker: re-arming from the monitor after every pass
	// lets SetInterval take effect on a running loop.
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

// probeNode commits Running for any reachable node, Synced only for cluster
// members in the synced wsrep state, and a role flag only for synced nodes.
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

	state, err := rec.Conn().QueryValue(ctx, wsrepStateQuery)
	if err != nil {
		mon.Logger().Error().Err(err).Str("server", rec.Server.Addr()).
			Msg("failed to query wsrep local state")
	} else if strings.TrimSpace(state) == wsrepStateSynced {
		rec.SetPendingStatus(server.StatusSynced)
		if val, err := rec.Conn().QueryValue(ctx, readOnlyQuery); err != nil {
			mon.Logger().Error().Err(err).Str("server", rec.Server.Addr()).
				Msg("failed to query read_only state")
		} else if isWritable(val) {
			rec.SetPendingStatus(server.StatusMaster)
		} else {
			rec.SetPendingStatus(server.StatusSlave)
		}
	}
	rec.ResetErrCount()
	rec.Commit()
}

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
	synced := 0
	records := mon.Servers()
	for _, rec := range records {
		if rec.Server.Status()&server.StatusSynced != 0 {
			synced++
		}
	}
	fmt.Fprintf(w, "\tSynced nodes:\t%d/%d\n", synced, len(records))
	for _, rec := range records {
		fmt.Fprintf(w, "\tServer: %s (%s)\n", rec.Server.UniqueName, rec.Server.Addr())
		fmt.Fprintf(w, "\t\tStatus: %s\n", server.StatusString(rec.Server.Status()))
	}
}
