package monitor

import (
	"context"
	"strings"

	obsmetrics "github.com/amirimatin/go-dbmon/pkg/observability/metrics"
	"github.com/amirimatin/go-dbmon/pkg/observability/tracing"
	"github.com/amirimatin/go-dbmon/pkg/script"
	"github.com/amirimatin/go-dbmon/pkg/server"
)

// Placeholder variables available to monitor scripts. Only variables the
// script text actually references are resolved.
const (
	varInitiator  = "$INITIATOR"
	varEvent      = "$EVENT"
	varNodeList   = "$NODELIST"
	varList       = "$LIST"
	varMasterList = "$MASTERLIST"
	varSlaveList  = "$SLAVELIST"
	varSyncedList = "$SYNCEDLIST"
)

// nodeListCapacity bounds the rendered node lists handed to scripts.
const nodeListCapacity = 4096

// LaunchScript runs the monitor's script for a state transition on rec.
// Script failure is logged and never propagated; the transition counts as
// handled either way.
func (m *Monitor) LaunchScript(ctx context.Context, rec *ServerRecord, ev Event, spec string) {
	cmd, err := script.Parse(spec)
	if err != nil {
		m.logger.Error().Err(err).Str("script", spec).Msg("failed to initialize monitor script")
		return
	}

	if cmd.Matches(varInitiator) {
		cmd.Substitute(varInitiator, rec.Server.Addr())
	}
	if cmd.Matches(varEvent) {
		cmd.Substitute(varEvent, ev.String())
	}
	servers := m.Servers()
	for _, sub := range []struct {
		placeholder string
		mask        uint64
	}{
		{varNodeList, server.StatusRunning},
		{varList, 0},
		{varMasterList, server.StatusMaster},
		{varSlaveList, server.StatusSlave},
		{varSyncedList, server.StatusSynced},
	} {
		if cmd.Matches(sub.placeholder) {
			cmd.Substitute(sub.placeholder, appendNodeNames(servers, nodeListCapacity, sub.mask))
		}
	}

	ctx, end := tracing.StartSpan(ctx, "monitor.launchScript")
	defer end()
	if err := cmd.Execute(ctx, m.runner); err != nil {
		obsmetrics.ScriptRuns.WithLabelValues(m.name, "error").Inc()
		m.logger.Error().Err(err).Str("script", cmd.String()).Str("event", ev.String()).
			Msg("failed to execute script on server state change event")
		return
	}
	obsmetrics.ScriptRuns.WithLabelValues(m.name, "ok").Inc()
	m.logger.Info().Str("script", cmd.String()).Str("event", ev.String()).
		Msg("executed monitor script")
}

// appendNodeNames joins "name:port" for every node matching mask (mask 0
// matches all) into a comma-separated list bounded by limit bytes. Output is
// truncated on whole-token boundaries: a token is appended only when the
// separator plus token still fits.
func appendNodeNames(records []*ServerRecord, limit int, mask uint64) string {
	var b strings.Builder
	for _, rec := range records {
		if mask != 0 && rec.Server.Status()&mask == 0 {
			continue
		}
		token := rec.Server.Addr()
		sep := ""
		if b.Len() > 0 {
			sep = ","
		}
		if b.Len()+len(sep)+len(token) > limit {
			break
		}
		b.WriteString(sep)
		b.WriteString(token)
	}
	return b.String()
}
