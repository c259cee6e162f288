package monitor

import (
	"context"

	"github.com/amirimatin/go-dbmon/pkg/db"
	obsmetrics "github.com/amirimatin/go-dbmon/pkg/observability/metrics"
)

// CheckPermissions verifies that the monitor's credentials are usable across
// its registered nodes by connecting to each and running probeQuery. It is
// an on-demand diagnostic, never part of the polling loop.
//
// The aggregate is deliberately lenient: a node that fails for any reason
// other than an explicit credential or privilege rejection, or that runs the
// query successfully, upgrades the result to true. A merely unreachable node
// therefore does not produce a false negative. Explicit auth or access-denied
// outcomes never upgrade the aggregate.
func (m *Monitor) CheckPermissions(ctx context.Context, probeQuery string) bool {
	servers := m.Servers()
	if len(servers) == 0 {
		m.logger.Error().Msg("monitor has no servers; cannot check permissions")
		obsmetrics.PermissionChecks.WithLabelValues(m.name, "failed").Inc()
		return false
	}

	m.mu.Lock()
	user := m.user
	password := m.password
	m.mu.Unlock()
	clear, err := m.decryptor.Decrypt(password)
	if err != nil {
		m.logger.Error().Err(err).Msg("password decryption failed during permission check")
		obsmetrics.PermissionChecks.WithLabelValues(m.name, "failed").Inc()
		return false
	}
	creds := db.Credentials{User: user, Password: clear}
	timeouts := m.NetworkTimeouts()

	rval := false
	for _, rec := range servers {
		conn, err := m.connector.Connect(ctx, rec.Server.Addr(), creds, timeouts)
		if err != nil {
			m.logger.Error().Err(err).Str("server", rec.Server.Addr()).
				Msg("failed to connect while checking monitor user credentials")
			if !db.IsAuthError(err) {
				rval = true
			}
			continue
		}
		if err := conn.Exec(ctx, probeQuery); err != nil {
			m.logger.Error().Err(err).Str("server", rec.Server.Addr()).Str("query", probeQuery).
				Str("user", user).Msg("failed to execute query while checking monitor permissions")
			if !db.IsQueryDenied(err) {
				rval = true
			}
		} else {
			rval = true
		}
		_ = conn.Close()
	}

	result := "failed"
	if rval {
		result = "ok"
	}
	obsmetrics.PermissionChecks.WithLabelValues(m.name, result).Inc()
	return rval
}
