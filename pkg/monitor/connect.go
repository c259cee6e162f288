package monitor

import (
	"context"
	"time"

	"github.com/amirimatin/go-dbmon/pkg/db"
	obsmetrics "github.com/amirimatin/go-dbmon/pkg/observability/metrics"
	"github.com/amirimatin/go-dbmon/pkg/server"
)

// Connect ensures rec has a live connection. A passing liveness probe on the
// existing handle short-circuits without redialing; otherwise the stale
// handle is closed and a fresh dial is attempted with the monitor's
// credentials and timeouts. On failure the handle stays nil so the next pass
// retries.
func (m *Monitor) Connect(ctx context.Context, rec *ServerRecord) db.ConnectResult {
	timeouts := m.NetworkTimeouts()

	if rec.conn != nil {
		pingCtx, cancel := context.WithTimeout(ctx, timeouts.Read)
		err := rec.conn.Ping(pingCtx)
		cancel()
		if err == nil {
			obsmetrics.ConnectReuse.WithLabelValues(m.name).Inc()
			return db.ConnectOK
		}
		rec.closeConn()
	}

	m.mu.Lock()
	user := m.user
	password := m.password
	m.mu.Unlock()
	if rec.Server.MonUser != "" {
		user = rec.Server.MonUser
	}
	if rec.Server.MonPassword != "" {
		password = rec.Server.MonPassword
	}
	clear, err := m.decryptor.Decrypt(password)
	if err != nil {
		m.logger.Error().Err(err).Str("server", rec.Server.UniqueName).Msg("password decryption failed")
		return m.recordConnectResult(db.ConnectRefused)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeouts.Connect)
	defer cancel()
	start := time.Now()
	conn, err := m.connector.Connect(dialCtx, rec.Server.Addr(), db.Credentials{User: user, Password: clear}, timeouts)
	if err != nil {
		// Coarse post-hoc classification; only affects diagnostic logging.
		if time.Since(start) >= timeouts.Connect {
			return m.recordConnectResult(db.ConnectTimeout)
		}
		return m.recordConnectResult(db.ConnectRefused)
	}
	rec.conn = conn
	return m.recordConnectResult(db.ConnectOK)
}

func (m *Monitor) recordConnectResult(res db.ConnectResult) db.ConnectResult {
	obsmetrics.ConnectAttempts.WithLabelValues(m.name, res.String()).Inc()
	return res
}

// LogConnectError emits the connect-failure diagnostic for a node.
func (m *Monitor) LogConnectError(rec *ServerRecord, res db.ConnectResult) {
	if res == db.ConnectTimeout {
		m.logger.Error().Str("server", rec.Server.Addr()).Msg("monitor timed out when connecting to server")
		return
	}
	m.logger.Error().Str("server", rec.Server.Addr()).Msg("monitor was unable to connect to server")
}

// LogStateChange emits the before/after transition log for a node whose
// committed status differs from the previous pass.
func (m *Monitor) LogStateChange(rec *ServerRecord) {
	m.logger.Info().
		Str("server", rec.Server.UniqueName).
		Str("addr", rec.Server.Addr()).
		Str("event", rec.Event().String()).
		Str("from", server.StatusString(rec.PrevStatus())).
		Str("to", server.StatusString(rec.Server.Status())).
		Msg("server changed state")
}
