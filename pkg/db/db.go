// Package db abstracts the backend database connection to the capability the
// monitoring core needs: dial with a deadline, liveness probe, coarse query
// execution and close. Handshake details and error codes stay behind the
// Connector implementation.
package db

import (
	"context"
	"errors"
	"time"
)

// Credentials carries the effective user and clear-text password for a dial.
type Credentials struct {
	User     string
	Password string
}

// Timeouts bounds the network operations of a connection.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
}

// Conn is an established backend connection owned by one monitored-server
// record.
type Conn interface {
	// Ping is a lightweight liveness probe on the existing connection.
	Ping(ctx context.Context) error
	// Exec runs a statement and discards any result.
	Exec(ctx context.Context, query string) error
	// QueryValue runs a single-value query and returns the first column of
	// the first row.
	QueryValue(ctx context.Context, query string) (string, error)
	Close() error
}

// Connector dials backend nodes. addr is in "host:port" form.
type Connector interface {
	Connect(ctx context.Context, addr string, creds Credentials, t Timeouts) (Conn, error)
}

// ConnectResult is the coarse outcome of a monitor connection attempt.
type ConnectResult int

const (
	ConnectOK ConnectResult = iota
	ConnectTimeout
	ConnectRefused
)

func (r ConnectResult) String() string {
	switch r {
	case ConnectOK:
		return "ok"
	case ConnectTimeout:
		return "timeout"
	default:
		return "refused"
	}
}

// Coarse failure classes surfaced to the permission checker. Connector
// implementations wrap their vendor error codes into these.
var (
	// ErrAuth marks a connection rejected for bad credentials.
	ErrAuth = errors.New("db: access denied")
	// ErrQueryDenied marks a statement rejected for missing privileges.
	ErrQueryDenied = errors.New("db: query access denied")
)

// IsAuthError reports whether err is a credential rejection.
func IsAuthError(err error) bool { return errors.Is(err, ErrAuth) }

// IsQueryDenied reports whether err is a privilege rejection on a query.
func IsQueryDenied(err error) bool { return errors.Is(err, ErrQueryDenied) }
