package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amirimatin/go-dbmon/pkg/db"
	"github.com/amirimatin/go-dbmon/pkg/server"
)

// countingConnector counts real dials and records the credentials used.
type countingConnector struct {
	mu    sync.Mutex
	dials int
	err   error
	sleep time.Duration
	creds db.Credentials
	conn  *fakeConn
}

func (c *countingConnector) Connect(_ context.Context, _ string, creds db.Credentials, _ db.Timeouts) (db.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dials++
	c.creds = creds
	if c.sleep > 0 {
		time.Sleep(c.sleep)
	}
	if c.err != nil {
		return nil, c.err
	}
	if c.conn == nil {
		c.conn = &fakeConn{}
	}
	return c.conn, nil
}

func newConnectMonitor(t *testing.T, connector db.Connector) (*Monitor, *ServerRecord) {
	t.Helper()
	r := testRegistry(t, &fakeModule{}, connector)
	mon, err := r.Allocate("m1", "fake")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	mon.AddServer(server.New("db1", "node1", 3306))
	return mon, mon.Servers()[0]
}

func TestConnectLivenessShortCircuit(t *testing.T) {
	cc := &countingConnector{}
	mon, rec := newConnectMonitor(t, cc)

	if res := mon.Connect(context.Background(), rec); res != db.ConnectOK {
		t.Fatalf("first connect: %v", res)
	}
	if res := mon.Connect(context.Background(), rec); res != db.ConnectOK {
		t.Fatalf("second connect: %v", res)
	}
	// Exactly one real handshake; the second call reused the live handle.
	if cc.dials != 1 {
		t.Fatalf("dials: %d", cc.dials)
	}
}

func TestConnectRedialsAfterDeadPing(t *testing.T) {
	cc := &countingConnector{}
	mon, rec := newConnectMonitor(t, cc)

	if res := mon.Connect(context.Background(), rec); res != db.ConnectOK {
		t.Fatalf("connect: %v", res)
	}
	stale := cc.conn
	stale.pingErr = errors.New("gone away")
	cc.conn = nil
	if res := mon.Connect(context.Background(), rec); res != db.ConnectOK {
		t.Fatalf("reconnect: %v", res)
	}
	if cc.dials != 2 {
		t.Fatalf("dials: %d", cc.dials)
	}
	if !stale.closed {
		t.Fatalf("stale handle not closed before redial")
	}
}

func TestConnectRefused(t *testing.T) {
	cc := &countingConnector{err: errors.New("connection refused")}
	mon, rec := newConnectMonitor(t, cc)

	if res := mon.Connect(context.Background(), rec); res != db.ConnectRefused {
		t.Fatalf("got %v want refused", res)
	}
	if rec.Conn() != nil {
		t.Fatalf("handle must stay nil on failure")
	}
}

func TestConnectTimeoutClassification(t *testing.T) {
	cc := &countingConnector{err: errors.New("slow"), sleep: 30 * time.Millisecond}
	mon, rec := newConnectMonitor(t, cc)
	// Shrink the connect timeout below the induced delay; classification is
	// by elapsed wall clock.
	mon.mu.Lock()
	mon.connectTimeout = 10 * time.Millisecond
	mon.mu.Unlock()

	if res := mon.Connect(context.Background(), rec); res != db.ConnectTimeout {
		t.Fatalf("got %v want timeout", res)
	}
}

func TestConnectCredentialResolution(t *testing.T) {
	cc := &countingConnector{}
	mon, rec := newConnectMonitor(t, cc)
	mon.AddDefaultCredentials("monuser", "monpw")

	if res := mon.Connect(context.Background(), rec); res != db.ConnectOK {
		t.Fatalf("connect: %v", res)
	}
	if cc.creds.User != "monuser" || cc.creds.Password != "monpw" {
		t.Fatalf("default credentials not used: %+v", cc.creds)
	}

	// A per-node override wins over the monitor default.
	rec.closeConn()
	rec.Server.MonUser = "override"
	rec.Server.MonPassword = "overridepw"
	if res := mon.Connect(context.Background(), rec); res != db.ConnectOK {
		t.Fatalf("connect: %v", res)
	}
	if cc.creds.User != "override" || cc.creds.Password != "overridepw" {
		t.Fatalf("override not used: %+v", cc.creds)
	}
}
