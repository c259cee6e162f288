package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/amirimatin/go-dbmon/pkg/db"
	"github.com/amirimatin/go-dbmon/pkg/server"
)

// permConnector resolves each address to a scripted outcome.
type permConnector struct {
	dialErr map[string]error
	execErr map[string]error
}

func (c *permConnector) Connect(_ context.Context, addr string, _ db.Credentials, _ db.Timeouts) (db.Conn, error) {
	if err := c.dialErr[addr]; err != nil {
		return nil, err
	}
	return &fakeConn{execErr: c.execErr[addr]}, nil
}

func permMonitor(t *testing.T, connector db.Connector, addrs ...string) *Monitor {
	t.Helper()
	r := testRegistry(t, &fakeModule{}, connector)
	mon, err := r.Allocate("m1", "fake")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	mon.AddDefaultCredentials("monuser", "monpw")
	for i, addr := range addrs {
		host, _, ok := strings.Cut(addr, ":")
		if !ok {
			t.Fatalf("bad addr %q", addr)
		}
		mon.AddServer(server.New(fmt.Sprintf("db%d", i+1), host, 3306))
	}
	return mon
}

func TestCheckPermissionsNoServers(t *testing.T) {
	mon := permMonitor(t, &permConnector{})
	if mon.CheckPermissions(context.Background(), "SHOW SLAVE STATUS") {
		t.Fatalf("empty monitor must fail the check")
	}
}

func TestCheckPermissionsAuthFailure(t *testing.T) {
	authErr := fmt.Errorf("access denied for user: %w", db.ErrAuth)
	mon := permMonitor(t, &permConnector{
		dialErr: map[string]error{"node1:3306": authErr, "node2:3306": authErr},
	}, "node1:3306", "node2:3306")
	if mon.CheckPermissions(context.Background(), "SHOW SLAVE STATUS") {
		t.Fatalf("auth rejection on every node must fail the check")
	}
}

func TestCheckPermissionsUnreachableIsLenient(t *testing.T) {
	mon := permMonitor(t, &permConnector{
		dialErr: map[string]error{"node1:3306": errors.New("connection refused")},
	}, "node1:3306")
	if !mon.CheckPermissions(context.Background(), "SHOW SLAVE STATUS") {
		t.Fatalf("unreachable node must not produce a false negative")
	}
}

func TestCheckPermissionsQueryDenied(t *testing.T) {
	denied := fmt.Errorf("SHOW SLAVE STATUS: %w", db.ErrQueryDenied)
	mon := permMonitor(t, &permConnector{
		execErr: map[string]error{"node1:3306": denied, "node2:3306": denied},
	}, "node1:3306", "node2:3306")
	if mon.CheckPermissions(context.Background(), "SHOW SLAVE STATUS") {
		t.Fatalf("privilege rejection on every node must fail the check")
	}
}

func TestCheckPermissionsOneSuccessWins(t *testing.T) {
	denied := fmt.Errorf("SHOW SLAVE STATUS: %w", db.ErrQueryDenied)
	mon := permMonitor(t, &permConnector{
		execErr: map[string]error{"node1:3306": denied},
	}, "node1:3306", "node2:3306")
	if !mon.CheckPermissions(context.Background(), "SHOW SLAVE STATUS") {
		t.Fatalf("a single grant must satisfy the check")
	}
}

func TestCheckPermissionsMixedAuthAndUnreachable(t *testing.T) {
	mon := permMonitor(t, &permConnector{
		dialErr: map[string]error{
			"node1:3306": fmt.Errorf("access denied: %w", db.ErrAuth),
			"node2:3306": errors.New("no route to host"),
		},
	}, "node1:3306", "node2:3306")
	if !mon.CheckPermissions(context.Background(), "SHOW SLAVE STATUS") {
		t.Fatalf("non-auth failure must upgrade the aggregate")
	}
}
