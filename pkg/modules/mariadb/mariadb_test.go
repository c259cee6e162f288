package mariadb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amirimatin/go-dbmon/pkg/config"
	"github.com/amirimatin/go-dbmon/pkg/db"
	"github.com/amirimatin/go-dbmon/pkg/internal/logutil"
	"github.com/amirimatin/go-dbmon/pkg/monitor"
	"github.com/amirimatin/go-dbmon/pkg/server"
)

// clusterSim simulates a set of backends whose reachability and read_only
// state the test flips between poll passes.
type clusterSim struct {
	mu        sync.Mutex
	down      map[string]bool
	readOnly  map[string]string
	failQuery map[string]bool
	pings     int
}

func newClusterSim() *clusterSim {
	return &clusterSim{
		down:      make(map[string]bool),
		readOnly:  make(map[string]string),
		failQuery: make(map[string]bool),
	}
}

func (s *clusterSim) setDown(addr string, down bool) {
	s.mu.Lock()
	s.down[addr] = down
	s.mu.Unlock()
}

func (s *clusterSim) setReadOnly(addr, v string) {
	s.mu.Lock()
	s.readOnly[addr] = v
	s.mu.Unlock()
}

func (s *clusterSim) setFailQuery(addr string, fail bool) {
	s.mu.Lock()
	s.failQuery[addr] = fail
	s.mu.Unlock()
}

// pingCount counts liveness probes; every pass after the first pings each
// node's live connection.
func (s *clusterSim) pingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

func (s *clusterSim) Connect(_ context.Context, addr string, _ db.Credentials, _ db.Timeouts) (db.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down[addr] {
		return nil, errors.New("connection refused")
	}
	return &simConn{sim: s, addr: addr}, nil
}

type simConn struct {
	sim  *clusterSim
	addr string
}

func (c *simConn) Ping(context.Context) error {
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	c.sim.pings++
	if c.sim.down[c.addr] {
		return errors.New("gone away")
	}
	return nil
}

func (c *simConn) Exec(context.Context, string) error { return nil }

func (c *simConn) QueryValue(_ context.Context, query string) (string, error) {
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	if c.sim.failQuery[c.addr] {
		return "", errors.New("lost connection during query")
	}
	switch query {
	case versionQuery:
		return "10.6.14-MariaDB", nil
	case readOnlyQuery:
		return c.sim.readOnly[c.addr], nil
	}
	return "", errors.New("unexpected query")
}

func (c *simConn) Close() error { return nil }

// scriptLog records script launches through the monitor's runner.
type scriptLog struct {
	mu   sync.Mutex
	runs [][]string
}

func (r *scriptLog) Run(_ context.Context, name string, args []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, append([]string{name}, args...))
	return nil
}

func (r *scriptLog) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.runs...)
}

func newTestMonitor(t *testing.T, conn db.Connector, runner *scriptLog) *monitor.Monitor {
	t.Helper()
	opts := monitor.Options{
		Logger:    logutil.Nop(),
		Connector: conn,
		Modules:   map[string]monitor.Factory{ModuleName: New},
	}
	if runner != nil {
		opts.Runner = runner
	}
	r := monitor.NewRegistry(opts)
	mon, err := r.Allocate("replication", ModuleName)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	return mon
}

func TestStartRejectsBadEventList(t *testing.T) {
	mon := newTestMonitor(t, newClusterSim(), nil)
	params := &config.Parameters{}
	params.Add([]config.Parameter{{Name: paramEvents, Value: "master_down,bogus"}})
	if err := mon.Start(params); err == nil {
		t.Fatalf("expected start to fail on unknown event name")
	}
	if mon.State() != monitor.StateAllocated {
		t.Fatalf("state after failed start: %v", mon.State())
	}
}

func TestProbeNodeRoles(t *testing.T) {
	cases := []struct {
		readOnly string
		want     uint64
	}{
		{"0", server.StatusRunning | server.StatusMaster},
		{"OFF", server.StatusRunning | server.StatusMaster},
		{"1", server.StatusRunning | server.StatusSlave},
		{"ON", server.StatusRunning | server.StatusSlave},
	}
	for _, c := range cases {
		sim := newClusterSim()
		sim.setReadOnly("node1:3306", c.readOnly)
		mon := newTestMonitor(t, sim, nil)
		mon.AddServer(server.New("db1", "node1", 3306))
		rec := mon.Servers()[0]
		probeNode(context.Background(), mon, rec)
		if got := rec.Server.Status(); got != c.want {
			t.Fatalf("read_only=%q: status %#x, want %#x", c.readOnly, got, c.want)
		}
	}
}

func TestProbeNodeDown(t *testing.T) {
	sim := newClusterSim()
	sim.setDown("node1:3306", true)
	mon := newTestMonitor(t, sim, nil)
	mon.AddServer(server.New("db1", "node1", 3306))
	rec := mon.Servers()[0]
	probeNode(context.Background(), mon, rec)
	if rec.Server.Status() != 0 {
		t.Fatalf("status %#x, want 0", rec.Server.Status())
	}
	if rec.ErrCount() != 1 {
		t.Fatalf("err count %d, want 1", rec.ErrCount())
	}
}

func TestProbeNodeQueryFailureKeepsRunning(t *testing.T) {
	sim := newClusterSim()
	sim.setFailQuery("node1:3306", true)
	mon := newTestMonitor(t, sim, nil)
	mon.AddServer(server.New("db1", "node1", 3306))
	rec := mon.Servers()[0]
	probeNode(context.Background(), mon, rec)
	// A reachable node whose role probe fails stays Running without a role.
	if got := rec.Server.Status(); got != server.StatusRunning {
		t.Fatalf("status %#x, want running only", got)
	}
}

func TestFirstPassFiresNoEvents(t *testing.T) {
	sim := newClusterSim()
	sim.setReadOnly("node1:3306", "0")
	runner := &scriptLog{}
	mon := newTestMonitor(t, sim, runner)
	mon.AddServer(server.New("db1", "node1", 3306))

	pollPass(context.Background(), mon, "/opt/notify.sh $EVENT", nil)
	if runs := runner.snapshot(); len(runs) != 0 {
		t.Fatalf("first pass must not dispatch scripts, got %v", runs)
	}
	rec := mon.Servers()[0]
	if rec.PrevStatus() != server.StatusRunning|server.StatusMaster {
		t.Fatalf("prev not recorded: %#x", rec.PrevStatus())
	}
}

func TestPollPassScenario(t *testing.T) {
	sim := newClusterSim()
	sim.setReadOnly("node1:3306", "0")
	sim.setDown("node2:3306", true)
	runner := &scriptLog{}
	mon := newTestMonitor(t, sim, runner)
	mon.AddServer(server.New("dbA", "node1", 3306))
	mon.AddServer(server.New("dbB", "node2", 3306))
	script := "/opt/notify.sh $EVENT $INITIATOR"

	// Baseline pass: A is running master, B is down.
	pollPass(context.Background(), mon, script, nil)

	// A drops, B comes up as a replica, observed within one pass.
	sim.setDown("node1:3306", true)
	sim.setDown("node2:3306", false)
	sim.setReadOnly("node2:3306", "1")
	pollPass(context.Background(), mon, script, nil)

	runs := runner.snapshot()
	if len(runs) != 2 {
		t.Fatalf("script runs: %d, want 2 (%v)", len(runs), runs)
	}
	// Record order: A's transition is dispatched before B's.
	if runs[0][1] != "master_down" || runs[0][2] != "node1:3306" {
		t.Fatalf("first dispatch: %v", runs[0])
	}
	if runs[1][1] != "slave_up" || runs[1][2] != "node2:3306" {
		t.Fatalf("second dispatch: %v", runs[1])
	}
}

func TestEventFilter(t *testing.T) {
	sim := newClusterSim()
	sim.setReadOnly("node1:3306", "0")
	runner := &scriptLog{}
	mon := newTestMonitor(t, sim, runner)
	mon.AddServer(server.New("db1", "node1", 3306))
	enabled, err := monitor.ParseEventList("slave_down")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	script := "/opt/notify.sh $EVENT"

	pollPass(context.Background(), mon, script, enabled)
	sim.setDown("node1:3306", true)
	// master_down fires as an event but is filtered from script dispatch.
	pollPass(context.Background(), mon, script, enabled)
	if runs := runner.snapshot(); len(runs) != 0 {
		t.Fatalf("filtered event dispatched a script: %v", runs)
	}
}

// gatedConnector blocks every dial until the gate is released, reporting the
// first blocked dial through entered.
type gatedConnector struct {
	inner   db.Connector
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newGatedConnector(inner db.Connector) *gatedConnector {
	return &gatedConnector{inner: inner, gate: make(chan struct{}), entered: make(chan struct{})}
}

func (g *gatedConnector) Connect(ctx context.Context, addr string, creds db.Credentials, to db.Timeouts) (db.Conn, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.gate
	return g.inner.Connect(ctx, addr, creds, to)
}

func TestStopDuringPollPass(t *testing.T) {
	sim := newClusterSim()
	sim.setReadOnly("node1:3306", "0")
	sim.setReadOnly("node2:3306", "1")
	gated := newGatedConnector(sim)
	mon := newTestMonitor(t, gated, nil)
	mon.AddServer(server.New("dbA", "node1", 3306))
	mon.AddServer(server.New("dbB", "node2", 3306))
	mon.SetInterval(time.Hour)

	if err := mon.Start(nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	// The first pass is now mid-flight, blocked in the dial of node1.
	<-gated.entered

	stopped := make(chan struct{})
	go func() {
		mon.Stop()
		close(stopped)
	}()
	// Let Stop signal the loop before the pass is allowed to finish; the
	// pass still needs the instance lock for its server and timeout reads.
	time.Sleep(50 * time.Millisecond)
	close(gated.gate)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return while a poll pass was in flight")
	}
	if mon.State() != monitor.StateStopped {
		t.Fatalf("state after stop: %v", mon.State())
	}
}

func TestSetIntervalAppliesToRunningLoop(t *testing.T) {
	sim := newClusterSim()
	sim.setReadOnly("node1:3306", "0")
	mon := newTestMonitor(t, sim, nil)
	mon.AddServer(server.New("db1", "node1", 3306))
	mon.SetInterval(5 * time.Millisecond)

	if err := mon.Start(nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer mon.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for sim.pingCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("loop never completed three passes")
		}
		time.Sleep(2 * time.Millisecond)
	}

	// Widen the interval. The wait armed before the change may fire once
	// more; after that the loop re-arms with the new value.
	mon.SetInterval(time.Hour)
	time.Sleep(50 * time.Millisecond)
	base := sim.pingCount()
	time.Sleep(60 * time.Millisecond)
	if n := sim.pingCount(); n > base+1 {
		t.Fatalf("loop kept polling on the old interval: %d extra passes", n-base)
	}
}

func TestModuleLifecycle(t *testing.T) {
	sim := newClusterSim()
	sim.setReadOnly("node1:3306", "0")
	mon := newTestMonitor(t, sim, nil)
	mon.AddServer(server.New("db1", "node1", 3306))
	mon.SetInterval(10 * time.Millisecond)

	if err := mon.Start(nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for mon.Servers()[0].Server.IsDown() {
		if time.Now().After(deadline) {
			t.Fatalf("node never observed running")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Stop blocks until the loop acknowledges; afterwards the handle is gone.
	mon.Stop()
	if mon.State() != monitor.StateStopped {
		t.Fatalf("state after stop: %v", mon.State())
	}
}
