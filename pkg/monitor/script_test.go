package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/amirimatin/go-dbmon/pkg/internal/logutil"
	"github.com/amirimatin/go-dbmon/pkg/server"
)

// recordingRunner captures every launched command.
type recordingRunner struct {
	mu   sync.Mutex
	runs [][]string
	err  error
}

func (r *recordingRunner) Run(_ context.Context, name string, args []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, append([]string{name}, args...))
	return r.err
}

func newScriptMonitor(t *testing.T, runner *recordingRunner) *Monitor {
	t.Helper()
	r := NewRegistry(Options{
		Logger:  logutil.Nop(),
		Runner:  runner,
		Modules: map[string]Factory{"fake": func() Module { return &fakeModule{} }},
	})
	mon, err := r.Allocate("m1", "fake")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	return mon
}

func addServerWithStatus(mon *Monitor, unique, host string, port int, status uint64) *ServerRecord {
	s := server.New(unique, host, port)
	s.SetStatus(status)
	mon.AddServer(s)
	recs := mon.Servers()
	return recs[len(recs)-1]
}

func TestAppendNodeNamesTruncation(t *testing.T) {
	mon := newScriptMonitor(t, &recordingRunner{})
	addServerWithStatus(mon, "db1", "node1", 3306, server.StatusRunning)
	addServerWithStatus(mon, "db2", "node2", 3306, server.StatusRunning)

	// Capacity of 10 fits exactly one "node1:3306" token; no partial second
	// token, no overflow.
	got := appendNodeNames(mon.Servers(), 10, server.StatusRunning)
	if got != "node1:3306" {
		t.Fatalf("got %q want %q", got, "node1:3306")
	}
	// One byte short of the first token: output is empty.
	if got := appendNodeNames(mon.Servers(), 9, server.StatusRunning); got != "" {
		t.Fatalf("got %q want empty", got)
	}
	// Room for both tokens plus separator.
	if got := appendNodeNames(mon.Servers(), 21, server.StatusRunning); got != "node1:3306,node2:3306" {
		t.Fatalf("got %q", got)
	}
	// 20 bytes cannot fit separator plus second token.
	if got := appendNodeNames(mon.Servers(), 20, server.StatusRunning); got != "node1:3306" {
		t.Fatalf("got %q", got)
	}
}

func TestAppendNodeNamesFiltering(t *testing.T) {
	mon := newScriptMonitor(t, &recordingRunner{})
	addServerWithStatus(mon, "db1", "node1", 3306, server.StatusRunning|server.StatusMaster)
	addServerWithStatus(mon, "db2", "node2", 3306, server.StatusRunning|server.StatusSlave)
	addServerWithStatus(mon, "db3", "node3", 3306, 0)

	recs := mon.Servers()
	if got := appendNodeNames(recs, nodeListCapacity, 0); got != "node1:3306,node2:3306,node3:3306" {
		t.Fatalf("unfiltered: %q", got)
	}
	if got := appendNodeNames(recs, nodeListCapacity, server.StatusRunning); got != "node1:3306,node2:3306" {
		t.Fatalf("running: %q", got)
	}
	if got := appendNodeNames(recs, nodeListCapacity, server.StatusMaster); got != "node1:3306" {
		t.Fatalf("masters: %q", got)
	}
	if got := appendNodeNames(recs, nodeListCapacity, server.StatusSlave); got != "node2:3306" {
		t.Fatalf("slaves: %q", got)
	}
}

func TestLaunchScriptSubstitution(t *testing.T) {
	runner := &recordingRunner{}
	mon := newScriptMonitor(t, runner)
	rec := addServerWithStatus(mon, "db1", "node1", 3306, server.StatusRunning|server.StatusMaster)
	addServerWithStatus(mon, "db2", "node2", 3306, server.StatusRunning|server.StatusSlave)

	mon.LaunchScript(context.Background(), rec, EventMasterDown,
		"/opt/notify.sh $EVENT $INITIATOR $NODELIST $SLAVELIST")
	if len(runner.runs) != 1 {
		t.Fatalf("runs: %d", len(runner.runs))
	}
	got := runner.runs[0]
	want := []string{"/opt/notify.sh", "master_down", "node1:3306", "node1:3306,node2:3306", "node2:3306"}
	if len(got) != len(want) {
		t.Fatalf("argv: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arg %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestLaunchScriptFailureIsNotFatal(t *testing.T) {
	runner := &recordingRunner{err: errors.New("exit 1")}
	mon := newScriptMonitor(t, runner)
	rec := addServerWithStatus(mon, "db1", "node1", 3306, server.StatusRunning)
	// Must not panic or propagate.
	mon.LaunchScript(context.Background(), rec, EventServerUp, "/opt/notify.sh $EVENT")
	if len(runner.runs) != 1 {
		t.Fatalf("script not attempted")
	}
}

func TestLaunchScriptBadSpec(t *testing.T) {
	runner := &recordingRunner{}
	mon := newScriptMonitor(t, runner)
	rec := addServerWithStatus(mon, "db1", "node1", 3306, server.StatusRunning)
	mon.LaunchScript(context.Background(), rec, EventServerUp, `/x "unterminated`)
	if len(runner.runs) != 0 {
		t.Fatalf("malformed spec must not run")
	}
}
