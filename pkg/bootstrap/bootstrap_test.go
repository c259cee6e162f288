package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/amirimatin/go-dbmon/pkg/internal/logutil"
	"github.com/amirimatin/go-dbmon/pkg/monitor"
	"github.com/amirimatin/go-dbmon/pkg/transport"
)

func testConfig() Config {
	logger := logutil.Nop()
	return Config{
		Monitors: []MonitorConfig{{
			Name:     "replication",
			User:     "monuser",
			Password: "monpw",
			AddrsCSV: "db1:3306, db2:3306",
			Servers:  []ServerConfig{{Name: "db0", Host: "db0", Port: 3307}},
		}},
		Logger: &logger,
	}
}

func TestBuildPopulatesRegistry(t *testing.T) {
	app, err := Build(testConfig())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	mon := app.Registry.FindByName("replication")
	if mon == nil {
		t.Fatalf("monitor not registered")
	}
	recs := mon.Servers()
	if len(recs) != 3 {
		t.Fatalf("servers: %d, want 3", len(recs))
	}
	// Explicit servers come first, discovered ones after.
	if recs[0].Server.UniqueName != "db0" || recs[0].Server.Port != 3307 {
		t.Fatalf("explicit server: %+v", recs[0].Server)
	}
	if recs[1].Server.Name != "db1" || recs[1].Server.Port != 3306 {
		t.Fatalf("discovered server: %+v", recs[1].Server)
	}
	if mon.State() != monitor.StateAllocated {
		t.Fatalf("build must not start monitors, state=%v", mon.State())
	}
}

func TestBuildRejectsUnknownModule(t *testing.T) {
	cfg := testConfig()
	cfg.Monitors[0].Module = "nonsense"
	if _, err := Build(cfg); !errors.Is(err, monitor.ErrModuleLoad) {
		t.Fatalf("expected module-load failure, got %v", err)
	}
}

func TestBuildRejectsBadBackendAddr(t *testing.T) {
	cfg := testConfig()
	cfg.Monitors[0].AddrsCSV = "no-port-here"
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected error for malformed backend address")
	}
}

func TestHandlersListAndShow(t *testing.T) {
	app, err := Build(testConfig())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()
	h := app.Handlers()

	list, err := h.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Monitors) != 1 || list.Monitors[0].Monitor != "replication" {
		t.Fatalf("list rows: %+v", list.Monitors)
	}
	if list.Monitors[0].Status != "Stopped" {
		t.Fatalf("status: %q", list.Monitors[0].Status)
	}

	show, err := h.Show(context.Background(), transport.ShowRequest{Name: "replication"})
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if show.Output == "" {
		t.Fatalf("empty show output")
	}
	if _, err := h.Show(context.Background(), transport.ShowRequest{Name: "absent"}); !errors.Is(err, monitor.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if _, err := h.Start(context.Background(), transport.ControlRequest{Name: "absent"}); !errors.Is(err, monitor.ErrNotFound) {
		t.Fatalf("start absent: %v", err)
	}
}
