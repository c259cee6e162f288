package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	MonitorsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "go_dbmon",
		Name:      "monitors_running",
		Help:      "Number of monitors currently in the running state",
	})

	PollPasses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "go_dbmon",
		Name:      "poll_passes_total",
		Help:      "Total completed poll passes per monitor",
	}, []string{"monitor"})

	EventsFired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "go_dbmon",
		Name:      "events_total",
		Help:      "Total classified state-transition events per monitor and event name",
	}, []string{"monitor", "event"})

	ConnectAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "go_dbmon",
		Name:      "connect_attempts_total",
		Help:      "Backend connection attempts by monitor and coarse result (ok/timeout/refused)",
	}, []string{"monitor", "result"})

	ConnectReuse = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "go_dbmon",
		Name:      "connect_reuse_total",
		Help:      "Poll ticks that reused a live backend connection without redialing",
	}, []string{"monitor"})

	ScriptRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "go_dbmon",
		Name:      "script_runs_total",
		Help:      "Monitor script executions by result (ok/error)",
	}, []string{"monitor", "result"})

	PermissionChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "go_dbmon",
		Name:      "permission_checks_total",
		Help:      "Monitor credential permission checks by result (ok/failed)",
	}, []string{"monitor", "result"})

	GRPCConnDials = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "go_dbmon",
		Subsystem: "grpc_conn",
		Name:      "dials_total",
		Help:      "Total number of new gRPC admin connections dialed",
	})
	GRPCConnReuse = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "go_dbmon",
		Subsystem: "grpc_conn",
		Name:      "reuse_total",
		Help:      "Total number of gRPC admin connection reuses from cache",
	})
	GRPCConnEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "go_dbmon",
		Subsystem: "grpc_conn",
		Name:      "evictions_total",
		Help:      "Total number of cached gRPC admin connections evicted",
	})
	GRPCConnActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "go_dbmon",
		Subsystem: "grpc_conn",
		Name:      "active",
		Help:      "Number of active cached gRPC admin connections",
	})
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(MonitorsRunning)
		prometheus.MustRegister(PollPasses)
		prometheus.MustRegister(EventsFired)
		prometheus.MustRegister(ConnectAttempts)
		prometheus.MustRegister(ConnectReuse)
		prometheus.MustRegister(ScriptRuns)
		prometheus.MustRegister(PermissionChecks)
		prometheus.MustRegister(GRPCConnDials)
		prometheus.MustRegister(GRPCConnReuse)
		prometheus.MustRegister(GRPCConnEvictions)
		prometheus.MustRegister(GRPCConnActive)
	})
}
