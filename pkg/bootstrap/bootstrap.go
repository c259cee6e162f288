// Package bootstrap assembles a monitoring daemon from a high-level Config:
// a monitor registry with its modules, the backends each monitor watches and
// the admin API surface.
package bootstrap

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirimatin/go-dbmon/pkg/config"
	"github.com/amirimatin/go-dbmon/pkg/discovery"
	dDNS "github.com/amirimatin/go-dbmon/pkg/discovery/dns"
	dFile "github.com/amirimatin/go-dbmon/pkg/discovery/file"
	dStatic "github.com/amirimatin/go-dbmon/pkg/discovery/static"
	"github.com/amirimatin/go-dbmon/pkg/internal/logutil"
	"github.com/amirimatin/go-dbmon/pkg/modules/galera"
	"github.com/amirimatin/go-dbmon/pkg/modules/mariadb"
	"github.com/amirimatin/go-dbmon/pkg/monitor"
	"github.com/amirimatin/go-dbmon/pkg/secrets"
	"github.com/amirimatin/go-dbmon/pkg/security/tlsconfig"
	"github.com/amirimatin/go-dbmon/pkg/server"
	"github.com/amirimatin/go-dbmon/pkg/transport"
	admingrpc "github.com/amirimatin/go-dbmon/pkg/transport/grpc"
	"github.com/amirimatin/go-dbmon/pkg/transport/httpjson"
)

// defaultProbeQuery is the statement the permission check runs when the
// caller does not supply one.
const defaultProbeQuery = "SHOW SLAVE STATUS"

// ServerConfig describes one monitored backend node.
type ServerConfig struct {
	Name string // unique name used in configuration and logs
	Host string
	Port int
	// Optional per-node credential override; Password is stored encrypted
	// when a secrets key file is configured.
	User     string
	Password string
}

// MonitorConfig describes one monitoring policy.
type MonitorConfig struct {
	Name   string
	Module string // "mariadbmon" (default) or "galeramon"

	// Default monitoring credentials; Password may be encrypted.
	User     string
	Password string

	Interval time.Duration
	// Timeouts in whole seconds; zero keeps the monitor default.
	ConnectTimeout int
	ReadTimeout    int
	WriteTimeout   int

	Script string // external script run on state transitions
	Events string // comma-separated event filter for the script

	// Explicitly configured backends.
	Servers []ServerConfig

	// Address discovery for additional backends.
	DiscoveryKind string        // "static" (default), "dns", or "file"
	AddrsCSV      string        // used when DiscoveryKind=static
	DNSNamesCSV   string        // used when kind=dns
	DNSPort       int           // used when kind=dns (A/AAAA)
	DiscRefresh   time.Duration // cache/refresh duration for discovery
	FilePath      string        // used when kind=file
	FileEnv       string        // used when kind=file
}

// Config defines the high-level inputs to assemble a monitoring daemon.
type Config struct {
	Monitors []MonitorConfig

	// Admin API (list/show/start/stop/check, plus healthz and metrics)
	AdminAddr  string // host:port; empty disables the admin server
	AdminProto string // "http" (default) or "grpc"

	// Secrets key file for AES password decryption; empty means passwords
	// are stored in the clear.
	SecretsFile string

	// TLS (optional) for the admin API
	TLSEnable     bool
	TLSCA         string
	TLSCert       string
	TLSKey        string
	TLSServerName string
	TLSSkipVerify bool

	// Logger (optional). If nil, a default stderr logger is used.
	Logger *zerolog.Logger
}

// DefaultModules returns the built-in monitor module table.
func DefaultModules() map[string]monitor.Factory {
	return map[string]monitor.Factory{
		mariadb.ModuleName: mariadb.New,
		galera.ModuleName:  galera.New,
	}
}

// App is an assembled daemon: the registry plus the optional admin server.
type App struct {
	Registry *monitor.Registry

	srv    transport.RPCServer
	cancel context.CancelFunc
}

// Build assembles an App from Config without starting any monitor.
func Build(cfg Config) (*App, error) {
	var logger zerolog.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	} else {
		logger = logutil.Default()
	}

	var decryptor secrets.Decryptor = secrets.Plaintext{}
	if cfg.SecretsFile != "" {
		d, err := secrets.LoadAES(cfg.SecretsFile)
		if err != nil {
			return nil, fmt.Errorf("load secrets key: %w", err)
		}
		decryptor = d
	}

	registry := monitor.NewRegistry(monitor.Options{
		Logger:    logger,
		Decryptor: decryptor,
		Modules:   DefaultModules(),
	})

	for _, mc := range cfg.Monitors {
		if err := addMonitor(registry, mc); err != nil {
			return nil, fmt.Errorf("monitor %q: %w", mc.Name, err)
		}
	}

	app := &App{Registry: registry}
	if cfg.AdminAddr != "" {
		srv, err := buildAdminServer(cfg, logger)
		if err != nil {
			return nil, err
		}
		app.srv = srv
	}
	return app, nil
}

func addMonitor(registry *monitor.Registry, mc MonitorConfig) error {
	module := mc.Module
	if module == "" {
		module = mariadb.ModuleName
	}
	mon, err := registry.Allocate(mc.Name, module)
	if err != nil {
		return err
	}
	mon.AddDefaultCredentials(mc.User, mc.Password)
	if mc.Interval > 0 {
		mon.SetInterval(mc.Interval)
	}
	for _, kv := range []struct {
		kind monitor.TimeoutKind
		secs int
	}{
		{monitor.ConnectTimeout, mc.ConnectTimeout},
		{monitor.ReadTimeout, mc.ReadTimeout},
		{monitor.WriteTimeout, mc.WriteTimeout},
	} {
		if kv.secs > 0 {
			if err := mon.SetNetworkTimeout(kv.kind, kv.secs); err != nil {
				return err
			}
		}
	}
	var params []config.Parameter
	if mc.Script != "" {
		params = append(params, config.Parameter{Name: "script", Value: mc.Script})
	}
	if mc.Events != "" {
		params = append(params, config.Parameter{Name: "events", Value: mc.Events})
	}
	if len(params) > 0 {
		mon.AddParameters(params)
	}

	for _, sc := range mc.Servers {
		s := server.New(sc.Name, sc.Host, sc.Port)
		s.MonUser = sc.User
		s.MonPassword = sc.Password
		mon.AddServer(s)
	}
	src := buildSource(mc)
	if src != nil {
		for _, addr := range src.Addrs() {
			host, port, err := splitAddr(addr)
			if err != nil {
				return err
			}
			mon.AddServer(server.New(addr, host, port))
		}
	}
	return nil
}

// buildSource returns the discovery backend for a monitor, or nil when no
// discovery inputs are configured.
func buildSource(mc MonitorConfig) discovery.Source {
	switch mc.DiscoveryKind {
	case "dns":
		opts := dDNS.Options{Names: dStatic.Parse(mc.DNSNamesCSV), Port: mc.DNSPort}
		if mc.DiscRefresh > 0 {
			opts.Refresh = mc.DiscRefresh
		}
		return dDNS.New(opts)
	case "file":
		opts := dFile.Options{Path: mc.FilePath, Env: mc.FileEnv}
		if mc.DiscRefresh > 0 {
			opts.Refresh = mc.DiscRefresh
		}
		return dFile.New(opts)
	default:
		if mc.AddrsCSV == "" {
			return nil
		}
		return dStatic.New(dStatic.Parse(mc.AddrsCSV)...)
	}
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("backend address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("backend address %q: %w", addr, err)
	}
	return host, port, nil
}

func buildAdminServer(cfg Config, logger zerolog.Logger) (transport.RPCServer, error) {
	var srvTLS *tls.Config
	if cfg.TLSEnable {
		topts := tlsconfig.Options{
			Enable: true, CAFile: cfg.TLSCA, CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey,
			InsecureSkipVerify: cfg.TLSSkipVerify, ServerName: cfg.TLSServerName,
		}
		// Prefer hot-reload configs to allow manual rotation by replacing files
		s, err := topts.ServerHotReload()
		if err != nil {
			return nil, err
		}
		srvTLS = s
	}
	switch cfg.AdminProto {
	case "grpc":
		s := admingrpc.NewServer(cfg.AdminAddr)
		if srvTLS != nil {
			s.UseTLS(srvTLS)
		}
		return s, nil
	default:
		s := httpjson.NewServer(cfg.AdminAddr, logger)
		if srvTLS != nil {
			s.UseTLS(srvTLS)
		}
		return s, nil
	}
}

// Handlers returns the admin operations bound to the registry.
func (a *App) Handlers() transport.Handlers {
	r := a.Registry
	return transport.Handlers{
		List: func(ctx context.Context) (transport.ListResponse, error) {
			var out transport.ListResponse
			for _, row := range r.Rows() {
				out.Monitors = append(out.Monitors, transport.MonitorRow{Monitor: row.Monitor, Status: row.Status})
			}
			return out, nil
		},
		Show: func(ctx context.Context, req transport.ShowRequest) (transport.ShowResponse, error) {
			var buf bytes.Buffer
			if req.Name == "" {
				r.ShowAll(&buf)
				return transport.ShowResponse{Output: buf.String()}, nil
			}
			mon := r.FindByName(req.Name)
			if mon == nil {
				return transport.ShowResponse{}, fmt.Errorf("monitor %q: %w", req.Name, monitor.ErrNotFound)
			}
			mon.Show(&buf)
			return transport.ShowResponse{Output: buf.String()}, nil
		},
		Start: func(ctx context.Context, req transport.ControlRequest) (transport.ControlResponse, error) {
			mon := r.FindByName(req.Name)
			if mon == nil {
				return transport.ControlResponse{}, fmt.Errorf("monitor %q: %w", req.Name, monitor.ErrNotFound)
			}
			if err := mon.Start(nil); err != nil {
				return transport.ControlResponse{}, err
			}
			return transport.ControlResponse{Ok: true}, nil
		},
		Stop: func(ctx context.Context, req transport.ControlRequest) (transport.ControlResponse, error) {
			mon := r.FindByName(req.Name)
			if mon == nil {
				return transport.ControlResponse{}, fmt.Errorf("monitor %q: %w", req.Name, monitor.ErrNotFound)
			}
			mon.Stop()
			return transport.ControlResponse{Ok: true}, nil
		},
		Check: func(ctx context.Context, req transport.CheckRequest) (transport.CheckResponse, error) {
			mon := r.FindByName(req.Name)
			if mon == nil {
				return transport.CheckResponse{}, fmt.Errorf("monitor %q: %w", req.Name, monitor.ErrNotFound)
			}
			query := req.Query
			if query == "" {
				query = defaultProbeQuery
			}
			return transport.CheckResponse{Ok: mon.CheckPermissions(ctx, query)}, nil
		},
	}
}

// Start launches all configured monitors and, when configured, the admin
// server. The admin server is torn down when ctx is canceled.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.Registry.StartAll()
	if a.srv != nil {
		if err := a.srv.Start(ctx, a.Handlers()); err != nil {
			cancel()
			a.Registry.StopAll()
			return err
		}
	}
	return nil
}

// AdminAddr returns the admin bind address, or "" when disabled.
func (a *App) AdminAddr() string {
	if a.srv == nil {
		return ""
	}
	return a.srv.Addr()
}

// Close stops the admin server and every monitor.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.srv != nil {
		_ = a.srv.Stop(context.Background())
	}
	a.Registry.Close()
}

// Run builds and starts the daemon, returning the App for lifecycle control.
// The caller is responsible for calling Close when finished.
func Run(ctx context.Context, cfg Config) (*App, error) {
	app, err := Build(cfg)
	if err != nil {
		return nil, err
	}
	if err := app.Start(ctx); err != nil {
		return nil, err
	}
	return app, nil
}
