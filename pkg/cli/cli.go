// Package cli provides the cobra commands for running and administering a
// monitoring daemon.
package cli

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amirimatin/go-dbmon/pkg/bootstrap"
	"github.com/amirimatin/go-dbmon/pkg/internal/logutil"
	"github.com/amirimatin/go-dbmon/pkg/observability/tracing"
	"github.com/amirimatin/go-dbmon/pkg/security/tlsconfig"
	"github.com/amirimatin/go-dbmon/pkg/transport"
	admingrpc "github.com/amirimatin/go-dbmon/pkg/transport/grpc"
	"github.com/amirimatin/go-dbmon/pkg/transport/httpjson"
)

// AddAll attaches the monitor subcommands (run/list/show/start/stop/check)
// to the provided root command.
func AddAll(root *cobra.Command) {
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewListCmd())
	root.AddCommand(NewShowCmd())
	root.AddCommand(NewStartCmd())
	root.AddCommand(NewStopCmd())
	root.AddCommand(NewCheckCmd())
}

// NewMonitorCommand returns a parent command "monitor" containing the
// subcommands, for embedding into a larger CLI.
func NewMonitorCommand() *cobra.Command {
	parent := &cobra.Command{Use: "monitor", Short: "database monitor commands"}
	AddAll(parent)
	return parent
}

// clientFlags are the flags shared by every admin client command.
type clientFlags struct {
	addr    string
	proto   string
	timeout time.Duration

	tlsEnable     bool
	tlsSkip       bool
	tlsCA         string
	tlsCert       string
	tlsKey        string
	tlsServerName string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.addr, "addr", "127.0.0.1:18080", "admin address of the daemon (host:port)")
	cmd.Flags().StringVar(&f.proto, "admin-proto", "http", "admin RPC protocol: http|grpc")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 3*time.Second, "request timeout")
	cmd.Flags().BoolVar(&f.tlsEnable, "tls-enable", false, "enable mTLS for the admin transport")
	cmd.Flags().StringVar(&f.tlsCA, "tls-ca", "", "path to CA cert (PEM)")
	cmd.Flags().StringVar(&f.tlsCert, "tls-cert", "", "path to client certificate (PEM)")
	cmd.Flags().StringVar(&f.tlsKey, "tls-key", "", "path to client private key (PEM)")
	cmd.Flags().BoolVar(&f.tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
	cmd.Flags().StringVar(&f.tlsServerName, "tls-server-name", "", "expected server name (for TLS validation)")
}

func (f *clientFlags) client() (transport.RPCClient, error) {
	var cliTLS *tls.Config
	if f.tlsEnable {
		topts := tlsconfig.Options{
			Enable: true, CAFile: f.tlsCA, CertFile: f.tlsCert, KeyFile: f.tlsKey,
			InsecureSkipVerify: f.tlsSkip, ServerName: f.tlsServerName,
		}
		var err error
		cliTLS, err = topts.Client()
		if err != nil {
			return nil, fmt.Errorf("tls client config: %w", err)
		}
	}
	switch f.proto {
	case "grpc":
		cli := admingrpc.NewClient(f.timeout)
		if cliTLS != nil {
			cli.UseTLS(cliTLS)
		}
		return cli, nil
	default:
		cli := httpjson.NewClient(f.timeout)
		if cliTLS != nil {
			cli.UseTLS(cliTLS)
		}
		return cli, nil
	}
}

// NewRunCmd returns the "run" command used to start a monitoring daemon with
// one monitor configured from flags.
func NewRunCmd() *cobra.Command {
	var (
		name, module, user, password, script, events     string
		backends, adminAddr, adminProto, secretsFile     string
		discoveryKind, dnsNames, filePath, fileEnv       string
		dnsPort                                          int
		interval, discRefresh                            time.Duration
		connectTimeout, readTimeout, writeTimeout        int
		tlsEnable, tlsSkip, traceEnable                  bool
		tlsCA, tlsCert, tlsKey, tlsServerName            string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a monitoring daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("missing --name")
			}
			ctx, cancel := signalContext()
			defer cancel()

			if traceEnable {
				shutdown, err := tracing.Setup(true)
				if err != nil {
					fmt.Fprintf(os.Stderr, "tracing setup error: %v\n", err)
				} else {
					defer func() { _ = shutdown(context.Background()) }()
				}
			}

			logger := logutil.Default()
			cfg := bootstrap.Config{
				Monitors: []bootstrap.MonitorConfig{{
					Name:           name,
					Module:         module,
					User:           user,
					Password:       password,
					Interval:       interval,
					ConnectTimeout: connectTimeout,
					ReadTimeout:    readTimeout,
					WriteTimeout:   writeTimeout,
					Script:         script,
					Events:         events,
					DiscoveryKind:  discoveryKind,
					AddrsCSV:       backends,
					DNSNamesCSV:    dnsNames,
					DNSPort:        dnsPort,
					DiscRefresh:    discRefresh,
					FilePath:       filePath,
					FileEnv:        fileEnv,
				}},
				AdminAddr:     adminAddr,
				AdminProto:    adminProto,
				SecretsFile:   secretsFile,
				TLSEnable:     tlsEnable,
				TLSCA:         tlsCA,
				TLSCert:       tlsCert,
				TLSKey:        tlsKey,
				TLSServerName: tlsServerName,
				TLSSkipVerify: tlsSkip,
				Logger:        &logger,
			}
			app, err := bootstrap.Run(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			fmt.Println("monitor daemon running. Press Ctrl+C to exit.")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "monitor name (required)")
	cmd.Flags().StringVar(&module, "module", "mariadbmon", "monitor module: mariadbmon|galeramon")
	cmd.Flags().StringVar(&user, "user", "", "monitoring username")
	cmd.Flags().StringVar(&password, "password", "", "monitoring password (encrypted when --secrets is set)")
	cmd.Flags().StringVar(&backends, "backends", "", "comma-separated backend nodes (host:port) for discovery=static")
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "sampling interval")
	cmd.Flags().IntVar(&connectTimeout, "connect-timeout", 0, "connect timeout in seconds (0 keeps default)")
	cmd.Flags().IntVar(&readTimeout, "read-timeout", 0, "read timeout in seconds (0 keeps default)")
	cmd.Flags().IntVar(&writeTimeout, "write-timeout", 0, "write timeout in seconds (0 keeps default)")
	cmd.Flags().StringVar(&script, "script", "", "script run on server state changes")
	cmd.Flags().StringVar(&events, "events", "", "comma-separated event filter for the script")
	cmd.Flags().StringVar(&secretsFile, "secrets", "", "path to AES key file for password decryption")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", ":18080", "admin API address (tcp)")
	cmd.Flags().StringVar(&adminProto, "admin-proto", "http", "admin RPC protocol: http|grpc")
	cmd.Flags().StringVar(&discoveryKind, "discovery", "static", "backend discovery: static|dns|file")
	cmd.Flags().StringVar(&dnsNames, "dns-names", "", "comma-separated DNS names or SRV records (e.g., _mysql._tcp.example.com)")
	cmd.Flags().IntVar(&dnsPort, "dns-port", 3306, "port used for A/AAAA lookups")
	cmd.Flags().DurationVar(&discRefresh, "disc-refresh", 5*time.Second, "discovery refresh/cache duration")
	cmd.Flags().StringVar(&filePath, "file-path", "", "path or glob to a file with backends (one per line or CSV)")
	cmd.Flags().StringVar(&fileEnv, "file-env", "", "ENV var name containing CSV backends; overrides file when set")
	cmd.Flags().BoolVar(&tlsEnable, "tls-enable", false, "enable mTLS for the admin transport")
	cmd.Flags().StringVar(&tlsCA, "tls-ca", "", "path to CA cert (PEM)")
	cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "path to node certificate (PEM)")
	cmd.Flags().StringVar(&tlsKey, "tls-key", "", "path to node private key (PEM)")
	cmd.Flags().BoolVar(&tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
	cmd.Flags().StringVar(&tlsServerName, "tls-server-name", "", "expected server name (for TLS validation)")
	cmd.Flags().BoolVar(&traceEnable, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
	return cmd
}

// NewListCmd returns the "list" command.
func NewListCmd() *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List monitors and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
			defer cancel()
			resp, err := client.List(ctx, flags.addr)
			if err != nil {
				return fmt.Errorf("list error: %w", err)
			}
			sep := "---------------------+---------------------"
			fmt.Println(sep)
			fmt.Printf("%-20s | Status\n", "Monitor")
			fmt.Println(sep)
			for _, row := range resp.Monitors {
				fmt.Printf("%-20s | %s\n", row.Monitor, row.Status)
			}
			fmt.Println(sep)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// NewShowCmd returns the "show" command.
func NewShowCmd() *cobra.Command {
	var (
		flags clientFlags
		name  string
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show monitor diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
			defer cancel()
			resp, err := client.Show(ctx, flags.addr, transport.ShowRequest{Name: name})
			if err != nil {
				return fmt.Errorf("show error: %w", err)
			}
			fmt.Print(resp.Output)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "monitor name (empty shows all)")
	flags.register(cmd)
	return cmd
}

// NewStartCmd returns the "start" command.
func NewStartCmd() *cobra.Command {
	return newControlCmd("start", "Start a monitor", func(ctx context.Context, client transport.RPCClient, addr, name string) (transport.ControlResponse, error) {
		return client.StartMonitor(ctx, addr, transport.ControlRequest{Name: name})
	})
}

// NewStopCmd returns the "stop" command.
func NewStopCmd() *cobra.Command {
	return newControlCmd("stop", "Stop a monitor", func(ctx context.Context, client transport.RPCClient, addr, name string) (transport.ControlResponse, error) {
		return client.StopMonitor(ctx, addr, transport.ControlRequest{Name: name})
	})
}

func newControlCmd(use, short string, call func(ctx context.Context, client transport.RPCClient, addr, name string) (transport.ControlResponse, error)) *cobra.Command {
	var (
		flags clientFlags
		name  string
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("missing required flag: --name")
			}
			client, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
			defer cancel()
			resp, err := call(ctx, client, flags.addr, name)
			if err != nil {
				return fmt.Errorf("%s error: %w", use, err)
			}
			return json.NewEncoder(os.Stdout).Encode(resp)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "monitor name (required)")
	flags.register(cmd)
	return cmd
}

// NewCheckCmd returns the "check" command running the permission diagnostic.
func NewCheckCmd() *cobra.Command {
	var (
		flags clientFlags
		name  string
		query string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check monitoring-user permissions across a monitor's backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("missing required flag: --name")
			}
			client, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
			defer cancel()
			resp, err := client.Check(ctx, flags.addr, transport.CheckRequest{Name: name, Query: query})
			if err != nil {
				return fmt.Errorf("check error: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(resp)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "monitor name (required)")
	cmd.Flags().StringVar(&query, "query", "", "probe query (defaults to the replication status probe)")
	flags.register(cmd)
	return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()
	return ctx, cancel
}
