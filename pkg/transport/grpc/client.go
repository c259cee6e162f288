package grpc

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/amirimatin/go-dbmon/pkg/transport"
)

// Client implements transport.RPCClient over gRPC with the JSON codec and a
// managed connection cache.
type Client struct {
	timeout time.Duration
	tlsCfg  *tls.Config
	cm      *ConnManager
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{timeout: timeout}
}

// UseTLS sets TLS config for the client.
func (c *Client) UseTLS(cfg *tls.Config) *Client { c.tlsCfg = cfg; return c }

func (c *Client) dialCtx(ctx context.Context, target string) (*grpc.ClientConn, error) {
	// Use JSON codec and set content subtype accordingly.
	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
		grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 20 * time.Second, Timeout: 5 * time.Second, PermitWithoutStream: true}),
		grpc.WithBlock(),
	}
	if c.tlsCfg != nil {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsCfg)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	return grpc.DialContext(ctx, target, opts...)
}

// getConn returns a managed connection, creating a manager if absent.
func (c *Client) getConn(ctx context.Context, addr string) (*grpc.ClientConn, func(), error) {
	if c.cm == nil {
		c.cm = NewConnManager(30*time.Second, c.dialCtx)
	}
	return c.cm.Get(ctx, addr)
}

func (c *Client) invoke(ctx context.Context, addr, method string, in, out interface{}) error {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	cc, rel, err := c.getConn(cctx, addr)
	if err != nil {
		return err
	}
	defer rel()
	return cc.Invoke(cctx, method, in, out)
}

func (c *Client) List(ctx context.Context, addr string) (transport.ListResponse, error) {
	var out transport.ListResponse
	err := c.invoke(ctx, addr, "/dbmon.v1.Admin/List", &empty{}, &out)
	return out, err
}

func (c *Client) Show(ctx context.Context, addr string, req transport.ShowRequest) (transport.ShowResponse, error) {
	var out transport.ShowResponse
	if err := c.invoke(ctx, addr, "/dbmon.v1.Admin/Show", &req, &out); err != nil {
		return out, err
	}
	if out.Error != "" {
		return out, errors.New(out.Error)
	}
	return out, nil
}

func (c *Client) StartMonitor(ctx context.Context, addr string, req transport.ControlRequest) (transport.ControlResponse, error) {
	return c.control(ctx, addr, "/dbmon.v1.Admin/Start", req)
}

func (c *Client) StopMonitor(ctx context.Context, addr string, req transport.ControlRequest) (transport.ControlResponse, error) {
	return c.control(ctx, addr, "/dbmon.v1.Admin/Stop", req)
}

func (c *Client) control(ctx context.Context, addr, method string, req transport.ControlRequest) (transport.ControlResponse, error) {
	var out transport.ControlResponse
	if err := c.invoke(ctx, addr, method, &req, &out); err != nil {
		return out, err
	}
	if !out.Ok && out.Error != "" {
		return out, errors.New(out.Error)
	}
	return out, nil
}

func (c *Client) Check(ctx context.Context, addr string, req transport.CheckRequest) (transport.CheckResponse, error) {
	var out transport.CheckResponse
	if err := c.invoke(ctx, addr, "/dbmon.v1.Admin/Check", &req, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Close releases all cached client connections.
func (c *Client) Close() {
	if c.cm != nil {
		c.cm.Close()
	}
}

var _ transport.RPCClient = (*Client)(nil)
