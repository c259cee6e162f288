package transport

import "context"

// Handlers bundles the admin operations an RPC server exposes. Nil entries
// are reported as unsupported by the serving layer.
type Handlers struct {
	List  ListFunc
	Show  ShowFunc
	Start ControlFunc
	Stop  ControlFunc
	Check CheckFunc
}

// RPCServer exposes the admin endpoints (monitor listing, diagnostics,
// start/stop control, permission checks) over one management protocol.
type RPCServer interface {
	Start(ctx context.Context, h Handlers) error
	Addr() string
	Stop(ctx context.Context) error
}

// RPCClient performs admin calls against a management endpoint using the
// chosen protocol (HTTP/JSON or gRPC JSON codec).
type RPCClient interface {
	List(ctx context.Context, addr string) (ListResponse, error)
	Show(ctx context.Context, addr string, req ShowRequest) (ShowResponse, error)
	StartMonitor(ctx context.Context, addr string, req ControlRequest) (ControlResponse, error)
	StopMonitor(ctx context.Context, addr string, req ControlRequest) (ControlResponse, error)
	Check(ctx context.Context, addr string, req CheckRequest) (CheckResponse, error)
}
