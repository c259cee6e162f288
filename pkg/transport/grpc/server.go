package grpc

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/amirimatin/go-dbmon/pkg/observability/tracing"
	"github.com/amirimatin/go-dbmon/pkg/transport"
)

// Server implements transport.RPCServer over gRPC using a JSON codec.
type Server struct {
	bind   string
	lis    net.Listener
	srv    *grpc.Server
	tlsCfg *tls.Config
}

func NewServer(bind string) *Server { return &Server{bind: bind} }

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// internal request type used over the gRPC JSON codec
type empty struct{}

// adminServer defines the methods we expose.
type adminServer interface {
	List(ctx context.Context, in *empty) (*transport.ListResponse, error)
	Show(ctx context.Context, in *transport.ShowRequest) (*transport.ShowResponse, error)
	Start(ctx context.Context, in *transport.ControlRequest) (*transport.ControlResponse, error)
	Stop(ctx context.Context, in *transport.ControlRequest) (*transport.ControlResponse, error)
	Check(ctx context.Context, in *transport.CheckRequest) (*transport.CheckResponse, error)
}

type adminImpl struct{ h transport.Handlers }

func (a *adminImpl) List(ctx context.Context, _ *empty) (*transport.ListResponse, error) {
	if a.h.List == nil {
		return &transport.ListResponse{}, nil
	}
	ctx, end := tracing.StartSpan(ctx, "grpc.list")
	defer end()
	out, err := a.h.List(ctx)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *adminImpl) Show(ctx context.Context, in *transport.ShowRequest) (*transport.ShowResponse, error) {
	if in == nil {
		in = &transport.ShowRequest{}
	}
	if a.h.Show == nil {
		return &transport.ShowResponse{Error: "show not supported"}, nil
	}
	ctx, end := tracing.StartSpan(ctx, "grpc.show")
	defer end()
	out, err := a.h.Show(ctx, *in)
	if err != nil {
		return &transport.ShowResponse{Error: err.Error()}, nil
	}
	return &out, nil
}

func (a *adminImpl) Start(ctx context.Context, in *transport.ControlRequest) (*transport.ControlResponse, error) {
	return a.control(ctx, "grpc.start", a.h.Start, in)
}

func (a *adminImpl) Stop(ctx context.Context, in *transport.ControlRequest) (*transport.ControlResponse, error) {
	return a.control(ctx, "grpc.stop", a.h.Stop, in)
}

func (a *adminImpl) control(ctx context.Context, span string, fn transport.ControlFunc, in *transport.ControlRequest) (*transport.ControlResponse, error) {
	if in == nil {
		in = &transport.ControlRequest{}
	}
	if fn == nil {
		return &transport.ControlResponse{Error: "not supported"}, nil
	}
	ctx, end := tracing.StartSpan(ctx, span)
	defer end()
	out, err := fn(ctx, *in)
	if err != nil {
		return &transport.ControlResponse{Error: err.Error()}, nil
	}
	return &out, nil
}

func (a *adminImpl) Check(ctx context.Context, in *transport.CheckRequest) (*transport.CheckResponse, error) {
	if in == nil {
		in = &transport.CheckRequest{}
	}
	if a.h.Check == nil {
		return &transport.CheckResponse{Error: "check not supported"}, nil
	}
	ctx, end := tracing.StartSpan(ctx, "grpc.check")
	defer end()
	out, err := a.h.Check(ctx, *in)
	if err != nil {
		return &transport.CheckResponse{Error: err.Error()}, nil
	}
	return &out, nil
}

// Service descriptor and handlers (hand-written, no codegen required)
var _Admin_serviceDesc = grpc.ServiceDesc{
	ServiceName: "dbmon.v1.Admin",
	HandlerType: (*adminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "List", Handler: _Admin_List_Handler},
		{MethodName: "Show", Handler: _Admin_Show_Handler},
		{MethodName: "Start", Handler: _Admin_Start_Handler},
		{MethodName: "Stop", Handler: _Admin_Stop_Handler},
		{MethodName: "Check", Handler: _Admin_Check_Handler},
	},
}

func _Admin_List_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(adminServer).List(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dbmon.v1.Admin/List"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(adminServer).List(ctx, req.(*empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Admin_Show_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(transport.ShowRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(adminServer).Show(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dbmon.v1.Admin/Show"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(adminServer).Show(ctx, req.(*transport.ShowRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Admin_Start_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(transport.ControlRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(adminServer).Start(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dbmon.v1.Admin/Start"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(adminServer).Start(ctx, req.(*transport.ControlRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Admin_Stop_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(transport.ControlRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(adminServer).Stop(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dbmon.v1.Admin/Stop"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(adminServer).Stop(ctx, req.(*transport.ControlRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Admin_Check_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(transport.CheckRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(adminServer).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dbmon.v1.Admin/Check"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(adminServer).Check(ctx, req.(*transport.CheckRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func (s *Server) Start(ctx context.Context, h transport.Handlers) error {
	lis, err := net.Listen("tcp", s.bind)
	if err != nil {
		return err
	}
	s.lis = lis
	// Force JSON codec to avoid requiring protobuf types
	var opts []grpc.ServerOption
	opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
	opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}))
	opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}))
	if s.tlsCfg != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg)))
	}
	srv := grpc.NewServer(opts...)
	s.srv = srv
	// Health service (always serving for now)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	// Register admin service
	srv.RegisterService(&_Admin_serviceDesc, &adminImpl{h: h})

	go func() {
		<-ctx.Done()
		// Graceful stop with a small timeout fallback
		ch := make(chan struct{})
		go func() { srv.GracefulStop(); close(ch) }()
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			srv.Stop()
		}
	}()
	go func() { _ = srv.Serve(lis) }()
	return nil
}

func (s *Server) Addr() string { return s.bind }

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ch := make(chan struct{})
	go func() { s.srv.GracefulStop(); close(ch) }()
	select {
	case <-ch:
	case <-ctx.Done():
		s.srv.Stop()
	}
	s.srv = nil
	if s.lis != nil {
		_ = s.lis.Close()
		s.lis = nil
	}
	return nil
}

var _ transport.RPCServer = (*Server)(nil)
