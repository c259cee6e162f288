package httpjson

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/amirimatin/go-dbmon/pkg/observability/tracing"
	"github.com/amirimatin/go-dbmon/pkg/transport"
)

// Server is a minimal HTTP server exposing the monitor admin endpoints plus
// metrics/healthz. It is intended for operator tooling and scraping.
type Server struct {
	bind   string
	srv    *http.Server
	logger zerolog.Logger
	tlsCfg *tls.Config
}

// NewServer binds to the given TCP address (e.g., ":18080").
func NewServer(bind string, logger zerolog.Logger) *Server {
	return &Server{bind: bind, logger: logger}
}

// UseTLS enables TLS for the HTTP server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// Start launches the HTTP server with handlers backed by h. The server is
// shut down when the context is canceled.
func (s *Server) Start(ctx context.Context, h transport.Handlers) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/monitors", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.List == nil {
			http.Error(w, "list not supported", http.StatusNotImplemented)
			return
		}
		ctx, end := tracing.StartSpan(r.Context(), "http.list")
		defer end()
		resp, err := h.List(ctx)
		if err != nil {
			http.Error(w, fmt.Sprintf("list error: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
	mux.HandleFunc("/monitors/show", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.Show == nil {
			http.Error(w, "show not supported", http.StatusNotImplemented)
			return
		}
		ctx, end := tracing.StartSpan(r.Context(), "http.show")
		defer end()
		resp, err := h.Show(ctx, transport.ShowRequest{Name: r.URL.Query().Get("name")})
		if err != nil {
			if resp.Error == "" {
				resp.Error = err.Error()
			}
			writeJSON(w, http.StatusInternalServerError, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
	mux.HandleFunc("/monitors/start", controlHandler("http.start", h.Start))
	mux.HandleFunc("/monitors/stop", controlHandler("http.stop", h.Stop))
	mux.HandleFunc("/monitors/check", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.Check == nil {
			http.Error(w, "check not supported", http.StatusNotImplemented)
			return
		}
		var req transport.CheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
			return
		}
		ctx, end := tracing.StartSpan(r.Context(), "http.check")
		defer end()
		resp, err := h.Check(ctx, req)
		if err != nil {
			if resp.Error == "" {
				resp.Error = err.Error()
			}
			writeJSON(w, http.StatusInternalServerError, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{Addr: s.bind, Handler: mux}

	ln, err := net.Listen("tcp", s.bind)
	if err != nil {
		return err
	}
	if s.tlsCfg != nil {
		ln = tls.NewListener(ln, s.tlsCfg)
	}

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("httpjson: server error")
		}
	}()
	return nil
}

// controlHandler serves the start/stop endpoints, which share a shape.
func controlHandler(span string, fn transport.ControlFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if fn == nil {
			http.Error(w, "not supported", http.StatusNotImplemented)
			return
		}
		var req transport.ControlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
			return
		}
		ctx, end := tracing.StartSpan(r.Context(), span)
		defer end()
		resp, err := fn(ctx, req)
		if err != nil {
			if resp.Error == "" {
				resp.Error = err.Error()
			}
			writeJSON(w, http.StatusInternalServerError, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Addr returns the configured bind address.
func (s *Server) Addr() string { return s.bind }

// Stop attempts a graceful shutdown with a short timeout.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	c, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := s.srv.Shutdown(c)
	s.srv = nil
	return err
}

var _ transport.RPCServer = (*Server)(nil)
