// Package chassis runs the HTTP listener: the REST routes, the MCP tools
// over streamable HTTP at /mcp, and optional TLS.
//
// With neither cert files nor SelfSigned set the listener is plain HTTP.
// SelfSigned generates an ECDSA P-256 certificate for localhost at startup.
package chassis

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
)

// MCPPath is where the MCP server is mounted.
const MCPPath = "/mcp"

// Config holds configuration for the chassis server.
type Config struct {
	Addr       string            // listen address, e.g. ":8421"
	CertFile   string            // PEM certificate; with KeyFile enables TLS
	KeyFile    string            // PEM key
	SelfSigned bool              // generate a dev certificate when no files are given
	Handler    http.Handler      // REST routes
	MCPServer  *server.MCPServer // nil disables /mcp
	Logger     *slog.Logger
}

// Server is an http.Server with the padron middleware stack.
type Server struct {
	addr    string
	logger  *slog.Logger
	tlsCfg  *tls.Config
	handler http.Handler

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("chassis: nil handler")
	}

	var tlsCfg *tls.Config
	switch {
	case cfg.CertFile != "" && cfg.KeyFile != "":
		var err error
		tlsCfg, err = FileTLSConfig(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load TLS cert: %w", err)
		}
		cfg.Logger.Info("TLS: certificate loaded", "cert", cfg.CertFile)
	case cfg.SelfSigned:
		var err error
		tlsCfg, err = SelfSignedTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("generate dev TLS: %w", err)
		}
		cfg.Logger.Warn("TLS: using a self-signed certificate")
	}

	h := cfg.Handler
	if cfg.MCPServer != nil {
		mux := http.NewServeMux()
		mux.Handle(MCPPath, server.NewStreamableHTTPServer(cfg.MCPServer))
		mux.Handle("/", cfg.Handler)
		h = mux
	}

	return &Server{
		addr:    cfg.Addr,
		logger:  cfg.Logger,
		tlsCfg:  tlsCfg,
		handler: securityHeaders(h),
	}, nil
}

// Handler returns the full handler chain.
func (s *Server) Handler() http.Handler { return s.handler }

// TLS reports whether the listener speaks TLS.
func (s *Server) TLS() bool { return s.tlsCfg != nil }

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// Start listens and serves until ctx is cancelled or the listener fails.
// It returns nil on cancellation; call Stop to drain connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	proto := "http"
	if s.tlsCfg != nil {
		ln = tls.NewListener(ln, s.tlsCfg)
		proto = "https"
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.srv
	s.mu.Unlock()

	s.logger.Info("chassis started", "addr", ln.Addr().String(), "proto", proto)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}
}

// Addr returns the bound address once Start has listened.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	s.logger.Info("chassis stopping")
	return s.srv.Shutdown(ctx)
}
