package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/ethereum-optimism/infra/op-unit/metrics"
)

// Server exposes /healthz and /metrics while a run is in progress
type Server struct {
	server   *http.Server
	listener net.Listener
	log      log.Logger
	done     chan struct{}
}

func New(logger log.Logger) *Server {
	if logger == nil {
		logger = log.New()
	}
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", handleHealthz)
	hdlr.Handle("/metrics", promhttp.Handler())
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return &Server{
		server: &http.Server{
			Handler:           c.Handler(hdlr),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log:  logger.New("component", "service"),
		done: make(chan struct{}),
	}
}

// Start binds addr and serves in the background
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		metrics.RecordErrorDetails("service_listen", err)
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln
	s.log.Info("starting metrics server", "addr", ln.Addr().String())

	go func() {
		defer close(s.done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error serving metrics", "err", err)
			metrics.RecordErrorDetails("service_serve", err)
		}
	}()
	return nil
}

// Addr returns the bound address, useful when started on port 0
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	<-s.done
	s.log.Info("metrics server stopped")
	return err
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("OK")) //nolint:errcheck
}
