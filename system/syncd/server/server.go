package server

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signadot/docsync/system/syncd/api"
)

// Server represents the syncd server.
type Server struct {
	Spec Spec

	// Registry holds the open streams and their subscribers.
	Registry *Registry

	gatherer prometheus.Gatherer

	// TCP listener for session protocol
	tcpListener *TCPListener
}

// New creates a new Server instance.
func New(spec *Spec) (*Server, error) {
	if spec.Log == nil {
		spec.Log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slogLevel(),
		}))
	}
	if spec.Config == nil {
		spec.Config = DefaultConfig()
	}
	if err := spec.Config.Validate(); err != nil {
		return nil, err
	}
	gatherer := spec.Gatherer
	switch {
	case spec.Registerer == nil && gatherer == nil:
		reg := prometheus.NewRegistry()
		spec.Registerer = reg
		gatherer = reg
	case spec.Registerer == nil:
		return nil, api.NewError(api.ErrCodeInvalidConfig, "metrics gatherer given without a registerer")
	case gatherer == nil:
		g, ok := spec.Registerer.(prometheus.Gatherer)
		if !ok {
			return nil, api.NewError(api.ErrCodeInvalidConfig, "metrics registerer is not a gatherer and no gatherer was given")
		}
		gatherer = g
	}
	if spec.Store == nil {
		store, err := spec.Config.newStore(spec.Log)
		if err != nil {
			return nil, err
		}
		spec.Store = store
	}

	s := &Server{
		Spec:     *spec,
		gatherer: gatherer,
		Registry: NewRegistry(&RegistrySpec{
			Store:       spec.Store,
			Log:         spec.Log,
			Registerer:  spec.Registerer,
			PushTimeout: spec.Config.Push.Timeout.D(),
			Coalesce:    spec.Config.Coalesce.D(),
		}),
	}
	return s, nil
}

func slogLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// StartTCP starts the TCP listener on the given address.
// The listener runs in a separate goroutine.
func (s *Server) StartTCP(addr string) error {
	if s.tcpListener != nil {
		return fmt.Errorf("TCP listener already running")
	}

	listener, err := NewTCPListener(addr, s)
	if err != nil {
		return err
	}

	s.tcpListener = listener

	go func() {
		if err := listener.Serve(); err != nil {
			s.Spec.Log.Error("TCP listener error", "error", err)
		}
	}()

	return nil
}

// StopTCP stops the TCP listener.
func (s *Server) StopTCP() error {
	if s.tcpListener == nil {
		return nil
	}

	err := s.tcpListener.Close()
	s.tcpListener = nil
	return err
}

// TCPAddr returns the TCP listener's address, or "" if not running.
func (s *Server) TCPAddr() string {
	if s.tcpListener == nil {
		return ""
	}
	return s.tcpListener.Addr().String()
}

// Close stops the TCP listener and disposes every stream.
func (s *Server) Close() error {
	err := s.StopTCP()
	s.Registry.Close()
	return err
}
