// Package server runs the KeelFS RPC listener. It owns TCP lifecycle
// management: accepting connections, applying the authentication layer's
// transport factory to each one, graceful shutdown with a timeout, and
// connection metrics. The RPC dispatch itself is injected as a Handler.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/keelfs/keelfs/internal/logger"
	"github.com/keelfs/keelfs/pkg/rpc/transport"
)

// Handler serves one authenticated connection. ServeTransport blocks until
// the peer disconnects or ctx is cancelled; the server closes the
// transport afterwards.
type Handler interface {
	ServeTransport(ctx context.Context, t transport.Transport)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, t transport.Transport)

func (f HandlerFunc) ServeTransport(ctx context.Context, t transport.Transport) {
	f(ctx, t)
}

// authenticated is implemented by transports that carry a handshake
// identity (the SASL server transport).
type authenticated interface {
	Username() string
}

// MetricsRecorder records connection lifecycle metrics. A nil recorder
// disables metrics with zero overhead.
type MetricsRecorder interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	SetActiveConnections(count int32)
}

// Config holds the RPC server configuration.
type Config struct {
	// BindAddress is the IP address to bind to. Empty binds all interfaces.
	BindAddress string

	// Port is the TCP port to listen on. 0 picks an ephemeral port.
	Port int

	// MaxConnections limits concurrent client connections. 0 is unlimited.
	MaxConnections int

	// ShutdownTimeout bounds the wait for active connections during
	// graceful shutdown.
	ShutdownTimeout time.Duration
}

// Server accepts RPC connections and hands each one, wrapped by the
// authentication transport factory, to the Handler.
//
// All exported methods are safe for concurrent use; Stop is idempotent.
type Server struct {
	config  Config
	factory transport.Factory
	handler Handler
	metrics MetricsRecorder

	listenerMu sync.RWMutex
	listener   net.Listener

	// ListenerReady is closed when the listener accepts connections.
	// Used by tests to synchronize with startup.
	ListenerReady chan struct{}

	shutdownOnce sync.Once
	shutdown     chan struct{}

	activeConns   sync.WaitGroup
	connCount     atomic.Int32
	openConns     sync.Map // conn id -> net.Conn, for forced closure
	connSemaphore chan struct{}

	shutdownCtx    context.Context
	cancelRequests context.CancelFunc
}

// New creates a stopped Server. factory is the authentication layer's
// server transport factory, applied to every accepted connection.
func New(config Config, factory transport.Factory, handler Handler) *Server {
	var sem chan struct{}
	if config.MaxConnections > 0 {
		sem = make(chan struct{}, config.MaxConnections)
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())

	return &Server{
		config:         config,
		factory:        factory,
		handler:        handler,
		ListenerReady:  make(chan struct{}),
		shutdown:       make(chan struct{}),
		connSemaphore:  sem,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancel,
	}
}

// SetMetrics attaches a connection metrics recorder. Call before Serve.
func (s *Server) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// Serve listens and accepts connections until ctx is cancelled or Stop is
// called. Returns nil on graceful shutdown.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc server listen on %s: %w", addr, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.ListenerReady)

	logger.Info("RPC server listening", logger.KeyServerAddr, listener.Addr().String())

	go func() {
		<-ctx.Done()
		s.initiateShutdown()
	}()

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("accept error", logger.KeyError, err)
				continue
			}
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		s.startConnection(conn)
	}
}

// startConnection tracks an accepted connection and serves it in its own
// goroutine.
func (s *Server) startConnection(conn net.Conn) {
	connID := uuid.NewString()

	s.activeConns.Add(1)
	active := s.connCount.Add(1)
	s.openConns.Store(connID, conn)

	if s.metrics != nil {
		s.metrics.RecordConnectionAccepted()
		s.metrics.SetActiveConnections(active)
	}

	logger.Debug("connection accepted",
		logger.KeyConnID, connID,
		logger.KeyClientAddr, conn.RemoteAddr().String(),
		logger.KeyActive, active)

	go func() {
		defer func() {
			s.openConns.Delete(connID)
			s.activeConns.Done()
			remaining := s.connCount.Add(-1)
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			if s.metrics != nil {
				s.metrics.RecordConnectionClosed()
				s.metrics.SetActiveConnections(remaining)
			}
			logger.Debug("connection closed",
				logger.KeyConnID, connID,
				logger.KeyActive, remaining)
		}()

		s.serveConnection(connID, conn)
	}()
}

// serveConnection wraps the connection with the authentication transport
// and runs the handler. A failed handshake closes the connection; the
// server keeps accepting.
func (s *Server) serveConnection(connID string, conn net.Conn) {
	wrapped, err := s.factory.Wrap(transport.NewSocketConn(conn))
	if err != nil {
		logger.Warn("transport setup failed",
			logger.KeyConnID, connID,
			logger.KeyClientAddr, conn.RemoteAddr().String(),
			logger.KeyError, err)
		_ = conn.Close()
		return
	}
	defer func() { _ = wrapped.Close() }()

	if !wrapped.IsOpen() {
		if err := wrapped.Open(); err != nil {
			logger.Warn("authentication handshake failed",
				logger.KeyConnID, connID,
				logger.KeyClientAddr, conn.RemoteAddr().String(),
				logger.KeyError, err)
			return
		}
	}

	if at, ok := wrapped.(authenticated); ok {
		logger.Info("connection authenticated",
			logger.KeyConnID, connID,
			logger.KeyUser, at.Username(),
			logger.KeyClientAddr, conn.RemoteAddr().String())
	}

	s.handler.ServeTransport(s.shutdownCtx, wrapped)
}

// initiateShutdown stops the accept loop, closes the listener, interrupts
// blocking reads, and cancels in-flight request contexts. Idempotent.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.listenerMu.Unlock()

		// Unblock pending reads so connection goroutines can observe
		// cancellation.
		deadline := time.Now().Add(100 * time.Millisecond)
		s.openConns.Range(func(_, value any) bool {
			if conn, ok := value.(net.Conn); ok {
				_ = conn.SetReadDeadline(deadline)
			}
			return true
		})

		s.cancelRequests()
	})
}

// gracefulShutdown waits for active connections up to ShutdownTimeout,
// then force-closes stragglers.
func (s *Server) gracefulShutdown() error {
	active := s.connCount.Load()
	logger.Info("RPC server shutting down", logger.KeyActive, active)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	timeout := s.config.ShutdownTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
		logger.Info("RPC server shutdown complete")
		return nil
	case <-time.After(timeout):
		remaining := s.connCount.Load()
		s.openConns.Range(func(_, value any) bool {
			if conn, ok := value.(net.Conn); ok {
				_ = conn.Close()
			}
			return true
		})
		return fmt.Errorf("rpc server shutdown timeout: %d connections force-closed", remaining)
	}
}

// Stop initiates graceful shutdown and waits for active connections until
// ctx is cancelled. Safe to call multiple times and concurrently with
// Serve.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the listen address. Blocks until the listener is ready,
// making it safe for tests that start Serve in a goroutine.
func (s *Server) Addr() string {
	<-s.ListenerReady

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ActiveConnections returns the current number of active connections.
func (s *Server) ActiveConnections() int32 {
	return s.connCount.Load()
}
