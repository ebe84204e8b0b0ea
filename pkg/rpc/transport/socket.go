package transport

import (
	"fmt"
	"net"
	"time"
)

// DefaultDialTimeout bounds the TCP connect performed by Socket.Open.
const DefaultDialTimeout = 30 * time.Second

// Socket is a TCP transport. A client-side Socket is created unconnected
// with NewSocket and dials on Open; a server-side Socket wraps an already
// accepted net.Conn via NewSocketConn.
type Socket struct {
	addr        string
	dialTimeout time.Duration
	conn        net.Conn
}

// NewSocket creates an unconnected socket transport that will dial addr
// (host:port) when Open is called.
func NewSocket(addr string) *Socket {
	return &Socket{
		addr:        addr,
		dialTimeout: DefaultDialTimeout,
	}
}

// NewSocketConn wraps an established connection, typically one returned by
// a listener's Accept. The returned transport is already open.
func NewSocketConn(conn net.Conn) *Socket {
	return &Socket{
		addr: conn.RemoteAddr().String(),
		conn: conn,
	}
}

// SetDialTimeout overrides the timeout used by Open.
func (s *Socket) SetDialTimeout(d time.Duration) {
	s.dialTimeout = d
}

// Addr returns the remote address this socket connects to.
func (s *Socket) Addr() string {
	return s.addr
}

// Open dials the remote address. Nagle's algorithm is disabled to keep
// request/response latency low, matching the server side.
func (s *Socket) Open() error {
	if s.conn != nil {
		return fmt.Errorf("transport: socket to %s already open", s.addr)
	}

	conn, err := net.DialTimeout("tcp", s.addr, s.dialTimeout)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", s.addr, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	s.conn = conn
	return nil
}

// IsOpen reports whether the socket has an established connection.
func (s *Socket) IsOpen() bool {
	return s.conn != nil
}

func (s *Socket) Read(p []byte) (int, error) {
	if s.conn == nil {
		return 0, ErrNotOpen
	}
	return s.conn.Read(p)
}

func (s *Socket) Write(p []byte) (int, error) {
	if s.conn == nil {
		return 0, ErrNotOpen
	}
	return s.conn.Write(p)
}

// Flush is a no-op: socket writes are unbuffered.
func (s *Socket) Flush() error {
	if s.conn == nil {
		return ErrNotOpen
	}
	return nil
}

// Close closes the underlying connection. Closing an unopened socket is a
// no-op so callers can defer Close unconditionally.
func (s *Socket) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
