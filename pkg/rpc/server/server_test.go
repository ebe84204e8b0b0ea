package server

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keelfs/keelfs/pkg/rpc/sasl"
	"github.com/keelfs/keelfs/pkg/rpc/transport"
)

// echoHandler reads one frame per iteration and writes it back until the
// peer disconnects.
var echoHandler = HandlerFunc(func(ctx context.Context, t transport.Transport) {
	buf := make([]byte, 64)
	for {
		n, err := t.Read(buf)
		if err != nil {
			return
		}
		if _, err := t.Write(buf[:n]); err != nil {
			return
		}
		if err := t.Flush(); err != nil {
			return
		}
	}
})

// startServer runs Serve in a goroutine and returns the server plus its
// listen address. The server is stopped when the test ends.
func startServer(t *testing.T, factory transport.Factory, handler Handler) (*Server, string) {
	t.Helper()

	srv := New(Config{
		BindAddress:     "127.0.0.1",
		Port:            0,
		ShutdownTimeout: 2 * time.Second,
	}, factory, handler)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(context.Background()) }()

	addr := srv.Addr()
	require.NotEmpty(t, addr)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		select {
		case err := <-serveErr:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("Serve did not return after Stop")
		}
	})

	return srv, addr
}

func roundTrip(t *testing.T, conn transport.Transport, payload string) {
	t.Helper()

	_, err := conn.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	buf := make([]byte, len(payload))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, payload, string(buf))
}

func TestServer_EchoFramed(t *testing.T) {
	_, addr := startServer(t, transport.NewFramedFactory(), echoHandler)

	sock := transport.NewSocket(addr)
	require.NoError(t, sock.Open())
	conn := transport.NewFramed(sock)
	defer conn.Close()

	roundTrip(t, conn, "hello")
	roundTrip(t, conn, "again")
}

func TestServer_EchoWithPlainHandshake(t *testing.T) {
	factory, err := sasl.NewPlainServerFactory(sasl.AcceptAllVerifier{}, nil)
	require.NoError(t, err)

	_, addr := startServer(t, factory, echoHandler)

	conn, err := sasl.NewPlainClient("alice", "noPassword", transport.NewSocket(addr))
	require.NoError(t, err)
	require.NoError(t, conn.Open())
	defer conn.Close()

	roundTrip(t, conn, "authenticated echo")
}

func TestServer_RejectedHandshakeKeepsServing(t *testing.T) {
	verifier := verifierFunc(func(_ context.Context, username, _ string) error {
		if username != "alice" {
			return sasl.ErrAuthenticationFailed
		}
		return nil
	})
	factory, err := sasl.NewPlainServerFactory(verifier, nil)
	require.NoError(t, err)

	_, addr := startServer(t, factory, echoHandler)

	bad, err := sasl.NewPlainClient("mallory", "noPassword", transport.NewSocket(addr))
	require.NoError(t, err)
	assert.ErrorIs(t, bad.Open(), sasl.ErrNegotiationFailed)

	good, err := sasl.NewPlainClient("alice", "noPassword", transport.NewSocket(addr))
	require.NoError(t, err)
	require.NoError(t, good.Open())
	defer good.Close()

	roundTrip(t, good, "still serving")
}

func TestServer_MaxConnections(t *testing.T) {
	srv := New(Config{
		BindAddress:     "127.0.0.1",
		Port:            0,
		MaxConnections:  1,
		ShutdownTimeout: 2 * time.Second,
	}, transport.NewFramedFactory(), echoHandler)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(context.Background()) }()
	addr := srv.Addr()

	sock := transport.NewSocket(addr)
	require.NoError(t, sock.Open())
	first := transport.NewFramed(sock)
	roundTrip(t, first, "one")
	assert.Eventually(t, func() bool { return srv.ActiveConnections() == 1 },
		time.Second, 10*time.Millisecond)

	// A second connection dials but is not accepted while the first holds
	// the slot.
	secondSock := transport.NewSocket(addr)
	require.NoError(t, secondSock.Open())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), srv.ActiveConnections())

	// Releasing the first slot lets the second connection through.
	first.Close()
	second := transport.NewFramed(secondSock)
	roundTrip(t, second, "two")
	second.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.NoError(t, <-serveErr)
}

func TestServer_GracefulStopWaitsForConnections(t *testing.T) {
	release := make(chan struct{})
	var handled atomic.Int32
	handler := HandlerFunc(func(ctx context.Context, t transport.Transport) {
		handled.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
	})

	srv := New(Config{
		BindAddress:     "127.0.0.1",
		Port:            0,
		ShutdownTimeout: 2 * time.Second,
	}, transport.NewFramedFactory(), handler)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(context.Background()) }()
	addr := srv.Addr()

	sock := transport.NewSocket(addr)
	require.NoError(t, sock.Open())
	defer sock.Close()

	require.Eventually(t, func() bool { return handled.Load() == 1 },
		time.Second, 10*time.Millisecond)

	// Stop cancels the server context, which releases the handler.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.NoError(t, <-serveErr)
	assert.Equal(t, int32(0), srv.ActiveConnections())
}

func TestServer_StopIdempotent(t *testing.T) {
	srv := New(Config{BindAddress: "127.0.0.1", Port: 0}, transport.NewFramedFactory(), echoHandler)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(context.Background()) }()
	srv.Addr()

	ctx := context.Background()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx))
	assert.NoError(t, <-serveErr)
}

func TestServer_ListenError(t *testing.T) {
	first := New(Config{BindAddress: "127.0.0.1", Port: 0}, transport.NewFramedFactory(), echoHandler)
	serveErr := make(chan error, 1)
	go func() { serveErr <- first.Serve(context.Background()) }()
	addr := first.Addr()

	_, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	second := New(Config{BindAddress: "127.0.0.1", Port: port}, transport.NewFramedFactory(), echoHandler)
	err = second.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")

	require.NoError(t, first.Stop(context.Background()))
	assert.NoError(t, <-serveErr)
}

// verifierFunc adapts a function to sasl.Verifier.
type verifierFunc func(ctx context.Context, username, password string) error

func (f verifierFunc) Verify(ctx context.Context, username, password string) error {
	return f(ctx, username, password)
}

