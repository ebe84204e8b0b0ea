package sasl

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"

	"github.com/keelfs/keelfs/pkg/rpc/transport"
)

// handshakePair wires a PLAIN client and server transport over an
// in-memory pipe and opens both ends concurrently.
func handshakePair(t *testing.T, username, password string, verifier Verifier, metrics HandshakeMetrics) (client, server transport.Transport, clientErr, serverErr error) {
	t.Helper()

	a, b := net.Pipe()

	client, err := NewPlainClient(username, password, transport.NewSocketConn(a))
	if err != nil {
		t.Fatalf("NewPlainClient: %v", err)
	}

	factory, err := NewPlainServerFactory(verifier, metrics)
	if err != nil {
		t.Fatalf("NewPlainServerFactory: %v", err)
	}
	server, err = factory.Wrap(transport.NewSocketConn(b))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Open() }()

	clientErr = client.Open()
	serverErr = <-serverDone
	return client, server, clientErr, serverErr
}

func TestPlainHandshake_Success(t *testing.T) {
	client, server, clientErr, serverErr := handshakePair(t, "alice", "noPassword", AcceptAllVerifier{}, nil)
	defer client.Close()
	defer server.Close()

	if clientErr != nil {
		t.Fatalf("client handshake: %v", clientErr)
	}
	if serverErr != nil {
		t.Fatalf("server handshake: %v", serverErr)
	}

	if !client.IsOpen() || !server.IsOpen() {
		t.Fatal("both transports should be open after handshake")
	}

	at, ok := server.(interface{ Username() string })
	if !ok {
		t.Fatal("server transport should expose the authenticated username")
	}
	if at.Username() != "alice" {
		t.Errorf("Username() = %q, want alice", at.Username())
	}
}

func TestPlainHandshake_DataExchange(t *testing.T) {
	client, server, clientErr, serverErr := handshakePair(t, "alice", "noPassword", AcceptAllVerifier{}, nil)
	defer client.Close()
	defer server.Close()

	if clientErr != nil || serverErr != nil {
		t.Fatalf("handshake: client=%v server=%v", clientErr, serverErr)
	}

	go func() {
		client.Write([]byte("payload"))
		client.Flush()
	}()

	buf := make([]byte, 7)
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatalf("server read: %v", err)
	}
	if string(buf) != "payload" {
		t.Errorf("server read %q, want payload", buf)
	}

	go func() {
		server.Write([]byte("reply"))
		server.Flush()
	}()

	reply := make([]byte, 5)
	if _, err := io.ReadFull(client, reply); err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(reply) != "reply" {
		t.Errorf("client read %q, want reply", reply)
	}
}

func TestPlainHandshake_VerifierRejects(t *testing.T) {
	reject := verifierFunc(func(_ context.Context, username, _ string) error {
		return ErrAuthenticationFailed
	})

	client, server, clientErr, serverErr := handshakePair(t, "mallory", "pw", reject, nil)
	defer client.Close()
	defer server.Close()

	if !errors.Is(clientErr, ErrNegotiationFailed) {
		t.Errorf("client err = %v, want ErrNegotiationFailed", clientErr)
	}
	if !errors.Is(serverErr, ErrAuthenticationFailed) {
		t.Errorf("server err = %v, want ErrAuthenticationFailed", serverErr)
	}
	if client.IsOpen() || server.IsOpen() {
		t.Error("failed handshake must not leave transports open")
	}
}

func TestServerTransport_RejectsUnknownMechanism(t *testing.T) {
	a, b := net.Pipe()

	factory, err := NewPlainServerFactory(AcceptAllVerifier{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	server, err := factory.Wrap(transport.NewSocketConn(b))
	if err != nil {
		t.Fatal(err)
	}

	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Open() }()

	// Speak the negotiation by hand, asking for GSSAPI.
	base := transport.NewSocketConn(a)
	if err := writeMessage(base, StatusStart, []byte("GSSAPI")); err != nil {
		t.Fatalf("write START: %v", err)
	}
	status, _, err := readMessage(base)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if status != StatusBad {
		t.Errorf("status = 0x%02x, want BAD", status)
	}

	if err := <-serverDone; !errors.Is(err, ErrUnsupportedMechanism) {
		t.Errorf("server err = %v, want ErrUnsupportedMechanism", err)
	}
	base.Close()
}

func TestServerTransport_RequiresStartMessage(t *testing.T) {
	a, b := net.Pipe()

	factory, _ := NewPlainServerFactory(AcceptAllVerifier{}, nil)
	server, _ := factory.Wrap(transport.NewSocketConn(b))

	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Open() }()

	base := transport.NewSocketConn(a)
	if err := writeMessage(base, StatusOK, []byte("\x00x\x00y")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := <-serverDone; !errors.Is(err, ErrNegotiationFailed) {
		t.Errorf("server err = %v, want ErrNegotiationFailed", err)
	}
	base.Close()
}

// countingMetrics records handshake outcomes for assertions.
type countingMetrics struct {
	success atomic.Int32
	failure atomic.Int32
}

func (m *countingMetrics) RecordHandshakeSuccess(string) { m.success.Add(1) }
func (m *countingMetrics) RecordHandshakeFailure(string) { m.failure.Add(1) }

func TestServerTransport_RecordsHandshakeMetrics(t *testing.T) {
	metrics := &countingMetrics{}

	client, server, clientErr, serverErr := handshakePair(t, "alice", "pw", AcceptAllVerifier{}, metrics)
	client.Close()
	server.Close()
	if clientErr != nil || serverErr != nil {
		t.Fatalf("handshake: client=%v server=%v", clientErr, serverErr)
	}
	if metrics.success.Load() != 1 || metrics.failure.Load() != 0 {
		t.Errorf("counters = (%d, %d), want (1, 0)", metrics.success.Load(), metrics.failure.Load())
	}

	reject := verifierFunc(func(context.Context, string, string) error { return ErrAuthenticationFailed })
	client, server, _, _ = handshakePair(t, "mallory", "pw", reject, metrics)
	client.Close()
	server.Close()
	if metrics.failure.Load() != 1 {
		t.Errorf("failure counter = %d, want 1", metrics.failure.Load())
	}
}

func TestNewPlainServerFactory_RequiresVerifier(t *testing.T) {
	if _, err := NewPlainServerFactory(nil, nil); !errors.Is(err, ErrNegotiationFailed) {
		t.Errorf("err = %v, want ErrNegotiationFailed", err)
	}
}
