package sasl

import (
	"fmt"

	"github.com/keelfs/keelfs/pkg/rpc/transport"
)

// HandshakeMetrics records handshake outcomes on the server side.
// A nil HandshakeMetrics disables recording with zero overhead.
type HandshakeMetrics interface {
	RecordHandshakeSuccess(mechanism string)
	RecordHandshakeFailure(mechanism string)
}

// clientTransport wraps a base transport with a client-side SASL
// negotiation. The handshake runs during Open; afterwards all payloads are
// length-framed on the base transport.
type clientTransport struct {
	base transport.Transport
	mech ClientMechanism
	data *transport.Framed
}

// NewClientTransport wraps base with a client-side negotiation for the
// given mechanism.
func NewClientTransport(mech ClientMechanism, base transport.Transport) transport.Transport {
	return &clientTransport{base: base, mech: mech}
}

// NewPlainClient wraps base with a PLAIN negotiation presenting the given
// identity and password.
func NewPlainClient(username, password string, base transport.Transport) (transport.Transport, error) {
	mech, err := NewPlainClientMechanism(username, password)
	if err != nil {
		return nil, err
	}
	return NewClientTransport(mech, base), nil
}

// Open opens the base transport if needed and runs the negotiation. On
// handshake failure the base transport is closed: a half-negotiated
// connection is not reusable.
func (t *clientTransport) Open() error {
	if t.data != nil {
		return fmt.Errorf("sasl: transport already open")
	}
	if !t.base.IsOpen() {
		if err := t.base.Open(); err != nil {
			return err
		}
	}

	if err := t.negotiate(); err != nil {
		_ = t.base.Close()
		return err
	}

	t.data = transport.NewFramed(t.base)
	return nil
}

func (t *clientTransport) negotiate() error {
	if err := writeMessage(t.base, StatusStart, []byte(t.mech.Name())); err != nil {
		return err
	}

	initial, err := t.mech.Start()
	if err != nil {
		return err
	}
	if err := writeMessage(t.base, StatusOK, initial); err != nil {
		return err
	}

	for {
		status, payload, err := readMessage(t.base)
		if err != nil {
			return err
		}

		switch status {
		case StatusComplete:
			return nil
		case StatusOK:
			_, response, err := t.mech.Next(payload)
			if err != nil {
				return err
			}
			if err := writeMessage(t.base, StatusOK, response); err != nil {
				return err
			}
		case StatusBad, StatusError:
			return fmt.Errorf("%w: server rejected handshake: %s", ErrNegotiationFailed, payload)
		default:
			return fmt.Errorf("%w: unexpected status 0x%02x", ErrNegotiationFailed, status)
		}
	}
}

func (t *clientTransport) IsOpen() bool {
	return t.data != nil && t.base.IsOpen()
}

func (t *clientTransport) Read(p []byte) (int, error) {
	if t.data == nil {
		return 0, transport.ErrNotOpen
	}
	return t.data.Read(p)
}

func (t *clientTransport) Write(p []byte) (int, error) {
	if t.data == nil {
		return 0, transport.ErrNotOpen
	}
	return t.data.Write(p)
}

func (t *clientTransport) Flush() error {
	if t.data == nil {
		return transport.ErrNotOpen
	}
	return t.data.Flush()
}

func (t *clientTransport) Close() error {
	t.data = nil
	return t.base.Close()
}

// serverTransport wraps an accepted connection with the server half of the
// negotiation. Open blocks until the client's handshake completes or fails.
type serverTransport struct {
	base     transport.Transport
	verifier Verifier
	metrics  HandshakeMetrics
	username string
	data     *transport.Framed
}

// Username returns the identity authenticated during the handshake. Empty
// until Open has succeeded.
func (t *serverTransport) Username() string {
	return t.username
}

func (t *serverTransport) Open() error {
	if t.data != nil {
		return fmt.Errorf("sasl: transport already open")
	}
	if !t.base.IsOpen() {
		if err := t.base.Open(); err != nil {
			return err
		}
	}

	if err := t.negotiate(); err != nil {
		if t.metrics != nil {
			t.metrics.RecordHandshakeFailure(MechPlain)
		}
		_ = t.base.Close()
		return err
	}

	if t.metrics != nil {
		t.metrics.RecordHandshakeSuccess(MechPlain)
	}
	t.data = transport.NewFramed(t.base)
	return nil
}

func (t *serverTransport) negotiate() error {
	status, payload, err := readMessage(t.base)
	if err != nil {
		return err
	}
	if status != StatusStart {
		return fmt.Errorf("%w: expected START, got status 0x%02x", ErrNegotiationFailed, status)
	}

	mechName := string(payload)
	if mechName != MechPlain {
		_ = writeMessage(t.base, StatusBad, []byte("unsupported mechanism "+mechName))
		return fmt.Errorf("%w: %q", ErrUnsupportedMechanism, mechName)
	}

	mech, err := NewPlainServerMechanism(t.verifier)
	if err != nil {
		_ = writeMessage(t.base, StatusError, []byte(err.Error()))
		return err
	}

	for {
		status, payload, err := readMessage(t.base)
		if err != nil {
			return err
		}
		if status != StatusOK {
			return fmt.Errorf("%w: unexpected status 0x%02x during exchange", ErrNegotiationFailed, status)
		}

		done, challenge, err := mech.Step(payload)
		if err != nil {
			_ = writeMessage(t.base, StatusBad, []byte(err.Error()))
			return err
		}
		if done {
			if err := writeMessage(t.base, StatusComplete, challenge); err != nil {
				return err
			}
			t.username = mech.Username()
			return nil
		}
		if err := writeMessage(t.base, StatusOK, challenge); err != nil {
			return err
		}
	}
}

func (t *serverTransport) IsOpen() bool {
	return t.data != nil && t.base.IsOpen()
}

func (t *serverTransport) Read(p []byte) (int, error) {
	if t.data == nil {
		return 0, transport.ErrNotOpen
	}
	return t.data.Read(p)
}

func (t *serverTransport) Write(p []byte) (int, error) {
	if t.data == nil {
		return 0, transport.ErrNotOpen
	}
	return t.data.Write(p)
}

func (t *serverTransport) Flush() error {
	if t.data == nil {
		return transport.ErrNotOpen
	}
	return t.data.Flush()
}

func (t *serverTransport) Close() error {
	t.data = nil
	return t.base.Close()
}

// ServerFactory wraps every accepted connection with a server-side PLAIN
// negotiation backed by a shared Verifier. Safe for concurrent use.
type ServerFactory struct {
	verifier Verifier
	metrics  HandshakeMetrics
}

// NewPlainServerFactory creates a factory producing PLAIN server transports.
// metrics may be nil to disable handshake metrics.
func NewPlainServerFactory(verifier Verifier, metrics HandshakeMetrics) (*ServerFactory, error) {
	if verifier == nil {
		return nil, fmt.Errorf("%w: nil verifier", ErrNegotiationFailed)
	}
	return &ServerFactory{verifier: verifier, metrics: metrics}, nil
}

// Wrap applies the server-side negotiation to an accepted connection.
func (f *ServerFactory) Wrap(base transport.Transport) (transport.Transport, error) {
	return &serverTransport{base: base, verifier: f.verifier, metrics: f.metrics}, nil
}
