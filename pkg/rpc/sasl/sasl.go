// Package sasl implements the SASL negotiation spoken by the KeelFS RPC
// layer before any application bytes flow, together with the PLAIN
// mechanism used to carry a login identity.
//
// The wire format follows the classic framed SASL transport: every
// negotiation message is a status byte, a 4-byte big-endian payload length,
// and the payload. The client opens with StatusStart carrying the mechanism
// name, then sends its initial response; the server answers StatusOK with a
// challenge for multi-step mechanisms or StatusComplete when authentication
// has succeeded. StatusBad and StatusError abort the handshake. After a
// successful negotiation both sides exchange 4-byte length-framed payloads.
//
// PLAIN carries no security layer; it authenticates only the presence of a
// claimed identity. Server-side verification is pluggable via Verifier.
package sasl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/keelfs/keelfs/pkg/rpc/transport"
)

// Negotiation message status codes.
const (
	StatusStart    byte = 0x01
	StatusOK       byte = 0x02
	StatusBad      byte = 0x03
	StatusError    byte = 0x04
	StatusComplete byte = 0x05
)

// maxNegotiationPayload bounds a single negotiation message. Identity and
// password payloads are tiny; anything close to this limit is a protocol
// violation.
const maxNegotiationPayload = 64 * 1024

// Common SASL errors.
var (
	// ErrNegotiationFailed indicates the peer rejected the handshake
	// (StatusBad or StatusError) or violated the negotiation protocol.
	ErrNegotiationFailed = errors.New("sasl: negotiation failed")

	// ErrUnsupportedMechanism indicates the client requested a mechanism
	// the server does not speak.
	ErrUnsupportedMechanism = errors.New("sasl: unsupported mechanism")

	// ErrAuthenticationFailed indicates the presented credentials were
	// rejected by the server-side verifier.
	ErrAuthenticationFailed = errors.New("sasl: authentication failed")
)

// ClientMechanism implements the client half of a SASL mechanism for a
// single connection. A mechanism instance is created per transport and does
// not need to be safe for concurrent use.
type ClientMechanism interface {
	// Name returns the mechanism identifier sent in the StatusStart message.
	Name() string

	// Start begins authentication and returns the initial response.
	Start() (initial []byte, err error)

	// Next continues challenge-response authentication. done reports that
	// the client side considers authentication complete.
	Next(challenge []byte) (done bool, response []byte, err error)
}

// ServerMechanism implements the server half of a SASL mechanism for a
// single accepted connection.
type ServerMechanism interface {
	// Name returns the mechanism identifier.
	Name() string

	// Step processes one client response. When done is true authentication
	// has succeeded and challenge (if any) is the final server message.
	Step(response []byte) (done bool, challenge []byte, err error)

	// Username returns the authenticated identity. Valid only after Step
	// has returned done=true.
	Username() string
}

// writeMessage writes one negotiation message directly on the base
// transport: status byte, payload length, payload.
func writeMessage(t transport.Transport, status byte, payload []byte) error {
	header := make([]byte, 5)
	header[0] = status
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))

	if _, err := t.Write(header); err != nil {
		return fmt.Errorf("sasl: write negotiation header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := t.Write(payload); err != nil {
			return fmt.Errorf("sasl: write negotiation payload: %w", err)
		}
	}
	return t.Flush()
}

// readMessage reads one negotiation message from the base transport.
func readMessage(t transport.Transport) (status byte, payload []byte, err error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(t, header); err != nil {
		return 0, nil, fmt.Errorf("sasl: read negotiation header: %w", err)
	}

	status = header[0]
	size := binary.BigEndian.Uint32(header[1:])
	if size > maxNegotiationPayload {
		return 0, nil, fmt.Errorf("%w: negotiation payload of %d bytes", ErrNegotiationFailed, size)
	}

	payload = make([]byte, size)
	if _, err := io.ReadFull(t, payload); err != nil {
		return 0, nil, fmt.Errorf("sasl: read negotiation payload: %w", err)
	}
	return status, payload, nil
}
