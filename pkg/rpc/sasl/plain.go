package sasl

import (
	"bytes"
	"context"
	"fmt"
)

// MechPlain is the PLAIN mechanism identifier (RFC 4616).
const MechPlain = "PLAIN"

// Verifier decides whether a PLAIN identity/password pair is accepted.
//
// Implementations must be safe for concurrent use: one Verifier instance
// serves every accepted connection.
type Verifier interface {
	// Verify returns nil if the pair is accepted. A rejection should be
	// (or wrap) ErrAuthenticationFailed.
	Verify(ctx context.Context, username, password string) error
}

// AcceptAllVerifier accepts any non-empty identity without checking the
// password. This is the server-side behavior when verification is disabled:
// the handshake authenticates presence of an identity claim, not a secret.
type AcceptAllVerifier struct{}

// Verify accepts any non-empty username.
func (AcceptAllVerifier) Verify(_ context.Context, username, _ string) error {
	if username == "" {
		return fmt.Errorf("%w: empty identity", ErrAuthenticationFailed)
	}
	return nil
}

// plainClient is the client half of PLAIN: a single initial response of
// authzid NUL authcid NUL passwd, with an empty authzid.
type plainClient struct {
	username string
	password string
}

// NewPlainClientMechanism creates the client half of a PLAIN exchange.
// PLAIN requires a non-empty identity and password.
func NewPlainClientMechanism(username, password string) (ClientMechanism, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: PLAIN requires a username", ErrNegotiationFailed)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: PLAIN requires a password", ErrNegotiationFailed)
	}
	return &plainClient{username: username, password: password}, nil
}

func (*plainClient) Name() string {
	return MechPlain
}

func (c *plainClient) Start() ([]byte, error) {
	return []byte(fmt.Sprintf("\x00%s\x00%s", c.username, c.password)), nil
}

func (c *plainClient) Next(challenge []byte) (bool, []byte, error) {
	// PLAIN is a single-step mechanism; the server rejects bad credentials
	// with StatusBad, so any challenge here means success.
	return true, nil, nil
}

// plainServer is the server half of PLAIN. It parses the initial response
// and delegates the accept/reject decision to a Verifier.
type plainServer struct {
	verifier Verifier
	username string
	done     bool
}

// NewPlainServerMechanism creates the server half of a PLAIN exchange
// backed by the given verifier.
func NewPlainServerMechanism(verifier Verifier) (ServerMechanism, error) {
	if verifier == nil {
		return nil, fmt.Errorf("%w: PLAIN requires a verifier", ErrNegotiationFailed)
	}
	return &plainServer{verifier: verifier}, nil
}

func (*plainServer) Name() string {
	return MechPlain
}

func (s *plainServer) Step(response []byte) (bool, []byte, error) {
	if s.done {
		return true, nil, nil
	}

	parts := bytes.SplitN(response, []byte{0}, 3)
	if len(parts) != 3 {
		return false, nil, fmt.Errorf("%w: malformed PLAIN response", ErrNegotiationFailed)
	}
	username, password := string(parts[1]), string(parts[2])

	if err := s.verifier.Verify(context.Background(), username, password); err != nil {
		return false, nil, err
	}

	s.username = username
	s.done = true
	return true, nil, nil
}

func (s *plainServer) Username() string {
	return s.username
}
