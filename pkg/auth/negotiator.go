package auth

import (
	"fmt"

	"github.com/keelfs/keelfs/internal/logger"
	"github.com/keelfs/keelfs/pkg/config"
	"github.com/keelfs/keelfs/pkg/rpc/sasl"
	"github.com/keelfs/keelfs/pkg/rpc/transport"
)

// PlaceholderPassword is the fixed password sent in PLAIN handshakes. The
// handshake authenticates presence of an identity claim, not a secret;
// callers needing real access control must pair this layer with
// out-of-band authorization.
const PlaceholderPassword = "noPassword"

// Negotiator switches transport construction on the configured
// authentication mode. It provides the transport factory used by RPC
// servers for every incoming connection, and the wrapped transports RPC
// clients open toward a server.
//
// The mode is parsed once at construction and immutable afterwards; a
// Negotiator is safe for concurrent use.
type Negotiator struct {
	mode    AuthMode
	conf    *config.Config
	metrics sasl.HandshakeMetrics
}

// NewNegotiator creates a Negotiator for the configured authentication
// mode. Fails with ErrInvalidConfiguration if the mode string is not
// recognized.
func NewNegotiator(conf *config.Config) (*Negotiator, error) {
	mode, err := ParseAuthMode(conf.Security.Authentication.Type)
	if err != nil {
		return nil, err
	}

	return &Negotiator{mode: mode, conf: conf}, nil
}

// SetMetrics attaches a handshake metrics recorder. Call before the
// negotiator is handed to a server; nil disables recording.
func (n *Negotiator) SetMetrics(m sasl.HandshakeMetrics) {
	n.metrics = m
}

// Mode returns the authentication mode this negotiator was built with.
func (n *Negotiator) Mode() AuthMode {
	return n.mode
}

// ServerTransportFactory returns the transport factory an RPC server
// applies to every accepted connection.
//
//	DISABLED   framing only, no identity check
//	SIMPLE     PLAIN handshake, verification disabled
//	CUSTOM     PLAIN handshake, verification by the configured provider
//	KERBEROS   rejected with ErrUnsupported
func (n *Negotiator) ServerTransportFactory() (transport.Factory, error) {
	switch n.mode {
	case AuthModeDisabled:
		return transport.NewFramedFactory(), nil

	case AuthModeSimple:
		return n.plainServerFactory(sasl.AcceptAllVerifier{})

	case AuthModeCustom:
		verifier, err := newCustomVerifier(n.conf)
		if err != nil {
			return nil, err
		}
		logger.Debug("using custom authentication provider",
			logger.KeyProvider, n.conf.Security.Authentication.CustomProvider)
		return n.plainServerFactory(verifier)

	case AuthModeKerberos:
		return nil, fmt.Errorf("%w: Kerberos is not supported currently", ErrUnsupported)

	default:
		return nil, fmt.Errorf("%w: unsupported authentication type: %s", ErrUnsupported, n.mode)
	}
}

func (n *Negotiator) plainServerFactory(verifier sasl.Verifier) (transport.Factory, error) {
	factory, err := sasl.NewPlainServerFactory(verifier, n.metrics)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeSetup, err)
	}
	return factory, nil
}

// ClientTransport creates the transport an RPC client opens toward
// serverAddr (host:port). The returned transport is not yet connected;
// its Open performs the dial and, in SIMPLE and CUSTOM modes, the PLAIN
// handshake presenting the login user.
func (n *Negotiator) ClientTransport(serverAddr string) (transport.Transport, error) {
	sock := transport.NewSocket(serverAddr)

	switch n.mode {
	case AuthModeDisabled:
		return transport.NewFramed(sock), nil

	case AuthModeSimple, AuthModeCustom:
		u, err := LoginUser(n.conf)
		if err != nil {
			return nil, err
		}

		wrapped, err := sasl.NewPlainClient(u.Name(), PlaceholderPassword, sock)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHandshakeSetup, err)
		}

		logger.Debug("client transport prepared",
			logger.KeyServerAddr, serverAddr,
			logger.KeyAuthMode, n.mode.String(),
			logger.KeyUser, u.Name())
		return wrapped, nil

	case AuthModeKerberos:
		return nil, fmt.Errorf("%w: Kerberos is not supported currently", ErrHandshakeSetup)

	default:
		return nil, fmt.Errorf("%w: unsupported authentication type: %s", ErrHandshakeSetup, n.mode)
	}
}
