package auth

import (
	"fmt"
	"strings"

	"github.com/keelfs/keelfs/pkg/config"
)

// AuthMode is the authentication strategy selected for RPC connections.
type AuthMode string

// Recognized authentication modes.
const (
	// AuthModeDisabled turns authentication off. Connections carry no
	// user information; transports are framed only.
	AuthModeDisabled AuthMode = "DISABLED"

	// AuthModeSimple makes the login user visible to the cluster. The
	// client presents its identity over a PLAIN handshake; server-side
	// verification is disabled.
	AuthModeSimple AuthMode = "SIMPLE"

	// AuthModeCustom is SIMPLE with server-side verification delegated to
	// a registered provider (see RegisterProvider), selected by the
	// security.authentication.custom_provider setting.
	AuthModeCustom AuthMode = "CUSTOM"

	// AuthModeKerberos is reserved. It parses from configuration but is
	// rejected by every operation.
	AuthModeKerberos AuthMode = "KERBEROS"
)

// authModes is the closed set of recognized modes, in the order used for
// error messages.
var authModes = []AuthMode{AuthModeDisabled, AuthModeSimple, AuthModeCustom, AuthModeKerberos}

// String returns the canonical uppercase identifier.
func (m AuthMode) String() string {
	return string(m)
}

// ParseAuthMode matches raw case-insensitively against the recognized mode
// identifiers. An unrecognized value fails with ErrInvalidConfiguration;
// there is no fallback.
func ParseAuthMode(raw string) (AuthMode, error) {
	mode := AuthMode(strings.ToUpper(raw))
	for _, m := range authModes {
		if mode == m {
			return m, nil
		}
	}

	names := make([]string, len(authModes))
	for i, m := range authModes {
		names[i] = m.String()
	}
	return "", fmt.Errorf("%w: %q is not a valid authentication type (expected one of %s); check the configuration parameter %s",
		ErrInvalidConfiguration, raw, strings.Join(names, ", "), config.KeyAuthenticationType)
}
