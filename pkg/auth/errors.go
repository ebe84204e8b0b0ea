package auth

import "errors"

// Standard authentication errors. All failures surfaced by this package
// wrap one of these sentinels; callers dispatch with errors.Is.
var (
	// ErrInvalidConfiguration indicates a malformed or unrecognized
	// authentication setting. Detected at parse time and fatal to the
	// calling component's startup; there is no fallback to a default.
	ErrInvalidConfiguration = errors.New("auth: invalid configuration")

	// ErrUnsupported indicates a recognized mode or operation with no
	// implementation: Kerberos, identity resolution under DISABLED mode,
	// or an unknown custom provider.
	ErrUnsupported = errors.New("auth: unsupported operation")

	// ErrHandshakeSetup indicates a failure while constructing a
	// transport-wrapping strategy for a connection attempt. It does not
	// poison the negotiator; subsequent attempts start clean.
	ErrHandshakeSetup = errors.New("auth: handshake setup failed")

	// ErrIdentityResolution indicates that no login identity could be
	// determined: both the configured override and the OS process
	// username were empty. Resolution may be retried; only successful
	// results are cached.
	ErrIdentityResolution = errors.New("auth: identity resolution failed")
)
