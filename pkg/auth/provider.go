package auth

import (
	"fmt"
	"sort"
	"sync"

	"github.com/keelfs/keelfs/pkg/config"
	"github.com/keelfs/keelfs/pkg/rpc/sasl"
)

// VerifierConstructor builds a server-side identity verifier from the
// configuration snapshot. Constructors run once per server startup, when
// the CUSTOM-mode transport factory is built.
type VerifierConstructor func(conf *config.Config) (sasl.Verifier, error)

var (
	providersMu sync.RWMutex
	providers   = make(map[string]VerifierConstructor)
)

// RegisterProvider registers a named verification provider for CUSTOM
// mode. The name is matched against the
// security.authentication.custom_provider setting. Registering a duplicate
// name panics: provider registration is a process-startup programming
// concern, not a runtime condition.
func RegisterProvider(name string, ctor VerifierConstructor) {
	if name == "" || ctor == nil {
		panic("auth: RegisterProvider requires a name and a constructor")
	}

	providersMu.Lock()
	defer providersMu.Unlock()

	if _, dup := providers[name]; dup {
		panic(fmt.Sprintf("auth: provider %q registered twice", name))
	}
	providers[name] = ctor
}

// Providers returns the registered provider names, sorted. Useful for
// diagnostics and error messages.
func Providers() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newCustomVerifier resolves the configured provider and constructs its
// verifier. An unknown or unset provider name is ErrUnsupported; a
// constructor failure is ErrHandshakeSetup.
func newCustomVerifier(conf *config.Config) (sasl.Verifier, error) {
	name := conf.Security.Authentication.CustomProvider
	if name == "" {
		return nil, fmt.Errorf("%w: CUSTOM mode requires %s to name a provider", ErrUnsupported, config.KeyAuthenticationProvider)
	}

	providersMu.RLock()
	ctor, ok := providers[name]
	providersMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: authentication provider %q is not registered", ErrUnsupported, name)
	}

	verifier, err := ctor(conf)
	if err != nil {
		return nil, fmt.Errorf("%w: provider %q: %v", ErrHandshakeSetup, name, err)
	}
	return verifier, nil
}
