package auth

import (
	"fmt"
	"os"
	"os/user"
	"strings"
	"sync"

	"github.com/keelfs/keelfs/pkg/config"
)

// User is the login identity a client presents during the RPC handshake.
// A successfully resolved User always has a non-empty name.
type User struct {
	name string
}

// Name returns the user name.
func (u *User) Name() string {
	return u.name
}

func (u *User) String() string {
	return u.name
}

// The login user is resolved once per process and never invalidated;
// changing identity requires a restart. Concurrent first callers serialize
// on loginMu so exactly one resolution commits.
var (
	loginMu   sync.Mutex
	loginUser *User

	// osUsername resolves the OS process username. Replaced in tests.
	osUsername = currentOSUsername
)

// LoginUser returns the process-wide login user, resolving it on first
// call.
//
// Resolution order in SIMPLE and CUSTOM modes: the configured
// security.authentication.username override (trimmed) wins; otherwise the
// OS process username is used. If both are empty the call fails with
// ErrIdentityResolution and may be retried — only successful results are
// cached.
//
// Under DISABLED and KERBEROS modes resolution fails with ErrUnsupported.
func LoginUser(conf *config.Config) (*User, error) {
	loginMu.Lock()
	defer loginMu.Unlock()

	if loginUser != nil {
		return loginUser, nil
	}

	u, err := resolveLogin(conf)
	if err != nil {
		return nil, err
	}

	loginUser = u
	return loginUser, nil
}

// resolveLogin computes the login user for the configured mode. Called
// with loginMu held.
func resolveLogin(conf *config.Config) (*User, error) {
	mode, err := ParseAuthMode(conf.Security.Authentication.Type)
	if err != nil {
		return nil, err
	}

	switch mode {
	case AuthModeDisabled:
		return nil, fmt.Errorf("%w: identity resolution is not meaningful when authentication is disabled", ErrUnsupported)
	case AuthModeKerberos:
		return nil, fmt.Errorf("%w: Kerberos identity resolution is not implemented", ErrUnsupported)
	}

	if name := strings.TrimSpace(conf.Security.Authentication.Username); name != "" {
		return &User{name: name}, nil
	}

	name, err := osUsername()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot determine OS process username: %v", ErrIdentityResolution, err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: no username override configured and OS process username is empty", ErrIdentityResolution)
	}

	return &User{name: name}, nil
}

// currentOSUsername returns the name of the user owning this process.
func currentOSUsername() (string, error) {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username, nil
	}

	// user.Current can fail in minimal environments (static binaries,
	// stripped containers); fall back to the environment.
	for _, key := range []string{"USER", "LOGNAME", "USERNAME"} {
		if name := os.Getenv(key); name != "" {
			return name, nil
		}
	}

	return "", fmt.Errorf("no user database entry and no USER, LOGNAME, or USERNAME in environment")
}
