// Package auth is the main entry point for KeelFS RPC authentication.
//
// It decides, from the configured authentication mode, how the raw
// transport between a client and a server is wrapped before any RPC
// traffic flows, and it resolves the login user a client presents during
// the handshake:
//
//   - AuthMode: the closed set of authentication modes (DISABLED, SIMPLE,
//     CUSTOM, KERBEROS) and their configuration parsing
//   - LoginUser: process-wide, resolve-once login identity
//   - Negotiator: maps the mode to a server-side transport factory and to
//     client-side wrapped transports
//   - RegisterProvider: pluggable identity verification for CUSTOM mode
//
// The PLAIN negotiation itself lives in pkg/rpc/sasl; transport framing in
// pkg/rpc/transport. Kerberos is recognized in configuration but rejected
// by every operation.
package auth
