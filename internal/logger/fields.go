package logger

// Standard field keys for structured logging across the KeelFS RPC layer.
// Use these keys consistently so logs can be aggregated and queried by
// connection, peer, and authentication outcome.
const (
	// Connection lifecycle
	KeyConnID     = "conn_id"     // Server-assigned connection identifier
	KeyClientAddr = "client_addr" // Remote address of the peer
	KeyServerAddr = "server_addr" // Address a client is connecting to
	KeyActive     = "active"      // Current number of active connections

	// Authentication
	KeyAuthMode  = "auth_mode" // Configured authentication mode (DISABLED, SIMPLE, ...)
	KeyMechanism = "mechanism" // SASL mechanism name (PLAIN)
	KeyUser      = "user"      // Login user presented during the handshake
	KeyProvider  = "provider"  // Custom verification provider name

	// Generic
	KeyError      = "error"
	KeyDurationMS = "duration_ms"
)
