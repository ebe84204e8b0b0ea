// Package transport defines the byte-channel abstraction used by the KeelFS
// RPC layer, together with the concrete transports every connection is built
// from: a TCP socket transport and a length-delimited framed transport.
//
// A Transport is a bidirectional byte channel between a client and a server.
// Transports compose: the authentication layer wraps a raw socket transport
// in framing or SASL negotiation before the RPC machinery ever sees it.
// Wrapping is expressed by Factory, which the RPC server invokes once per
// accepted connection.
package transport

import (
	"errors"
	"io"
)

// Common transport errors.
var (
	// ErrNotOpen indicates a read, write, or flush on a transport whose
	// Open has not been called or whose connection has been closed.
	ErrNotOpen = errors.New("transport: not open")

	// ErrFrameTooLarge indicates an incoming frame whose declared length
	// exceeds the configured maximum. Oversized frames are a protocol
	// violation; the connection should be dropped.
	ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")
)

// Transport is an abstract bidirectional byte channel.
//
// Writes may be buffered by the implementation; Flush pushes any buffered
// bytes to the peer. Open establishes the underlying connection and, for
// negotiating transports, performs the handshake. A Transport is not safe
// for concurrent use; the RPC layer serializes access per connection.
type Transport interface {
	io.ReadWriteCloser

	// Open establishes the underlying connection. Calling Open on an
	// already-open transport is an error.
	Open() error

	// IsOpen reports whether the transport is ready for I/O.
	IsOpen() bool

	// Flush writes any buffered data to the peer.
	Flush() error
}

// Factory produces a ready-to-use transport from an established base
// transport. The RPC server holds one Factory for its lifetime and applies
// it to every accepted connection.
type Factory interface {
	Wrap(base Transport) (Transport, error)
}
