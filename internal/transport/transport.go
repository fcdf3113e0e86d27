// Package transport exposes accepted network connections to a protocol layer
// through the Connection interface.
//
// Event delivery for a connection starts before the protocol layer receives
// it, so that a connection which cannot be processed never reaches it. Inbound
// data and the broken notification are therefore held by the connection until
// the matching delegate is installed, then delivered in arrival order. At most
// one goroutine delivers events for a connection at a time, and no lock is
// held while a delegate runs.
package transport

import (
	"errors"
)

// DataReceivedDelegate receives bytes sent by the peer. Deliveries may split
// or coalesce what the peer wrote; concatenated they equal the byte stream.
type DataReceivedDelegate func(data []byte)

// BrokenDelegate is told once that the connection ended, and whether it ended
// in an orderly way.
type BrokenDelegate func(graceful bool)

// NewConnectionDelegate receives every connection accepted by a transport.
type NewConnectionDelegate func(conn Connection)

// Connection is what a protocol layer needs from one peer connection.
type Connection interface {
	// PeerID identifies the remote end as "A.B.C.D:port".
	PeerID() string

	// SetDataReceivedDelegate replaces the delegate for inbound data. Data
	// that arrived while no delegate was set is delivered to the new one.
	SetDataReceivedDelegate(delegate DataReceivedDelegate)

	// SetConnectionBrokenDelegate replaces the delegate for the end of the
	// connection.
	SetConnectionBrokenDelegate(delegate BrokenDelegate)

	// SendData queues data for the peer. It does not wait for delivery;
	// failures are reported through the broken delegate.
	SendData(data []byte)

	// Break closes the connection. With clean set, data already queued is
	// written before the connection is shut down.
	Break(clean bool)
}

// ServerTransport hands out the connections accepted on a bound port.
type ServerTransport interface {
	// BindNetwork starts accepting on port (0 for an ephemeral port) and
	// calls onNewConnection for each connection. It does not block.
	BindNetwork(port uint16, onNewConnection NewConnectionDelegate) error

	// BoundPort is the port in use, or 0 when unbound.
	BoundPort() uint16

	// ReleaseNetwork stops accepting. Connections already handed out are
	// not affected.
	ReleaseNetwork()
}

var (
	ErrBindFailed   = errors.New("bind network failed")
	ErrAlreadyBound = errors.New("network already bound")
	ErrNilDelegate  = errors.New("new connection delegate is nil")
)
