// Package transport defines the transport contract: ordered, reliable
// exchange of whole core.Message values between one broker and one
// client session. Concrete adapters live in wsconn, natsconn, and
// inproc.
package transport

import (
	"context"

	"github.com/adred-codev/aldrin/internal/core"
)

// Conn is one end of a transport connection. Receive MUST yield
// messages in the order the peer sent them. Send followed by Flush
// makes a message visible to the peer; adapters that have no internal
// write buffering may make Flush a no-op.
type Conn interface {
	Receive(ctx context.Context) (core.Message, error)
	Send(ctx context.Context, msg core.Message) error
	Flush(ctx context.Context) error
	Close() error

	// RemoteAddr identifies the peer for logging/metrics; adapters that
	// have no notion of a network address (inproc) return a synthetic
	// label.
	RemoteAddr() string
}

// Listener accepts incoming Conns. The broker owns exactly one
// Listener per configured transport.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
	Addr() string
}
