// Package inproc implements the C3 transport contract as an in-memory
// duplex pipe, for tests.
// No pack library models an in-process connection pair; buffered
// channels are the idiomatic stdlib fit here, and this is explicitly a
// test/demo collaborator rather than a production transport (see
// DESIGN.md).
package inproc

import (
	"context"
	"fmt"

	"github.com/adred-codev/aldrin/internal/core"
	"github.com/adred-codev/aldrin/internal/transport"
)

// Pair returns two connected ends: messages sent on one are received
// on the other.
func Pair() (a, b *Conn) {
	ab := make(chan core.Message, 64)
	ba := make(chan core.Message, 64)
	a = &Conn{send: ab, recv: ba, label: "inproc-a"}
	b = &Conn{send: ba, recv: ab, label: "inproc-b"}
	return a, b
}

type Conn struct {
	send  chan core.Message
	recv  chan core.Message
	label string
	closed bool
}

func (c *Conn) Receive(ctx context.Context) (core.Message, error) {
	select {
	case m, ok := <-c.recv:
		if !ok {
			return nil, fmt.Errorf("inproc: connection closed")
		}
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) Send(ctx context.Context, msg core.Message) error {
	if c.closed {
		return fmt.Errorf("inproc: send on closed connection")
	}
	select {
	case c.send <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush is a no-op: Send already delivers synchronously to the peer's
// channel.
func (c *Conn) Flush(ctx context.Context) error { return nil }

func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

func (c *Conn) RemoteAddr() string { return c.label }

// Listener is an in-memory transport.Listener for tests: Dial creates a
// new connected pair and hands one end to a pending Accept call.
type Listener struct {
	dialCh chan *Conn
	closed chan struct{}
}

func NewListener() *Listener {
	return &Listener{dialCh: make(chan *Conn), closed: make(chan struct{})}
}

// Dial creates a new connection pair, delivers one end to the next
// Accept call, and returns the other end to the caller.
func (l *Listener) Dial(ctx context.Context) (*Conn, error) {
	client, server := Pair()
	select {
	case l.dialCh <- server:
		return client, nil
	case <-l.closed:
		return nil, fmt.Errorf("inproc: listener closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case c := <-l.dialCh:
		return c, nil
	case <-l.closed:
		return nil, fmt.Errorf("inproc: listener closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Listener) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}

func (l *Listener) Addr() string { return "inproc" }
