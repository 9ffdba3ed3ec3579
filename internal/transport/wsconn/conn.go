// Package wsconn implements the transport contract over WebSocket,
// using the gobwas/ws low-level frame API to exchange binary
// core.Message frames.
package wsconn

import (
	"context"
	"fmt"
	"net"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/adred-codev/aldrin/internal/core"
)

// Conn is one WebSocket connection carrying binary-framed Aldrin
// messages. Each frame is exactly one core.EncodeMessage result.
type Conn struct {
	nc     net.Conn
	server bool // true if we called ws.UpgradeHTTP (server side)
}

func newConn(nc net.Conn, server bool) *Conn {
	return &Conn{nc: nc, server: server}
}

// Dial connects to addr as a client, performing the WebSocket upgrade
// handshake before returning.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	nc, _, _, err := ws.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("wsconn: dial %s: %w", addr, err)
	}
	return newConn(nc, false), nil
}

func (c *Conn) Receive(ctx context.Context) (core.Message, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.nc.SetReadDeadline(deadline)
	}
	var (
		data []byte
		op   ws.OpCode
		err  error
	)
	if c.server {
		data, op, err = wsutil.ReadClientData(c.nc)
	} else {
		data, op, err = wsutil.ReadServerData(c.nc)
	}
	if err != nil {
		return nil, fmt.Errorf("wsconn: receive: %w", err)
	}
	if op == ws.OpClose {
		return nil, fmt.Errorf("wsconn: peer closed connection")
	}
	if op != ws.OpBinary {
		return nil, fmt.Errorf("wsconn: unexpected frame opcode %v, want binary", op)
	}
	msg, err := core.DecodeMessage(data)
	if err != nil {
		return nil, fmt.Errorf("wsconn: decode: %w", err)
	}
	return msg, nil
}

func (c *Conn) Send(ctx context.Context, msg core.Message) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.nc.SetWriteDeadline(deadline)
	}
	buf, err := core.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("wsconn: encode: %w", err)
	}
	if c.server {
		err = wsutil.WriteServerMessage(c.nc, ws.OpBinary, buf)
	} else {
		err = wsutil.WriteClientMessage(c.nc, ws.OpBinary, buf)
	}
	if err != nil {
		return fmt.Errorf("wsconn: send: %w", err)
	}
	return nil
}

// Flush is a no-op: each Send already performs one unbuffered write.
func (c *Conn) Flush(ctx context.Context) error { return nil }

func (c *Conn) Close() error { return c.nc.Close() }

func (c *Conn) RemoteAddr() string { return c.nc.RemoteAddr().String() }
