// Package natsconn implements the transport contract over NATS,
// modeling each Aldrin connection as a dedicated pair of subjects (one
// per direction) carried over a shared nats.Conn.
package natsconn

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/adred-codev/aldrin/internal/core"
)

// Conn is one Aldrin connection multiplexed over NATS: inbound
// messages arrive as a subscription on recvSubject, outbound messages
// are published to sendSubject.
type Conn struct {
	nc   *nats.Conn
	sub  *nats.Subscription
	msgs chan *nats.Msg

	sendSubject string
	remote      string
}

func newConn(nc *nats.Conn, recvSubject, sendSubject, remote string) (*Conn, error) {
	c := &Conn{
		nc:          nc,
		msgs:        make(chan *nats.Msg, 256),
		sendSubject: sendSubject,
		remote:      remote,
	}
	sub, err := nc.ChanSubscribe(recvSubject, c.msgs)
	if err != nil {
		return nil, fmt.Errorf("natsconn: subscribe %s: %w", recvSubject, err)
	}
	c.sub = sub
	return c, nil
}

// Dial connects a client to a broker listening at connectSubject.
// Handshake: the client publishes its own fresh inbox subject on
// connectSubject and waits for the broker's reply subject; afterwards
// the two exchange framed messages on that dedicated subject pair,
// mirroring the request-reply bootstrap pattern nats.go documents for
// establishing a private conversation out of a shared rendezvous
// subject.
func Dial(ctx context.Context, nc *nats.Conn, connectSubject string) (*Conn, error) {
	clientInbox := nats.NewInbox()
	sub, err := nc.SubscribeSync(clientInbox)
	if err != nil {
		return nil, fmt.Errorf("natsconn: subscribe %s: %w", clientInbox, err)
	}
	defer sub.Unsubscribe()

	if err := nc.PublishRequest(connectSubject, clientInbox, []byte(clientInbox)); err != nil {
		return nil, fmt.Errorf("natsconn: publish connect: %w", err)
	}
	reply, err := sub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("natsconn: awaiting broker handshake: %w", err)
	}
	brokerSubject := string(reply.Data)
	return newConn(nc, clientInbox, brokerSubject, brokerSubject)
}

func (c *Conn) Receive(ctx context.Context) (core.Message, error) {
	select {
	case m := <-c.msgs:
		msg, err := core.DecodeMessage(m.Data)
		if err != nil {
			return nil, fmt.Errorf("natsconn: decode: %w", err)
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) Send(ctx context.Context, msg core.Message) error {
	buf, err := core.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("natsconn: encode: %w", err)
	}
	if err := c.nc.Publish(c.sendSubject, buf); err != nil {
		return fmt.Errorf("natsconn: publish: %w", err)
	}
	return nil
}

// Flush forces delivery of buffered outbound publishes, using
// nats.Conn's own round-trip flush rather than relying on its
// background flusher.
func (c *Conn) Flush(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		return c.nc.FlushTimeout(time.Until(deadline))
	}
	return c.nc.Flush()
}

func (c *Conn) Close() error {
	return c.sub.Unsubscribe()
}

func (c *Conn) RemoteAddr() string { return c.remote }
