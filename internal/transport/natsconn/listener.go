package natsconn

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/adred-codev/aldrin/internal/transport"
)

// Listener accepts connections on a rendezvous subject: each inbound
// request there names a prospective client's inbox; the listener mints
// a fresh broker-side subject for that connection, replies with it,
// and hands the resulting Conn to Accept's caller.
type Listener struct {
	nc      *nats.Conn
	subject string
	sub     *nats.Subscription
	conns   chan *Conn
	errs    chan error
}

// Listen subscribes to connectSubject on an already-connected
// nats.Conn; connection establishment and auth are the caller's
// concern, not the listener's.
func Listen(nc *nats.Conn, connectSubject string) (*Listener, error) {
	l := &Listener{
		nc:      nc,
		subject: connectSubject,
		conns:   make(chan *Conn, 16),
		errs:    make(chan error, 1),
	}
	sub, err := nc.Subscribe(connectSubject, l.handleConnect)
	if err != nil {
		return nil, fmt.Errorf("natsconn: subscribe %s: %w", connectSubject, err)
	}
	l.sub = sub
	return l, nil
}

func (l *Listener) handleConnect(m *nats.Msg) {
	clientInbox := string(m.Data)
	brokerSubject := nats.NewInbox()
	conn, err := newConn(l.nc, brokerSubject, clientInbox, clientInbox)
	if err != nil {
		select {
		case l.errs <- err:
		default:
		}
		return
	}
	if err := m.Respond([]byte(brokerSubject)); err != nil {
		_ = conn.Close()
		return
	}
	l.conns <- conn
}

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case err := <-l.errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Listener) Close() error {
	return l.sub.Unsubscribe()
}

func (l *Listener) Addr() string { return l.subject }
