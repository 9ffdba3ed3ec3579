package wsconn

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gobwas/ws"

	"github.com/adred-codev/aldrin/internal/transport"
)

// Listener accepts WebSocket connections by running a minimal HTTP
// server whose only route upgrades to WebSocket, handing each upgraded
// net.Conn off over a channel.
type Listener struct {
	ln     net.Listener
	srv    *http.Server
	accept chan net.Conn
	errs   chan error
}

// Listen starts an HTTP server on addr whose sole handler upgrades
// every request to WebSocket.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("wsconn: listen %s: %w", addr, err)
	}
	l := &Listener{
		ln:     ln,
		accept: make(chan net.Conn, 16),
		errs:   make(chan error, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		nc, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		l.accept <- nc
	})
	l.srv = &http.Server{Handler: mux}
	go func() {
		l.errs <- l.srv.Serve(ln)
	}()
	return l, nil
}

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case nc := <-l.accept:
		return newConn(nc, true), nil
	case err := <-l.errs:
		return nil, fmt.Errorf("wsconn: accept: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Listener) Close() error {
	err := l.srv.Close()
	_ = l.ln.Close()
	return err
}

func (l *Listener) Addr() string { return l.ln.Addr().String() }
