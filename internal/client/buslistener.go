// buslistener.go implements the client-side half of C8 (spec.md
// §4.6): a filtering subscription created on the broker, configured
// while stopped, then started with a scope. Events land on a channel
// until the listener is destroyed or the session shuts down.
package client

import (
	"context"

	"github.com/adred-codev/aldrin/internal/core"
)

// busListenerState is this session's bookkeeping for one bus listener
// it created; events and the current-enumeration-finished signal are
// delivered to the channels here.
type busListenerState struct {
	events   chan core.BusEvent
	finished chan struct{}
}

// BusListener is a handle to a bus listener this session created.
type BusListener struct {
	h      Handle
	cookie core.BusListenerCookie
}

// CreateBusListener allocates a new, stopped bus listener.
func (h Handle) CreateBusListener(ctx context.Context) (BusListener, error) {
	reply := make(chan core.BusListenerCookie, 1)
	var serial core.Serial
	h.c.submit(func(c *Client) {
		serial = c.nextSerial()
		c.pendingCreateBusListener[serial] = reply
		c.conn.Send(ctx, core.CreateBusListenerMessage{Serial: serial})
		c.conn.Flush(ctx)
	})

	select {
	case cookie, ok := <-reply:
		if !ok {
			return BusListener{}, core.ErrShutdown
		}
		h.c.submit(func(c *Client) {
			c.busListeners[cookie] = &busListenerState{
				events:   make(chan core.BusEvent, 64),
				finished: make(chan struct{}),
			}
		})
		return BusListener{h: h, cookie: cookie}, nil
	case <-ctx.Done():
		return BusListener{}, ctx.Err()
	case <-h.Done():
		return BusListener{}, core.ErrShutdown
	}
}

// AddFilter adds a match filter. Only legal while stopped.
func (bl BusListener) AddFilter(ctx context.Context, f core.BusListenerFilter) {
	bl.h.c.submit(func(c *Client) {
		c.conn.Send(ctx, core.AddBusListenerFilterMessage{Cookie: bl.cookie, Filter: f})
		c.conn.Flush(ctx)
	})
}

// RemoveFilter removes a previously added filter. Only legal while
// stopped.
func (bl BusListener) RemoveFilter(ctx context.Context, f core.BusListenerFilter) {
	bl.h.c.submit(func(c *Client) {
		c.conn.Send(ctx, core.RemoveBusListenerFilterMessage{Cookie: bl.cookie, Filter: f})
		c.conn.Flush(ctx)
	})
}

// ClearFilters removes every filter. Only legal while stopped.
func (bl BusListener) ClearFilters(ctx context.Context) {
	bl.h.c.submit(func(c *Client) {
		c.conn.Send(ctx, core.ClearBusListenerFiltersMessage{Cookie: bl.cookie})
		c.conn.Flush(ctx)
	})
}

// Start begins delivering matches for scope. For Current/All, prior
// matches are enumerated once and Finished() closes after the last one.
func (bl BusListener) Start(ctx context.Context, scope core.BusListenerScope) error {
	reply := make(chan error, 1)
	var serial core.Serial
	bl.h.c.submit(func(c *Client) {
		serial = c.nextSerial()
		c.pendingStartBusListener[serial] = reply
		c.conn.Send(ctx, core.StartBusListenerMessage{Serial: serial, Cookie: bl.cookie, Scope: scope})
		c.conn.Flush(ctx)
	})

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-bl.h.Done():
		return core.ErrShutdown
	}
}

// Stop pauses delivery; filters may be mutated again once stopped.
func (bl BusListener) Stop(ctx context.Context) error {
	reply := make(chan error, 1)
	var serial core.Serial
	bl.h.c.submit(func(c *Client) {
		serial = c.nextSerial()
		c.pendingStopBusListener[serial] = reply
		c.conn.Send(ctx, core.StopBusListenerMessage{Serial: serial, Cookie: bl.cookie})
		c.conn.Flush(ctx)
	})

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-bl.h.Done():
		return core.ErrShutdown
	}
}

// Events returns the channel on which topology events matching this
// listener's filters arrive.
func (bl BusListener) Events() <-chan core.BusEvent {
	var ch chan core.BusEvent
	done := make(chan struct{})
	bl.h.c.submit(func(c *Client) {
		if st, ok := c.busListeners[bl.cookie]; ok {
			ch = st.events
		}
		close(done)
	})
	<-done
	return ch
}

// Finished returns a channel closed once the one-shot enumeration of
// pre-existing matches (Current or All scope) has completed.
func (bl BusListener) Finished() <-chan struct{} {
	var ch chan struct{}
	done := make(chan struct{})
	bl.h.c.submit(func(c *Client) {
		if st, ok := c.busListeners[bl.cookie]; ok {
			ch = st.finished
		}
		close(done)
	})
	<-done
	return ch
}

// Destroy removes the bus listener.
func (bl BusListener) Destroy(ctx context.Context) error {
	reply := make(chan error, 1)
	var serial core.Serial
	bl.h.c.submit(func(c *Client) {
		serial = c.nextSerial()
		c.pendingDestroyBusListener[serial] = reply
		c.conn.Send(ctx, core.DestroyBusListenerMessage{Serial: serial, Cookie: bl.cookie})
		c.conn.Flush(ctx)
	})

	select {
	case err := <-reply:
		if err == nil {
			bl.h.c.submit(func(c *Client) {
				if st, ok := c.busListeners[bl.cookie]; ok {
					close(st.events)
				}
				delete(c.busListeners, bl.cookie)
			})
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-bl.h.Done():
		return core.ErrShutdown
	}
}

func (c *Client) handleBusListenerCurrentFinished(m core.BusListenerCurrentFinishedMessage) {
	if st, ok := c.busListeners[m.Cookie]; ok {
		close(st.finished)
	}
}

func (c *Client) handleEmitBusEvent(m core.EmitBusEventMessage) {
	st, ok := c.busListeners[m.Cookie]
	if !ok {
		return
	}
	select {
	case st.events <- m.Event:
	default:
	}
}
