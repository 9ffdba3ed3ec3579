package client

import (
	"context"

	"github.com/adred-codev/aldrin/internal/core"
)

// Service is a handle to a service this session created (the callee
// side) or merely knows the cookie of (the caller side — obtained via
// a discoverer or out-of-band, see discoverer.go).
type Service struct {
	h  Handle
	id core.ServiceId
}

// ServiceFromCookie wraps a service cookie learned some other way (bus
// listener match, discoverer) into a caller-side Service handle able
// to invoke functions and subscribe to events, without owning it.
func ServiceFromCookie(h Handle, id core.ServiceId) Service {
	return Service{h: h, id: id}
}

func (s Service) Id() core.ServiceId { return s.id }

// Destroy removes the service. Only meaningful for services this
// session owns; the broker rejects it otherwise with InvalidService
// (not distinguished from "someone else's service" at this layer).
func (s Service) Destroy(ctx context.Context) error {
	reply := make(chan error, 1)
	var serial core.Serial
	s.h.c.submit(func(c *Client) {
		serial = c.nextSerial()
		c.pendingDestroyService[serial] = reply
		c.conn.Send(ctx, core.DestroyServiceMessage{Serial: serial, Cookie: s.id.Cookie})
		c.conn.Flush(ctx)
	})

	select {
	case err := <-reply:
		if err == nil {
			s.h.c.submit(func(c *Client) {
				if ch, ok := c.incomingCalls[s.id.Cookie]; ok {
					close(ch)
					delete(c.incomingCalls, s.id.Cookie)
				}
			})
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.h.Done():
		return core.ErrShutdown
	}
}

// QueryInfo asks the broker for the service's version and
// introspection type id. The broker answers with its own configured
// protocol minor version and a zero type id.
func (s Service) QueryInfo(ctx context.Context) (version uint32, typeId [16]byte, err error) {
	reply := make(chan queryServiceInfoResult, 1)
	var serial core.Serial
	s.h.c.submit(func(c *Client) {
		serial = c.nextSerial()
		c.pendingQueryServiceInfo[serial] = reply
		c.conn.Send(ctx, core.QueryServiceInfoMessage{Serial: serial, Cookie: s.id.Cookie})
		c.conn.Flush(ctx)
	})

	select {
	case res := <-reply:
		return res.version, res.typeId, res.err
	case <-ctx.Done():
		return 0, [16]byte{}, ctx.Err()
	case <-s.h.Done():
		return 0, [16]byte{}, core.ErrShutdown
	}
}

// Call invokes function on the service and blocks for its reply; if
// ctx is done first, the call is aborted. Use CallAsync for a
// non-blocking form that aborts when its returned cancel func is
// called.
func (s Service) Call(ctx context.Context, function uint32, args core.Value) (core.Value, error) {
	reply, cancel := s.CallAsync(ctx, function, args)
	defer cancel()
	select {
	case r := <-reply:
		switch r.Result {
		case core.CallFunctionOk:
			return r.Value, nil
		case core.CallFunctionErr:
			return core.Value{}, &ApplicationError{Value: r.Value}
		default:
			return core.Value{}, callError(r.Result)
		}
	case <-ctx.Done():
		return core.Value{}, ctx.Err()
	case <-s.h.Done():
		return core.Value{}, core.ErrShutdown
	}
}

// ApplicationError wraps a CallFunctionErr reply's payload: the callee
// answered the call, but with an application-level error value rather
// than a result.
type ApplicationError struct {
	Value core.Value
}

func (e *ApplicationError) Error() string { return "application error" }

// CallAsync invokes function and returns a channel that receives
// exactly one reply. The returned cancel func sends AbortFunctionCall
// to the broker if called before a reply has arrived.
func (s Service) CallAsync(ctx context.Context, function uint32, args core.Value) (<-chan core.CallFunctionReplyMessage, func()) {
	reply := make(chan core.CallFunctionReplyMessage, 1)
	var serial core.Serial
	s.h.c.submit(func(c *Client) {
		serial = c.nextSerial()
		c.pendingCalls[serial] = reply
		c.conn.Send(ctx, core.CallFunctionMessage{Serial: serial, Service: s.id, Function: function, Args: args})
		c.conn.Flush(ctx)
	})

	cancel := func() {
		s.h.c.submit(func(c *Client) {
			if _, ok := c.pendingCalls[serial]; ok {
				delete(c.pendingCalls, serial)
				c.conn.Send(ctx, core.AbortFunctionCallMessage{Serial: serial})
				c.conn.Flush(ctx)
			}
		})
	}
	return reply, cancel
}

func callError(result core.CallFunctionResultKind) error {
	switch result {
	case core.CallFunctionAborted:
		return core.ErrShutdown
	case core.CallFunctionInvalidService:
		return core.ErrInvalidService
	case core.CallFunctionInvalidFunction, core.CallFunctionInvalidArgs:
		return core.ErrInvalidObject
	default:
		return core.ErrInvalidObject
	}
}

// Serve registers this session as the callee for the service and
// returns a channel of incoming calls to answer; each one must be
// answered exactly once via Call.Reply. The channel closes when
// Destroy on this service succeeds, or when this session receives
// ServiceDestroyed for it (the broker sends that only to connections
// subscribed to one of the service's events); destroying the owning
// object does not close it.
func (s Service) Serve() <-chan IncomingCall {
	out := make(chan IncomingCall, 16)
	s.h.c.submit(func(c *Client) {
		raw := make(chan core.CallFunctionMessage, 16)
		c.incomingCalls[s.id.Cookie] = raw
		go func() {
			for m := range raw {
				out <- IncomingCall{h: s.h, serial: m.Serial, Function: m.Function, Args: m.Args}
			}
			close(out)
		}()
	})
	return out
}

// IncomingCall is one CallFunction addressed to a service this session
// serves.
type IncomingCall struct {
	h        Handle
	serial   core.Serial
	Function uint32
	Args     core.Value
}

// Reply answers the call. result must be CallFunctionOk or
// CallFunctionErr; value carries the return payload for either.
func (ic IncomingCall) Reply(ctx context.Context, result core.CallFunctionResultKind, value core.Value) {
	ic.h.c.submit(func(c *Client) {
		c.conn.Send(ctx, core.CallFunctionReplyMessage{Serial: ic.serial, Result: result, Value: value})
		c.conn.Flush(ctx)
	})
}

// SubscribeEvent subscribes to event on the service and returns a
// channel receiving each emitted payload.
func (s Service) SubscribeEvent(ctx context.Context, event uint32) (<-chan core.Value, error) {
	reply := make(chan error, 1)
	sink := make(chan core.Value, 16)
	var serial core.Serial
	s.h.c.submit(func(c *Client) {
		serial = c.nextSerial()
		c.pendingSubscribeEvent[serial] = reply
		if c.eventSubs[s.id.Cookie] == nil {
			c.eventSubs[s.id.Cookie] = make(map[uint32]chan core.Value)
		}
		c.eventSubs[s.id.Cookie][event] = sink
		c.conn.Send(ctx, core.SubscribeEventMessage{Serial: serial, Service: s.id, Event: event})
		c.conn.Flush(ctx)
	})

	select {
	case err := <-reply:
		if err != nil {
			return nil, err
		}
		return sink, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.h.Done():
		return nil, core.ErrShutdown
	}
}

// UnsubscribeEvent cancels a prior SubscribeEvent.
func (s Service) UnsubscribeEvent(ctx context.Context, event uint32) {
	s.h.c.submit(func(c *Client) {
		if evs, ok := c.eventSubs[s.id.Cookie]; ok {
			if sink, ok := evs[event]; ok {
				close(sink)
				delete(evs, event)
			}
		}
		c.conn.Send(ctx, core.UnsubscribeEventMessage{Service: s.id, Event: event})
		c.conn.Flush(ctx)
	})
}

// EmitEvent publishes an event on this service; only meaningful for
// services this session owns.
func (s Service) EmitEvent(ctx context.Context, event uint32, args core.Value) {
	s.h.c.submit(func(c *Client) {
		c.conn.Send(ctx, core.EmitEventMessage{Service: s.id, Event: event, Args: args})
		c.conn.Flush(ctx)
	})
}
