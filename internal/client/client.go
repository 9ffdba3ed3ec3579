// Package client implements the Aldrin client session: a single task
// that owns all mutable session state, driven by a task loop analogous
// to the broker's event loop in internal/broker. Handles talk to the
// session by submitting closures on a buffered request queue instead
// of taking a lock, so the session's maps are touched only by the loop
// goroutine — no mutex is needed anywhere in this package.
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/adred-codev/aldrin/internal/core"
	"github.com/adred-codev/aldrin/internal/transport"
	"github.com/rs/zerolog"
)

// request is a closure the session loop applies to its own state,
// submitted by a Handle instead of a locked method call.
type request func(c *Client)

// Client is the task-owned session. Obtain one via Connect, then call
// Run in its own goroutine. Talk to it through the Handle Connect
// returns, or further Handles cloned from it.
type Client struct {
	conn   transport.Conn
	logger zerolog.Logger

	requests chan request
	stopCh   chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}

	serials *core.SerialAllocator

	pendingCreateObject       map[core.Serial]chan createObjectResult
	pendingDestroyObject      map[core.Serial]chan error
	pendingCreateService      map[core.Serial]chan createServiceResult
	pendingDestroyService     map[core.Serial]chan error
	pendingQueryServiceInfo   map[core.Serial]chan queryServiceInfoResult
	pendingSubscribeEvent     map[core.Serial]chan error
	pendingCreateChannel      map[core.Serial]chan core.ChannelCookie
	pendingClaimChannelEnd    map[core.Serial]chan claimChannelEndResult
	pendingCloseChannelEnd    map[core.Serial]chan error
	pendingCreateBusListener  map[core.Serial]chan core.BusListenerCookie
	pendingDestroyBusListener map[core.Serial]chan error
	pendingStartBusListener   map[core.Serial]chan error
	pendingStopBusListener    map[core.Serial]chan error
	pendingSync               map[core.Serial]chan struct{}
	pendingCalls              map[core.Serial]chan core.CallFunctionReplyMessage

	// eventSubs holds the local dispatch sinks for events this session
	// subscribed to, keyed by (service, event id). EmitEvent messages
	// the broker forwards for a subscription land here.
	eventSubs map[core.ServiceCookie]map[uint32]chan core.Value

	// incomingCalls delivers CallFunction messages addressed to
	// services this session owns to whichever goroutine is serving
	// that service; see service.go's Service.Serve.
	incomingCalls map[core.ServiceCookie]chan core.CallFunctionMessage

	channels map[core.ChannelCookie]*channelEndpoint

	busListeners map[core.BusListenerCookie]*busListenerState

	// handleCount is the number of live Handles, including the one the
	// session holds on itself; shutdown is requested automatically when
	// it falls back to 1.
	handleCount int64

	negotiatedMinor uint32
	runErr          error
}

type createObjectResult struct {
	cookie core.ObjectCookie
	err    error
}

type createServiceResult struct {
	cookie core.ServiceCookie
	err    error
}

type queryServiceInfoResult struct {
	version uint32
	typeId  [16]byte
	err     error
}

type claimChannelEndResult struct {
	capacity uint32
	err      error
}

func newClient(conn transport.Conn, logger zerolog.Logger) *Client {
	return &Client{
		conn:                      conn,
		logger:                    logger,
		requests:                  make(chan request, 64),
		stopCh:                    make(chan struct{}),
		stopped:                   make(chan struct{}),
		serials:                   core.NewSerialAllocator(),
		pendingCreateObject:       make(map[core.Serial]chan createObjectResult),
		pendingDestroyObject:      make(map[core.Serial]chan error),
		pendingCreateService:      make(map[core.Serial]chan createServiceResult),
		pendingDestroyService:     make(map[core.Serial]chan error),
		pendingQueryServiceInfo:   make(map[core.Serial]chan queryServiceInfoResult),
		pendingSubscribeEvent:     make(map[core.Serial]chan error),
		pendingCreateChannel:      make(map[core.Serial]chan core.ChannelCookie),
		pendingClaimChannelEnd:    make(map[core.Serial]chan claimChannelEndResult),
		pendingCloseChannelEnd:    make(map[core.Serial]chan error),
		pendingCreateBusListener:  make(map[core.Serial]chan core.BusListenerCookie),
		pendingDestroyBusListener: make(map[core.Serial]chan error),
		pendingStartBusListener:   make(map[core.Serial]chan error),
		pendingStopBusListener:    make(map[core.Serial]chan error),
		pendingSync:               make(map[core.Serial]chan struct{}),
		pendingCalls:              make(map[core.Serial]chan core.CallFunctionReplyMessage),
		eventSubs:                 make(map[core.ServiceCookie]map[uint32]chan core.Value),
		incomingCalls:             make(map[core.ServiceCookie]chan core.CallFunctionMessage),
		channels:                  make(map[core.ChannelCookie]*channelEndpoint),
		busListeners:              make(map[core.BusListenerCookie]*busListenerState),
		handleCount:               2, // the session's own reference plus the Handle Connect returns
	}
}

// Connect performs the Connect/ConnectReply handshake over conn and
// returns a session ready for Run plus the Handle the caller owns.
func Connect(ctx context.Context, conn transport.Conn, major, minor uint32, userData core.Value, logger zerolog.Logger) (*Client, Handle, error) {
	if err := conn.Send(ctx, core.ConnectMessage{Major: major, Minor: minor, UserData: userData}); err != nil {
		return nil, Handle{}, fmt.Errorf("client: send connect: %w", err)
	}
	if err := conn.Flush(ctx); err != nil {
		return nil, Handle{}, fmt.Errorf("client: flush connect: %w", err)
	}
	msg, err := conn.Receive(ctx)
	if err != nil {
		return nil, Handle{}, fmt.Errorf("client: receive connect reply: %w", err)
	}
	reply, ok := msg.(core.ConnectReplyMessage)
	if !ok {
		return nil, Handle{}, fmt.Errorf("client: expected ConnectReply, got %T", msg)
	}
	switch reply.Result {
	case core.ConnectOk:
	case core.ConnectRejected:
		return nil, Handle{}, fmt.Errorf("client: connection rejected by broker")
	case core.ConnectIncompatibleVersion:
		return nil, Handle{}, fmt.Errorf("client: incompatible protocol version")
	default:
		return nil, Handle{}, fmt.Errorf("client: unknown connect result %d", reply.Result)
	}

	c := newClient(conn, logger)
	c.negotiatedMinor = reply.NegotiatedMinor
	return c, Handle{c: c}, nil
}

// Run services the session until shutdown is requested (explicitly, or
// by the last external Handle being closed) or ctx is canceled. It
// blocks and must run on its own goroutine.
func (c *Client) Run(ctx context.Context) error {
	inbound := make(chan core.Message, 64)
	recvErr := make(chan error, 1)
	go func() {
		for {
			msg, err := c.conn.Receive(ctx)
			if err != nil {
				recvErr <- err
				return
			}
			select {
			case inbound <- msg:
			case <-c.stopCh:
				return
			}
		}
	}()

	defer close(c.stopped)
	for {
		select {
		case req := <-c.requests:
			req(c)
		case msg := <-inbound:
			if err := c.handleMessage(msg); err != nil {
				c.logger.Warn().Err(err).Msg("client: message handling failed")
			}
		case err := <-recvErr:
			c.runErr = err
			c.failAllPending(err)
			return err
		case <-c.stopCh:
			c.shutdown(ctx)
			return nil
		case <-ctx.Done():
			c.shutdown(ctx)
			return ctx.Err()
		}
	}
}

// submit enqueues req and blocks until the session loop has applied
// it, unless the session has already stopped.
func (c *Client) submit(req request) {
	done := make(chan struct{})
	wrapped := func(c *Client) {
		req(c)
		close(done)
	}
	select {
	case c.requests <- wrapped:
	case <-c.stopped:
		return
	}
	select {
	case <-done:
	case <-c.stopped:
	}
}

func (c *Client) nextSerial() core.Serial { return c.serials.Alloc() }

func (c *Client) shutdown(ctx context.Context) {
	c.conn.Send(ctx, core.ShutdownMessage{})
	c.conn.Flush(ctx)
	c.conn.Close()
	c.failAllPending(core.ErrShutdown)
}

func (c *Client) failAllPending(err error) {
	for s, ch := range c.pendingCreateObject {
		ch <- createObjectResult{err: err}
		delete(c.pendingCreateObject, s)
	}
	for s, ch := range c.pendingDestroyObject {
		ch <- err
		delete(c.pendingDestroyObject, s)
	}
	for s, ch := range c.pendingCreateService {
		ch <- createServiceResult{err: err}
		delete(c.pendingCreateService, s)
	}
	for s, ch := range c.pendingDestroyService {
		ch <- err
		delete(c.pendingDestroyService, s)
	}
	for s, ch := range c.pendingQueryServiceInfo {
		ch <- queryServiceInfoResult{err: err}
		delete(c.pendingQueryServiceInfo, s)
	}
	for s, ch := range c.pendingSubscribeEvent {
		ch <- err
		delete(c.pendingSubscribeEvent, s)
	}
	for s, ch := range c.pendingCreateChannel {
		close(ch)
		delete(c.pendingCreateChannel, s)
	}
	for s, ch := range c.pendingClaimChannelEnd {
		ch <- claimChannelEndResult{err: err}
		delete(c.pendingClaimChannelEnd, s)
	}
	for s, ch := range c.pendingCloseChannelEnd {
		ch <- err
		delete(c.pendingCloseChannelEnd, s)
	}
	for s, ch := range c.pendingCreateBusListener {
		close(ch)
		delete(c.pendingCreateBusListener, s)
	}
	for s, ch := range c.pendingDestroyBusListener {
		ch <- err
		delete(c.pendingDestroyBusListener, s)
	}
	for s, ch := range c.pendingStartBusListener {
		ch <- err
		delete(c.pendingStartBusListener, s)
	}
	for s, ch := range c.pendingStopBusListener {
		ch <- err
		delete(c.pendingStopBusListener, s)
	}
	for s, ch := range c.pendingSync {
		close(ch)
		delete(c.pendingSync, s)
	}
	for s, ch := range c.pendingCalls {
		ch <- core.CallFunctionReplyMessage{Result: core.CallFunctionAborted}
		delete(c.pendingCalls, s)
	}
}

// handleMessage dispatches one message received from the broker,
// completing whichever pending reply sink or local dispatch sink it
// answers.
func (c *Client) handleMessage(msg core.Message) error {
	switch m := msg.(type) {

	case core.CreateObjectReplyMessage:
		if ch, ok := c.pendingCreateObject[m.Serial]; ok {
			delete(c.pendingCreateObject, m.Serial)
			if m.Result == core.CreateObjectOk {
				ch <- createObjectResult{cookie: m.Cookie}
			} else {
				ch <- createObjectResult{err: core.ErrDuplicateObject}
			}
		}

	case core.DestroyObjectReplyMessage:
		if ch, ok := c.pendingDestroyObject[m.Serial]; ok {
			delete(c.pendingDestroyObject, m.Serial)
			if m.Result == core.DestroyObjectOk {
				ch <- nil
			} else {
				ch <- core.ErrInvalidObject
			}
		}

	case core.CreateServiceReplyMessage:
		if ch, ok := c.pendingCreateService[m.Serial]; ok {
			delete(c.pendingCreateService, m.Serial)
			switch m.Result {
			case core.CreateServiceOk:
				ch <- createServiceResult{cookie: m.Cookie}
			case core.CreateServiceInvalidObject:
				ch <- createServiceResult{err: core.ErrInvalidObject}
			default:
				ch <- createServiceResult{err: core.ErrDuplicateService}
			}
		}

	case core.DestroyServiceReplyMessage:
		if ch, ok := c.pendingDestroyService[m.Serial]; ok {
			delete(c.pendingDestroyService, m.Serial)
			if m.Result == core.DestroyServiceOk {
				ch <- nil
			} else {
				ch <- core.ErrInvalidService
			}
		}

	case core.ServiceDestroyedMessage:
		if ch, ok := c.incomingCalls[m.Cookie]; ok {
			close(ch)
			delete(c.incomingCalls, m.Cookie)
		}
		for _, sink := range c.eventSubs[m.Cookie] {
			close(sink)
		}
		delete(c.eventSubs, m.Cookie)

	case core.QueryServiceInfoReplyMessage:
		if ch, ok := c.pendingQueryServiceInfo[m.Serial]; ok {
			delete(c.pendingQueryServiceInfo, m.Serial)
			if m.Result == core.QueryServiceInfoOk {
				ch <- queryServiceInfoResult{version: m.Version, typeId: m.TypeId}
			} else {
				ch <- queryServiceInfoResult{err: core.ErrInvalidService}
			}
		}

	case core.SubscribeEventReplyMessage:
		if ch, ok := c.pendingSubscribeEvent[m.Serial]; ok {
			delete(c.pendingSubscribeEvent, m.Serial)
			if m.Result == core.SubscribeEventOk {
				ch <- nil
			} else {
				ch <- core.ErrInvalidService
			}
		}

	case core.EmitEventMessage:
		if evs, ok := c.eventSubs[m.Service.Cookie]; ok {
			if sink, ok := evs[m.Event]; ok {
				select {
				case sink <- m.Args:
				default:
				}
			}
		}

	case core.CallFunctionMessage:
		if ch, ok := c.incomingCalls[m.Service.Cookie]; ok {
			select {
			case ch <- m:
			default:
			}
		}

	case core.CallFunctionReplyMessage:
		if ch, ok := c.pendingCalls[m.Serial]; ok {
			delete(c.pendingCalls, m.Serial)
			ch <- m
		}

	case core.CreateChannelReplyMessage:
		if ch, ok := c.pendingCreateChannel[m.Serial]; ok {
			delete(c.pendingCreateChannel, m.Serial)
			ch <- m.Cookie
		}

	case core.ClaimChannelEndReplyMessage:
		if ch, ok := c.pendingClaimChannelEnd[m.Serial]; ok {
			delete(c.pendingClaimChannelEnd, m.Serial)
			switch m.Result {
			case core.ClaimChannelEndOk:
				ch <- claimChannelEndResult{capacity: m.Capacity}
			case core.ClaimChannelEndInvalidChannel:
				ch <- claimChannelEndResult{err: core.ErrInvalidChannel}
			default:
				ch <- claimChannelEndResult{err: fmt.Errorf("channel end already claimed")}
			}
		}

	case core.ChannelEndClaimedMessage:
		c.handleChannelEndClaimed(m)

	case core.CloseChannelEndReplyMessage:
		if ch, ok := c.pendingCloseChannelEnd[m.Serial]; ok {
			delete(c.pendingCloseChannelEnd, m.Serial)
			if m.Result == core.CloseChannelEndOk {
				ch <- nil
			} else {
				ch <- core.ErrInvalidChannel
			}
		}

	case core.ChannelEndClosedMessage:
		c.handleChannelEndClosed(m)

	case core.ItemReceivedMessage:
		c.handleItemReceived(m)

	case core.AddChannelCapacityMessage:
		c.handleAddChannelCapacity(m)

	case core.SyncReplyMessage:
		if ch, ok := c.pendingSync[m.Serial]; ok {
			delete(c.pendingSync, m.Serial)
			close(ch)
		}

	case core.CreateBusListenerReplyMessage:
		if ch, ok := c.pendingCreateBusListener[m.Serial]; ok {
			delete(c.pendingCreateBusListener, m.Serial)
			ch <- m.Cookie
		}

	case core.DestroyBusListenerReplyMessage:
		if ch, ok := c.pendingDestroyBusListener[m.Serial]; ok {
			delete(c.pendingDestroyBusListener, m.Serial)
			if m.Result == core.DestroyBusListenerOk {
				ch <- nil
			} else {
				ch <- core.ErrInvalidBusListener
			}
		}

	case core.StartBusListenerReplyMessage:
		if ch, ok := c.pendingStartBusListener[m.Serial]; ok {
			delete(c.pendingStartBusListener, m.Serial)
			switch m.Result {
			case core.StartBusListenerOk:
				ch <- nil
			case core.StartBusListenerInvalidBusListener:
				ch <- core.ErrInvalidBusListener
			default:
				ch <- core.ErrBusListenerAlreadyStarted
			}
		}

	case core.StopBusListenerReplyMessage:
		if ch, ok := c.pendingStopBusListener[m.Serial]; ok {
			delete(c.pendingStopBusListener, m.Serial)
			switch m.Result {
			case core.StopBusListenerOk:
				ch <- nil
			case core.StopBusListenerInvalidBusListener:
				ch <- core.ErrInvalidBusListener
			default:
				ch <- core.ErrBusListenerNotStarted
			}
		}

	case core.BusListenerCurrentFinishedMessage:
		c.handleBusListenerCurrentFinished(m)

	case core.EmitBusEventMessage:
		c.handleEmitBusEvent(m)

	case core.ShutdownMessage:
		c.stopOnce.Do(func() { close(c.stopCh) })

	default:
		return fmt.Errorf("client: unhandled message kind %T", msg)
	}
	return nil
}

// Handle is a cheap-clone producer endpoint on the session's request
// queue. The zero Handle is not usable; obtain one from Connect or by
// cloning an existing Handle. Cloning and closing a Handle increment
// and decrement the session's live-handle count, triggering shutdown
// once it falls back to the session's own reference — the same
// refcounting discipline as a sync.WaitGroup, just counting Handles
// instead of goroutines.
type Handle struct {
	c *Client
}

// Clone returns a new Handle sharing the same session, incrementing
// its live-handle count.
func (h Handle) Clone() Handle {
	atomic.AddInt64(&h.c.handleCount, 1)
	return Handle{c: h.c}
}

// Close drops this Handle. If it was the last externally-held Handle,
// the session begins its shutdown procedure.
func (h Handle) Close() {
	if atomic.AddInt64(&h.c.handleCount, -1) == 1 {
		h.requestShutdown()
	}
}

// Shutdown explicitly requests the session to shut down regardless of
// the live handle count.
func (h Handle) Shutdown() {
	h.requestShutdown()
}

func (h Handle) requestShutdown() {
	h.c.stopOnce.Do(func() { close(h.c.stopCh) })
}

// Done returns a channel closed once Run has returned.
func (h Handle) Done() <-chan struct{} { return h.c.stopped }
