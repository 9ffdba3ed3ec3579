// broker.go implements the single-threaded event loop that owns a
// Broker's State: one goroutine makes every bookkeeping decision, fed
// by a fan-in channel from per-connection read pumps.
package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adred-codev/aldrin/internal/config"
	"github.com/adred-codev/aldrin/internal/core"
	"github.com/adred-codev/aldrin/internal/monitoring"
	"github.com/adred-codev/aldrin/internal/transport"
	"github.com/rs/zerolog"
)

// gracePeriod bounds how long Shutdown waits for sessions to drain
// before force-closing them.
const gracePeriod = 30 * time.Second

// inbound is one event fed into the broker's central decision point:
// either a decoded message from conn, or conn's termination.
type inbound struct {
	conn   ConnId
	msg    core.Message
	closed bool
}

// session is the broker's handle to one connected client: the
// transport.Conn plus its dedicated write queue. It satisfies
// state.go's transportSender interface.
type session struct {
	id        ConnId
	conn      transport.Conn
	outCh     chan core.Message
	done      chan struct{}
	closeOnce sync.Once
}

func (s *session) deliver(msg core.Message) {
	select {
	case s.outCh <- msg:
	case <-s.done:
	}
}

func (s *session) stop() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Broker runs one Aldrin bus: the C4 state plus the C5 event loop.
type Broker struct {
	cfg         *config.Config
	logger      zerolog.Logger
	admission   *Admission
	connectRate *ConnectRateLimiter

	state    *State
	sessions map[ConnId]*session

	inboxCh  chan inbound
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	listeners []transport.Listener

	activeConns  int64
	shuttingDown atomic.Bool
}

// NewBroker constructs a Broker ready to accept listeners and Run.
func NewBroker(cfg *config.Config, logger zerolog.Logger) *Broker {
	b := &Broker{
		cfg:      cfg,
		logger:   logger,
		state:    newState(),
		sessions: make(map[ConnId]*session),
		inboxCh:  make(chan inbound, 256),
		stopCh:   make(chan struct{}),
	}
	b.admission = NewAdmission(cfg, logger, &b.activeConns)
	b.connectRate = NewConnectRateLimiter(ConnectRateLimiterConfig{
		AddrBurst:   cfg.ConnectBurstPerAddr,
		AddrRate:    cfg.ConnectRateLimitPerAddr,
		AddrTTL:     cfg.ConnectAddrTTL,
		GlobalBurst: cfg.ConnectBurstGlobal,
		GlobalRate:  cfg.ConnectRateLimitGlobal,
	}, logger)
	return b
}

// AddListener registers a transport listener to be served once Run
// starts. Call before Run.
func (b *Broker) AddListener(l transport.Listener) {
	b.listeners = append(b.listeners, l)
}

// Run starts every registered listener's accept loop and the central
// event loop, blocking until ctx is canceled or Shutdown is called.
func (b *Broker) Run(ctx context.Context) error {
	if len(b.listeners) == 0 {
		return fmt.Errorf("broker: no listeners registered")
	}

	b.admission.StartMonitoring(ctx, b.cfg.MetricsInterval)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.connectRate.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()

	for _, l := range b.listeners {
		l := l
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.acceptLoop(ctx, l)
		}()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.eventLoop(ctx)
	}()

	<-ctx.Done()
	return nil
}

func (b *Broker) acceptLoop(ctx context.Context, l transport.Listener) {
	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			b.logger.Error().Err(err).Str("listener", l.Addr()).Msg("accept failed")
			continue
		}
		if b.shuttingDown.Load() {
			conn.Close()
			continue
		}
		if !b.connectRate.Allow(conn.RemoteAddr()) {
			b.logger.Warn().Str("remote", conn.RemoteAddr()).Msg("rejecting connection: connect rate limit")
			conn.Close()
			continue
		}
		if accept, reason := b.admission.ShouldAcceptConnection(); !accept {
			b.logger.Warn().Str("reason", reason).Str("remote", conn.RemoteAddr()).Msg("rejecting connection")
			conn.Close()
			continue
		}
		if !b.admission.AcquireGoroutine() {
			b.logger.Warn().Msg("goroutine limit reached, rejecting connection")
			conn.Close()
			continue
		}
		b.spawnSession(ctx, conn)
	}
}

func (b *Broker) spawnSession(ctx context.Context, conn transport.Conn) {
	id := b.nextConnID()
	sess := &session{
		id:    id,
		conn:  conn,
		outCh: make(chan core.Message, 64),
		done:  make(chan struct{}),
	}

	atomic.AddInt64(&b.activeConns, 1)
	monitoring.ConnectionsTotal.Inc()
	monitoring.ConnectionsActive.Inc()

	// Register before the read pump starts so the event loop knows the
	// connection before its first message (Connect) arrives.
	b.inboxCh <- inbound{conn: id, msg: registerSessionMsg{sess: sess}}

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		defer b.admission.ReleaseGoroutine()
		b.readPump(ctx, sess)
	}()
	go func() {
		defer b.wg.Done()
		b.writePump(ctx, sess)
	}()
}

// registerSessionMsg is an internal-only message kind (never put on
// the wire) used to hand a freshly spawned session to the event-loop
// goroutine, which is the only goroutine allowed to mutate b.sessions
// and b.state.
type registerSessionMsg struct{ sess *session }

func (registerSessionMsg) Kind() core.MessageKind { return core.MessageKind(255) }

var nextConnIDCounter uint64

func (b *Broker) nextConnID() ConnId {
	return ConnId(atomic.AddUint64(&nextConnIDCounter, 1))
}

// readPump decodes messages off conn until it errors or closes,
// forwarding each onto the broker's central inbox.
//
// Grounded on pump_read.go's readPump shape: one goroutine per
// connection, no locking, terminal errors reported once via a deferred
// teardown notification.
func (b *Broker) readPump(ctx context.Context, sess *session) {
	defer func() {
		select {
		case b.inboxCh <- inbound{conn: sess.id, closed: true}:
		case <-b.stopCh:
		}
	}()

	for {
		msg, err := sess.conn.Receive(ctx)
		if err != nil {
			return
		}
		monitoring.MessagesReceived.Inc()
		select {
		case b.inboxCh <- inbound{conn: sess.id, msg: msg}:
		case <-sess.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// writePump drains sess.outCh and forwards each message to the
// transport, flushing after each drained batch.
//
// Grounded on pump_write.go's writePump batching shape (drain-then-
// flush instead of one flush per message).
func (b *Broker) writePump(ctx context.Context, sess *session) {
	defer sess.conn.Close()

	for {
		select {
		case msg, ok := <-sess.outCh:
			if !ok {
				return
			}
			if err := sess.conn.Send(ctx, msg); err != nil {
				return
			}
			n := len(sess.outCh)
			for i := 0; i < n; i++ {
				if err := sess.conn.Send(ctx, <-sess.outCh); err != nil {
					return
				}
			}
			if err := sess.conn.Flush(ctx); err != nil {
				return
			}
			monitoring.MessagesSent.Add(float64(n + 1))
		case <-sess.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// eventLoop is the single goroutine that owns b.state: every
// bookkeeping decision in the broker happens here, never concurrently.
func (b *Broker) eventLoop(ctx context.Context) {
	for {
		select {
		case in := <-b.inboxCh:
			b.handleInbound(in)
		case <-ctx.Done():
			b.teardownAll()
			return
		case <-b.stopCh:
			b.teardownAll()
			return
		}
	}
}

func (b *Broker) handleInbound(in inbound) {
	if reg, ok := in.msg.(registerSessionMsg); ok {
		b.sessions[in.conn] = reg.sess
		b.state.conns[in.conn] = &connState{
			conn:         reg.sess,
			objects:      make(map[core.ObjectUuid]struct{}),
			busListeners: make(map[core.BusListenerCookie]struct{}),
			senderEnds:   make(map[core.ChannelCookie]struct{}),
			receiverEnds: make(map[core.ChannelCookie]struct{}),
		}
		return
	}

	if in.closed {
		b.teardownConn(in.conn)
		return
	}

	if err := b.handleMessage(in.conn, in.msg); err != nil {
		b.logger.Warn().Err(err).Uint64("conn", uint64(in.conn)).Msg("message handling failed")
	}
}

func (b *Broker) send(conn ConnId, msg core.Message) {
	if sess, ok := b.sessions[conn]; ok {
		sess.deliver(msg)
	}
}

// handleMessage dispatches one decoded client message, updating state
// and applying the connection-teardown cascade where relevant.
func (b *Broker) handleMessage(conn ConnId, msg core.Message) error {
	switch m := msg.(type) {

	case core.ConnectMessage:
		return b.handleConnect(conn, m)

	case core.CreateObjectMessage:
		cookie, err := b.state.createObject(conn, m.Uuid)
		reply := core.CreateObjectReplyMessage{Serial: m.Serial}
		if err != nil {
			reply.Result = core.CreateObjectDuplicateObject
		} else {
			reply.Result = core.CreateObjectOk
			reply.Cookie = cookie
			monitoring.ObjectsActive.Inc()
			b.broadcastBusEvent(core.BusEvent{Kind: core.BusEventObjectCreated, Object: core.ObjectId{Uuid: m.Uuid, Cookie: cookie}})
		}
		b.send(conn, reply)

	case core.DestroyObjectMessage:
		svcEvents, objEvent, ok := b.state.destroyObject(m.Cookie)
		reply := core.DestroyObjectReplyMessage{Serial: m.Serial}
		if !ok {
			reply.Result = core.DestroyObjectInvalidObject
		} else {
			reply.Result = core.DestroyObjectOk
			monitoring.ObjectsActive.Dec()
			for _, ev := range svcEvents {
				b.notifyServiceDestroyed(ev)
				b.broadcastBusEvent(core.BusEvent{Kind: core.BusEventServiceDestroyed, Object: ev.id.Object, Service: ev.id})
			}
			b.broadcastBusEvent(core.BusEvent{Kind: core.BusEventObjectDestroyed, Object: objEvent.id})
		}
		b.send(conn, reply)

	case core.CreateServiceMessage:
		cookie, err := b.state.createService(conn, m.Object.Uuid, m.Uuid)
		reply := core.CreateServiceReplyMessage{Serial: m.Serial}
		switch err {
		case nil:
			reply.Result = core.CreateServiceOk
			reply.Cookie = cookie
			monitoring.ServicesActive.Inc()
			b.broadcastBusEvent(core.BusEvent{
				Kind:    core.BusEventServiceCreated,
				Object:  m.Object,
				Service: core.ServiceId{Object: m.Object, Uuid: m.Uuid, Cookie: cookie},
			})
		case core.ErrInvalidObject:
			reply.Result = core.CreateServiceInvalidObject
		default:
			reply.Result = core.CreateServiceDuplicateService
		}
		b.send(conn, reply)

	case core.DestroyServiceMessage:
		ev, ok := b.state.destroyService(m.Cookie)
		reply := core.DestroyServiceReplyMessage{Serial: m.Serial}
		if !ok {
			reply.Result = core.DestroyServiceInvalidService
		} else {
			reply.Result = core.DestroyServiceOk
			monitoring.ServicesActive.Dec()
			b.notifyServiceDestroyed(ev)
			b.broadcastBusEvent(core.BusEvent{Kind: core.BusEventServiceDestroyed, Object: ev.id.Object, Service: ev.id})
		}
		b.send(conn, reply)

	case core.QueryServiceInfoMessage:
		_, ok := b.state.servicesByCookie[m.Cookie]
		reply := core.QueryServiceInfoReplyMessage{Serial: m.Serial}
		if !ok {
			reply.Result = core.QueryServiceInfoInvalidService
		} else {
			reply.Result = core.QueryServiceInfoOk
			reply.Version = b.cfg.ProtocolMinor
		}
		b.send(conn, reply)

	case core.SubscribeEventMessage:
		err := b.state.subscribeEvent(conn, m.Service.Cookie, m.Event)
		reply := core.SubscribeEventReplyMessage{Serial: m.Serial}
		if err != nil {
			reply.Result = core.SubscribeEventInvalidService
		} else {
			reply.Result = core.SubscribeEventOk
		}
		b.send(conn, reply)

	case core.UnsubscribeEventMessage:
		b.state.unsubscribeEvent(conn, m.Service.Cookie, m.Event)

	case core.EmitEventMessage:
		for _, subConn := range b.state.eventSubscribers(m.Service.Cookie, m.Event) {
			b.send(subConn, m)
		}

	case core.CallFunctionMessage:
		calleeConn, brokerSerial, err := b.state.registerCall(conn, m.Serial, m.Service.Cookie)
		if err != nil {
			b.send(conn, core.CallFunctionReplyMessage{Serial: m.Serial, Result: core.CallFunctionInvalidService})
			return nil
		}
		monitoring.FunctionCallsInFlight.Inc()
		b.send(calleeConn, core.CallFunctionMessage{Serial: brokerSerial, Service: m.Service, Function: m.Function, Args: m.Args})

	case core.CallFunctionReplyMessage:
		pc, ok := b.state.completeCall(m.Serial)
		if ok {
			monitoring.FunctionCallsInFlight.Dec()
			label := "ok"
			if m.Result != core.CallFunctionOk {
				label = "error"
			}
			monitoring.FunctionCallsTotal.WithLabelValues(label).Inc()
			b.send(pc.callerConn, core.CallFunctionReplyMessage{Serial: pc.callerSerial, Result: m.Result, Value: m.Value})
		}

	case core.AbortFunctionCallMessage:
		// The caller names the call by its own serial; forward the abort
		// under the broker-allocated serial the callee was given.
		for brokerSerial, pc := range b.state.pendingCalls {
			if pc.callerConn != conn || pc.callerSerial != m.Serial {
				continue
			}
			b.state.completeCall(brokerSerial)
			monitoring.FunctionCallsInFlight.Dec()
			monitoring.FunctionCallsTotal.WithLabelValues("aborted").Inc()
			b.send(pc.calleeConn, core.AbortFunctionCallMessage{Serial: brokerSerial})
			break
		}

	case core.CreateChannelMessage:
		cookie := b.state.createChannel()
		monitoring.ChannelsActive.Inc()
		b.send(conn, core.CreateChannelReplyMessage{Serial: m.Serial, Cookie: cookie})

	case core.ClaimChannelEndMessage:
		capacity, notify, oppositeConn, err := b.state.claimChannelEnd(conn, m.Cookie, m.End, m.Capacity)
		reply := core.ClaimChannelEndReplyMessage{Serial: m.Serial}
		switch err {
		case nil:
			reply.Result = core.ClaimChannelEndOk
			reply.Capacity = capacity
		case core.ErrInvalidChannel:
			reply.Result = core.ClaimChannelEndInvalidChannel
		default:
			reply.Result = core.ClaimChannelEndAlreadyClaimed
		}
		b.send(conn, reply)
		if err == nil && notify {
			b.send(oppositeConn, core.ChannelEndClaimedMessage{Cookie: m.Cookie, Capacity: capacity})
		}

	case core.CloseChannelEndMessage:
		notifyConn, shouldNotify, removed, err := b.state.closeChannelEnd(conn, m.Cookie, m.End)
		reply := core.CloseChannelEndReplyMessage{Serial: m.Serial}
		if err != nil {
			reply.Result = core.CloseChannelEndInvalidChannel
		} else {
			reply.Result = core.CloseChannelEndOk
			if removed {
				monitoring.ChannelsActive.Dec()
			}
		}
		b.send(conn, reply)
		if err == nil && shouldNotify {
			b.send(notifyConn, core.ChannelEndClosedMessage{Cookie: m.Cookie, End: m.End})
		}

	case core.SendItemMessage:
		receiverConn, deliver, err := b.state.sendItem(m.Cookie)
		if err == nil && deliver {
			monitoring.ChannelItemsSent.Inc()
			b.send(receiverConn, core.ItemReceivedMessage{Cookie: m.Cookie, Item: m.Item})
		} else if err == nil {
			monitoring.ChannelItemsDiscarded.Inc()
		}

	case core.AddChannelCapacityMessage:
		senderConn, notify, err := b.state.addChannelCapacity(m.Cookie, m.Capacity)
		if err == nil && notify {
			b.send(senderConn, m)
		}

	case core.SyncMessage:
		b.send(conn, core.SyncReplyMessage{Serial: m.Serial})

	case core.CreateBusListenerMessage:
		cookie := b.state.createBusListener(conn)
		b.send(conn, core.CreateBusListenerReplyMessage{Serial: m.Serial, Cookie: cookie})
		monitoring.BusListenersActive.Inc()

	case core.DestroyBusListenerMessage:
		err := b.state.destroyBusListener(conn, m.Cookie)
		reply := core.DestroyBusListenerReplyMessage{Serial: m.Serial}
		if err != nil {
			reply.Result = core.DestroyBusListenerInvalidBusListener
		} else {
			reply.Result = core.DestroyBusListenerOk
			monitoring.BusListenersActive.Dec()
		}
		b.send(conn, reply)

	case core.AddBusListenerFilterMessage:
		b.state.addBusListenerFilter(m.Cookie, m.Filter)

	case core.RemoveBusListenerFilterMessage:
		b.state.removeBusListenerFilter(m.Cookie, m.Filter)

	case core.ClearBusListenerFiltersMessage:
		b.state.clearBusListenerFilters(m.Cookie)

	case core.StartBusListenerMessage:
		matches, err := b.state.startBusListener(m.Cookie, m.Scope)
		reply := core.StartBusListenerReplyMessage{Serial: m.Serial}
		switch err {
		case nil:
			reply.Result = core.StartBusListenerOk
		case core.ErrInvalidBusListener:
			reply.Result = core.StartBusListenerInvalidBusListener
		default:
			reply.Result = core.StartBusListenerAlreadyStarted
		}
		b.send(conn, reply)
		if err == nil {
			for _, match := range matches {
				b.send(conn, core.EmitBusEventMessage{Cookie: m.Cookie, Event: core.BusEvent{Kind: match.kind, Object: match.obj, Service: match.svc}})
			}
			b.send(conn, core.BusListenerCurrentFinishedMessage{Cookie: m.Cookie})
		}

	case core.StopBusListenerMessage:
		err := b.state.stopBusListener(m.Cookie)
		reply := core.StopBusListenerReplyMessage{Serial: m.Serial}
		switch err {
		case nil:
			reply.Result = core.StopBusListenerOk
		case core.ErrInvalidBusListener:
			reply.Result = core.StopBusListenerInvalidBusListener
		default:
			reply.Result = core.StopBusListenerNotStarted
		}
		b.send(conn, reply)

	case core.ShutdownMessage:
		b.teardownConn(conn)

	default:
		return fmt.Errorf("unhandled message kind %T", msg)
	}
	return nil
}

func (b *Broker) handleConnect(conn ConnId, m core.ConnectMessage) error {
	cs, ok := b.state.conns[conn]
	if !ok {
		return fmt.Errorf("connect from unregistered conn %d", conn)
	}
	if m.Major != b.cfg.ProtocolMajor {
		b.send(conn, core.ConnectReplyMessage{Result: core.ConnectIncompatibleVersion})
		return nil
	}
	negotiated := m.Minor
	if b.cfg.ProtocolMinor < negotiated {
		negotiated = b.cfg.ProtocolMinor
	}
	cs.negotiatedMinor = negotiated
	b.send(conn, core.ConnectReplyMessage{Result: core.ConnectOk, NegotiatedMinor: negotiated})
	return nil
}

// broadcastBusEvent fans a topology change out to every started bus
// listener whose filters match it (§4.6), skipping Current-only
// listeners which only ever see the one-shot enumeration.
func (b *Broker) broadcastBusEvent(ev core.BusEvent) {
	var svcUuid *core.ServiceUuid
	if ev.Kind == core.BusEventServiceCreated || ev.Kind == core.BusEventServiceDestroyed {
		u := ev.Service.Uuid
		svcUuid = &u
	}
	for _, bl := range b.state.busListenersMatching(ev.Object.Uuid, svcUuid) {
		b.send(bl.owner, core.EmitBusEventMessage{Cookie: bl.cookie, Event: ev})
	}
}

// teardownConn removes every trace of conn from bus state: owned
// objects (cascading into services, pending calls, and subscriber
// notifications), claimed channel ends, and bus listeners.
func (b *Broker) teardownConn(conn ConnId) {
	cs, ok := b.state.conns[conn]
	if !ok {
		return
	}

	for uuid := range cs.objects {
		obj, ok := b.state.objectsByUUID[uuid]
		if !ok {
			continue
		}
		svcEvents, objEvent, _ := b.state.destroyObject(obj.id.Cookie)
		monitoring.ObjectsActive.Dec()
		for _, ev := range svcEvents {
			monitoring.ServicesActive.Dec()
			b.notifyServiceDestroyed(ev)
			b.broadcastBusEvent(core.BusEvent{Kind: core.BusEventServiceDestroyed, Object: ev.id.Object, Service: ev.id})
		}
		b.broadcastBusEvent(core.BusEvent{Kind: core.BusEventObjectDestroyed, Object: objEvent.id})
	}

	for cookie := range cs.senderEnds {
		notifyConn, shouldNotify, removed, err := b.state.closeChannelEnd(conn, cookie, core.ChannelEndSender)
		if err == nil {
			if removed {
				monitoring.ChannelsActive.Dec()
			}
			if shouldNotify {
				b.send(notifyConn, core.ChannelEndClosedMessage{Cookie: cookie, End: core.ChannelEndSender})
			}
		}
	}
	for cookie := range cs.receiverEnds {
		notifyConn, shouldNotify, removed, err := b.state.closeChannelEnd(conn, cookie, core.ChannelEndReceiver)
		if err == nil {
			if removed {
				monitoring.ChannelsActive.Dec()
			}
			if shouldNotify {
				b.send(notifyConn, core.ChannelEndClosedMessage{Cookie: cookie, End: core.ChannelEndReceiver})
			}
		}
	}

	for cookie := range cs.busListeners {
		b.state.destroyBusListener(conn, cookie)
		monitoring.BusListenersActive.Dec()
	}

	for serial, pc := range b.state.pendingCalls {
		if pc.callerConn == conn {
			delete(b.state.pendingCalls, serial)
			b.state.callSerials.Retire(serial)
		}
	}

	delete(b.state.conns, conn)
	if sess, ok := b.sessions[conn]; ok {
		// Best-effort Shutdown to the peer; never blocks the event loop.
		select {
		case sess.outCh <- core.ShutdownMessage{}:
		default:
		}
		sess.stop()
		delete(b.sessions, conn)
	}
	atomic.AddInt64(&b.activeConns, -1)
	monitoring.ConnectionsActive.Dec()
	monitoring.DisconnectsTotal.WithLabelValues("closed").Inc()
}

// notifyServiceDestroyed tells every connection that held an event
// subscription on ev's service that it is gone, and fails any pending
// call whose callee just vanished with InvalidService.
func (b *Broker) notifyServiceDestroyed(ev destroyServiceEvent) {
	for _, pc := range ev.abortedCalls {
		monitoring.FunctionCallsInFlight.Dec()
		monitoring.FunctionCallsTotal.WithLabelValues("invalid_service").Inc()
		b.send(pc.callerConn, core.CallFunctionReplyMessage{Serial: pc.callerSerial, Result: core.CallFunctionInvalidService})
	}
	for _, connID := range ev.subscribers {
		b.send(connID, core.ServiceDestroyedMessage{Cookie: ev.id.Cookie})
	}
}

// teardownAll force-closes every session, used on Shutdown once the
// grace period has expired.
func (b *Broker) teardownAll() {
	for conn := range b.state.conns {
		b.teardownConn(conn)
	}
}

// Shutdown stops accepting new connections and waits up to gracePeriod
// (or until ctx is done) for connected sessions to end on their own,
// then stops the event loop, which tears down every remaining
// connection.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.shuttingDown.Store(true)
	for _, l := range b.listeners {
		l.Close()
	}

	deadline := time.NewTimer(gracePeriod)
	defer deadline.Stop()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if atomic.LoadInt64(&b.activeConns) == 0 {
			break
		}
		select {
		case <-deadline.C:
			b.logger.Warn().Int64("remaining", atomic.LoadInt64(&b.activeConns)).Msg("grace period expired, forcing shutdown")
			goto stop
		case <-ticker.C:
		case <-ctx.Done():
			goto stop
		}
	}
stop:
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
	return nil
}
