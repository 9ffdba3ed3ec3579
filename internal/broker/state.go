// Package broker implements the Aldrin broker: the single-threaded
// event loop that owns bus-wide state — objects, services, channels,
// bus listeners — and arbitrates every client session connected to
// it.
package broker

import (
	"github.com/adred-codev/aldrin/internal/core"
)

// ConnId identifies a connection for the lifetime of the broker
// process. Not meaningful across broker restarts.
type ConnId uint64

// object is the broker's bookkeeping record for one created object:
// its identity plus the set of service uuids it currently owns. Held
// by reference (not value), not by owning pointer into other maps —
// cross-references everywhere in broker state are ids, so entities can
// be torn down independently.
type object struct {
	id      core.ObjectId
	owner   ConnId
	service map[core.ServiceUuid]struct{}
}

// service is the broker's bookkeeping record for one created service.
type service struct {
	id          core.ServiceId
	owner       ConnId
	subscribers map[ConnId]map[uint32]struct{} // conn -> set of subscribed event ids
}

// channelEndState tracks one end of a channel: unclaimed, claimed by a
// connection, or closed.
type channelEndState int

const (
	channelEndUnclaimed channelEndState = iota
	channelEndClaimed
	channelEndClosed
)

// channel is the broker's bookkeeping record for one channel (§4.5).
type channel struct {
	cookie core.ChannelCookie

	senderState    channelEndState
	senderOwner    ConnId
	receiverState  channelEndState
	receiverOwner  ConnId
	receiverCap    uint32 // cumulative capacity advertised by the receiver
	receiverClosed bool   // true once the broker has observed receiver close, for discard-on-send (§4.5)
}

func (c *channel) bothEndsClosed() bool {
	return c.senderState == channelEndClosed && c.receiverState == channelEndClosed
}

// pendingCall is an in-flight CallFunction awaiting a reply from the
// callee's owning connection.
type pendingCall struct {
	callerConn   ConnId
	callerSerial core.Serial
	calleeConn   ConnId
	calleeCookie core.ServiceCookie
}

// busListener is one connection's server-side filtering subscription
// (§4.6).
type busListener struct {
	cookie  core.BusListenerCookie
	owner   ConnId
	filters []core.BusListenerFilter
	started bool
	scope   core.BusListenerScope
}

func (bl *busListener) matches(objUuid core.ObjectUuid, svcUuid *core.ServiceUuid) bool {
	if len(bl.filters) == 0 {
		return true
	}
	for _, f := range bl.filters {
		if f.Object != nil && *f.Object != objUuid {
			continue
		}
		if f.Service != nil {
			if svcUuid == nil || *f.Service != *svcUuid {
				continue
			}
		}
		return true
	}
	return false
}

// connState is per-connection bookkeeping used for teardown cascades:
// the sets of entities this connection owns, so destroying a
// connection never needs to scan every global map.
type connState struct {
	conn transportSender

	objects      map[core.ObjectUuid]struct{}
	busListeners map[core.BusListenerCookie]struct{}
	senderEnds   map[core.ChannelCookie]struct{}
	receiverEnds map[core.ChannelCookie]struct{}

	negotiatedMinor uint32
	shuttingDown    bool
}

// State is the broker's complete bus-wide bookkeeping, private to the
// single event-loop goroutine that owns it; nothing outside that
// goroutine may read or write these maps. Objects and services are
// each split into a by-uuid and a by-cookie map to keep the
// uuid<->cookie correspondence a bijection without a linear scan.
type State struct {
	conns map[ConnId]*connState

	objectsByUUID   map[core.ObjectUuid]*object
	objectsByCookie map[core.ObjectCookie]core.ObjectUuid

	services         map[core.ServiceUuid]*service // keyed by service uuid, unique bus-wide by construction
	servicesByCookie map[core.ServiceCookie]core.ServiceUuid

	channels map[core.ChannelCookie]*channel

	pendingCalls map[core.Serial]*pendingCall

	busListeners map[core.BusListenerCookie]*busListener

	nextConnId ConnId

	// callSerials allocates the broker-wide serial used when forwarding
	// a CallFunction to its callee, distinct from the caller's own
	// (connection-scoped) serial — two different connections may
	// legally reuse the same serial value, so pendingCalls cannot be
	// keyed by the caller's serial directly.
	callSerials *core.SerialAllocator
}

// transportSender is the minimal capability the broker needs from a
// connection to deliver a message to it; satisfied by *session in
// broker.go. Kept as an interface so teardown/notification code in
// this file doesn't depend on broker.go's concrete session type.
type transportSender interface {
	deliver(msg core.Message)
}

func newState() *State {
	return &State{
		conns:            make(map[ConnId]*connState),
		objectsByUUID:    make(map[core.ObjectUuid]*object),
		objectsByCookie:  make(map[core.ObjectCookie]core.ObjectUuid),
		services:         make(map[core.ServiceUuid]*service),
		servicesByCookie: make(map[core.ServiceCookie]core.ServiceUuid),
		channels:         make(map[core.ChannelCookie]*channel),
		pendingCalls:     make(map[core.Serial]*pendingCall),
		busListeners:     make(map[core.BusListenerCookie]*busListener),
		callSerials:      core.NewSerialAllocator(),
	}
}
