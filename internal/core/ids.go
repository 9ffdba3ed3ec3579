// Package core implements the Aldrin value codec and wire message
// catalog: the self-describing serialization format and the closed
// set of broker/client control messages built on top of it.
package core

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ObjectUuid identifies an object. Chosen by the client that creates the
// object; stable and externally meaningful.
type ObjectUuid uuid.UUID

// ServiceUuid identifies a service within an object. Chosen by the
// client that creates the service.
type ServiceUuid uuid.UUID

// ObjectCookie is a broker-minted handle for an object, opaque and
// valid for the object's lifetime. Never reused.
type ObjectCookie uuid.UUID

// ServiceCookie is a broker-minted handle for a service.
type ServiceCookie uuid.UUID

// ChannelCookie identifies a channel (both of its ends) bus-wide.
type ChannelCookie uuid.UUID

// BusListenerCookie identifies a bus listener owned by a connection.
type BusListenerCookie uuid.UUID

// NewObjectUuid, NewServiceUuid generate random v4 uuids for client use.
func NewObjectUuid() ObjectUuid   { return ObjectUuid(uuid.New()) }
func NewServiceUuid() ServiceUuid { return ServiceUuid(uuid.New()) }

// NewObjectCookie, NewServiceCookie, NewChannelCookie, NewBusListenerCookie
// mint fresh broker-side handles. Collisions are astronomically unlikely
// (v4 UUIDs); the broker does not additionally check for reuse.
func NewObjectCookie() ObjectCookie           { return ObjectCookie(uuid.New()) }
func NewServiceCookie() ServiceCookie         { return ServiceCookie(uuid.New()) }
func NewChannelCookie() ChannelCookie         { return ChannelCookie(uuid.New()) }
func NewBusListenerCookie() BusListenerCookie { return BusListenerCookie(uuid.New()) }

func (u ObjectUuid) String() string        { return uuid.UUID(u).String() }
func (c ObjectCookie) String() string      { return uuid.UUID(c).String() }
func (u ServiceUuid) String() string       { return uuid.UUID(u).String() }
func (c ServiceCookie) String() string     { return uuid.UUID(c).String() }
func (c ChannelCookie) String() string     { return uuid.UUID(c).String() }
func (c BusListenerCookie) String() string { return uuid.UUID(c).String() }

// ObjectId is the composite identity of an object: its stable uuid plus
// the broker-minted cookie for the object's current lifetime.
type ObjectId struct {
	Uuid   ObjectUuid
	Cookie ObjectCookie
}

// ServiceId is the composite identity of a service.
type ServiceId struct {
	Object ObjectId
	Uuid   ServiceUuid
	Cookie ServiceCookie
}

// Serial is a 32-bit per-connection request correlator. Each side of a
// connection maintains an independent serial space; replies echo the
// originator's serial.
type Serial uint32

// SerialAllocator hands out Serials from a monotonic counter, reusing
// values once the correlator they were assigned to has been retired.
// Wraparound is safe because only currently-outstanding serials need to
// be distinct from one another at any given time.
type SerialAllocator struct {
	next    uint32
	mu      sync.Mutex
	retired map[Serial]struct{}
}

// NewSerialAllocator returns an allocator whose first Alloc returns 1.
func NewSerialAllocator() *SerialAllocator {
	return &SerialAllocator{retired: make(map[Serial]struct{})}
}

// Alloc returns a Serial not currently outstanding.
func (a *SerialAllocator) Alloc() Serial {
	for {
		n := atomic.AddUint32(&a.next, 1)
		s := Serial(n)
		if s == 0 {
			continue // 0 is reserved as "no serial"
		}
		a.mu.Lock()
		_, live := a.retired[s]
		a.mu.Unlock()
		if !live {
			a.mu.Lock()
			a.retired[s] = struct{}{}
			a.mu.Unlock()
			return s
		}
	}
}

// Retire marks a Serial as no longer outstanding, making it eligible for
// reuse after counter wraparound.
func (a *SerialAllocator) Retire(s Serial) {
	a.mu.Lock()
	delete(a.retired, s)
	a.mu.Unlock()
}
