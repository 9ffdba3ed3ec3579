package broker

import "github.com/adred-codev/aldrin/internal/core"

// createService registers a new service on an existing object.
func (s *State) createService(conn ConnId, objUuid core.ObjectUuid, svcUuid core.ServiceUuid) (core.ServiceCookie, error) {
	obj, ok := s.objectsByUUID[objUuid]
	if !ok {
		return core.ServiceCookie{}, core.ErrInvalidObject
	}
	if _, exists := s.services[svcUuid]; exists {
		return core.ServiceCookie{}, core.ErrDuplicateService
	}
	cookie := core.NewServiceCookie()
	s.services[svcUuid] = &service{
		id: core.ServiceId{
			Object: obj.id,
			Uuid:   svcUuid,
			Cookie: cookie,
		},
		owner:       conn,
		subscribers: make(map[ConnId]map[uint32]struct{}),
	}
	s.servicesByCookie[cookie] = svcUuid
	obj.service[svcUuid] = struct{}{}
	return cookie, nil
}

type destroyServiceEvent struct {
	id core.ServiceId
	// abortedCalls holds pending calls that must be answered
	// InvalidService because their callee just vanished, per §4.3's
	// teardown-cascade note.
	abortedCalls []*pendingCall
	// subscribers is every connection that held an event subscription
	// on this service, captured before teardown so the caller can send
	// each one ServiceDestroyed.
	subscribers []ConnId
}

// destroyService removes the service identified by cookie.
func (s *State) destroyService(cookie core.ServiceCookie) (destroyServiceEvent, bool) {
	svcUuid, ok := s.servicesByCookie[cookie]
	if !ok {
		return destroyServiceEvent{}, false
	}
	return s.destroyServiceByUUID(svcUuid)
}

func (s *State) destroyServiceByUUID(svcUuid core.ServiceUuid) (destroyServiceEvent, bool) {
	svc, ok := s.services[svcUuid]
	if !ok {
		return destroyServiceEvent{}, false
	}

	var aborted []*pendingCall
	for serial, pc := range s.pendingCalls {
		if pc.calleeCookie == svc.id.Cookie {
			aborted = append(aborted, pc)
			delete(s.pendingCalls, serial)
			s.callSerials.Retire(serial)
		}
	}

	subscribers := make([]ConnId, 0, len(svc.subscribers))
	for conn := range svc.subscribers {
		subscribers = append(subscribers, conn)
	}

	delete(s.servicesByCookie, svc.id.Cookie)
	delete(s.services, svcUuid)
	if obj, ok := s.objectsByUUID[svc.id.Object.Uuid]; ok {
		delete(obj.service, svcUuid)
	}

	return destroyServiceEvent{id: svc.id, abortedCalls: aborted, subscribers: subscribers}, true
}

// subscribeEvent records conn's interest in event on svc.
func (s *State) subscribeEvent(conn ConnId, svcCookie core.ServiceCookie, event uint32) error {
	svcUuid, ok := s.servicesByCookie[svcCookie]
	if !ok {
		return core.ErrInvalidService
	}
	svc := s.services[svcUuid]
	if svc.subscribers[conn] == nil {
		svc.subscribers[conn] = make(map[uint32]struct{})
	}
	svc.subscribers[conn][event] = struct{}{}
	return nil
}

// unsubscribeEvent removes conn's interest in event on svc. Returns
// true if afterward no connection remains subscribed to that event id
// on this service.
func (s *State) unsubscribeEvent(conn ConnId, svcCookie core.ServiceCookie, event uint32) (lastSubscriber bool) {
	svcUuid, ok := s.servicesByCookie[svcCookie]
	if !ok {
		return false
	}
	svc := s.services[svcUuid]
	if evs, ok := svc.subscribers[conn]; ok {
		delete(evs, event)
		if len(evs) == 0 {
			delete(svc.subscribers, conn)
		}
	}
	for _, evs := range svc.subscribers {
		if _, ok := evs[event]; ok {
			return false
		}
	}
	return true
}

// eventSubscribers returns every connection subscribed to event on
// svcCookie, for broadcast fan-out.
func (s *State) eventSubscribers(svcCookie core.ServiceCookie, event uint32) []ConnId {
	svcUuid, ok := s.servicesByCookie[svcCookie]
	if !ok {
		return nil
	}
	svc := s.services[svcUuid]
	var out []ConnId
	for conn, evs := range svc.subscribers {
		if _, ok := evs[event]; ok {
			out = append(out, conn)
		}
	}
	return out
}

// registerCall records an in-flight CallFunction so its reply (or an
// aborting teardown) can be routed back to the caller. It allocates
// and returns a fresh broker-wide serial — forward the call to the
// callee using this serial, not the caller's own.
func (s *State) registerCall(callerConn ConnId, callerSerial core.Serial, calleeCookie core.ServiceCookie) (calleeConn ConnId, brokerSerial core.Serial, err error) {
	svcUuid, ok := s.servicesByCookie[calleeCookie]
	if !ok {
		return 0, 0, core.ErrInvalidService
	}
	svc := s.services[svcUuid]
	brokerSerial = s.callSerials.Alloc()
	s.pendingCalls[brokerSerial] = &pendingCall{
		callerConn:   callerConn,
		callerSerial: callerSerial,
		calleeConn:   svc.owner,
		calleeCookie: calleeCookie,
	}
	return svc.owner, brokerSerial, nil
}

// completeCall removes and returns the pending call for the
// broker-allocated serial, if any (replies and aborts both consume
// it).
func (s *State) completeCall(brokerSerial core.Serial) (*pendingCall, bool) {
	pc, ok := s.pendingCalls[brokerSerial]
	if ok {
		delete(s.pendingCalls, brokerSerial)
		s.callSerials.Retire(brokerSerial)
	}
	return pc, ok
}
