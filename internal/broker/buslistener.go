package broker

import "github.com/adred-codev/aldrin/internal/core"

// createBusListener allocates a new, stopped bus listener for conn.
func (s *State) createBusListener(conn ConnId) core.BusListenerCookie {
	cookie := core.NewBusListenerCookie()
	s.busListeners[cookie] = &busListener{cookie: cookie, owner: conn}
	s.conns[conn].busListeners[cookie] = struct{}{}
	return cookie
}

func (s *State) destroyBusListener(conn ConnId, cookie core.BusListenerCookie) error {
	bl, ok := s.busListeners[cookie]
	if !ok || bl.owner != conn {
		return core.ErrInvalidBusListener
	}
	delete(s.busListeners, cookie)
	delete(s.conns[conn].busListeners, cookie)
	return nil
}

// Filters can only be mutated while the listener is stopped (§4.6).
func (s *State) addBusListenerFilter(cookie core.BusListenerCookie, f core.BusListenerFilter) error {
	bl, ok := s.busListeners[cookie]
	if !ok {
		return core.ErrInvalidBusListener
	}
	if bl.started {
		return core.ErrBusListenerAlreadyStarted
	}
	bl.filters = append(bl.filters, f)
	return nil
}

func (s *State) removeBusListenerFilter(cookie core.BusListenerCookie, f core.BusListenerFilter) error {
	bl, ok := s.busListeners[cookie]
	if !ok {
		return core.ErrInvalidBusListener
	}
	if bl.started {
		return core.ErrBusListenerAlreadyStarted
	}
	out := bl.filters[:0]
	for _, existing := range bl.filters {
		if !filterEqual(existing, f) {
			out = append(out, existing)
		}
	}
	bl.filters = out
	return nil
}

func filterEqual(a, b core.BusListenerFilter) bool {
	if (a.Object == nil) != (b.Object == nil) {
		return false
	}
	if a.Object != nil && *a.Object != *b.Object {
		return false
	}
	if (a.Service == nil) != (b.Service == nil) {
		return false
	}
	if a.Service != nil && *a.Service != *b.Service {
		return false
	}
	return true
}

func (s *State) clearBusListenerFilters(cookie core.BusListenerCookie) error {
	bl, ok := s.busListeners[cookie]
	if !ok {
		return core.ErrInvalidBusListener
	}
	if bl.started {
		return core.ErrBusListenerAlreadyStarted
	}
	bl.filters = nil
	return nil
}

// currentMatch is one pre-existing entity a newly started Current/All
// bus listener must be told about before BusListenerCurrentFinished.
type currentMatch struct {
	kind core.BusEventKind
	obj  core.ObjectId
	svc  core.ServiceId
}

// startBusListener marks bl started and, for Current/All scope,
// enumerates every existing matching object/service so the caller can
// emit EmitBusEvent for each before BusListenerCurrentFinished.
func (s *State) startBusListener(cookie core.BusListenerCookie, scope core.BusListenerScope) ([]currentMatch, error) {
	bl, ok := s.busListeners[cookie]
	if !ok {
		return nil, core.ErrInvalidBusListener
	}
	if bl.started {
		return nil, core.ErrBusListenerAlreadyStarted
	}
	bl.started = true
	bl.scope = scope

	if scope == core.BusListenerScopeNew {
		return nil, nil
	}

	var matches []currentMatch
	for uuid, obj := range s.objectsByUUID {
		if bl.matches(uuid, nil) {
			matches = append(matches, currentMatch{kind: core.BusEventObjectCreated, obj: obj.id})
		}
		for svcUuid := range obj.service {
			if bl.matches(uuid, &svcUuid) {
				svc := s.services[svcUuid]
				matches = append(matches, currentMatch{kind: core.BusEventServiceCreated, obj: obj.id, svc: svc.id})
			}
		}
	}
	return matches, nil
}

func (s *State) stopBusListener(cookie core.BusListenerCookie) error {
	bl, ok := s.busListeners[cookie]
	if !ok {
		return core.ErrInvalidBusListener
	}
	if !bl.started {
		return core.ErrBusListenerNotStarted
	}
	bl.started = false
	return nil
}

// busListenersMatching returns every started listener (not scoped to
// Current-only, since Current finishes and then behaves like New for
// listeners started with All) whose filters match the given topology
// change, for broadcast fan-out.
func (s *State) busListenersMatching(objUuid core.ObjectUuid, svcUuid *core.ServiceUuid) []*busListener {
	var out []*busListener
	for _, bl := range s.busListeners {
		if !bl.started || bl.scope == core.BusListenerScopeCurrent {
			continue
		}
		if bl.matches(objUuid, svcUuid) {
			out = append(out, bl)
		}
	}
	return out
}
