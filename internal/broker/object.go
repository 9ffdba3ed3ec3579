package broker

import "github.com/adred-codev/aldrin/internal/core"

// createObject registers a new object owned by conn.
func (s *State) createObject(conn ConnId, uuid core.ObjectUuid) (core.ObjectCookie, error) {
	if _, exists := s.objectsByUUID[uuid]; exists {
		return core.ObjectCookie{}, core.ErrDuplicateObject
	}
	cookie := core.NewObjectCookie()
	s.objectsByUUID[uuid] = &object{
		id:      core.ObjectId{Uuid: uuid, Cookie: cookie},
		owner:   conn,
		service: make(map[core.ServiceUuid]struct{}),
	}
	s.objectsByCookie[cookie] = uuid
	s.conns[conn].objects[uuid] = struct{}{}
	return cookie, nil
}

// destroyObjectEvent is queued for the bus-listener broadcast pass; see
// broker.go's deferred-queue flush order.
type destroyObjectEvent struct {
	id core.ObjectId
}

type createObjectEvent struct {
	id core.ObjectId
}

// destroyObject removes obj and cascades into its owned services.
// Idempotent: destroying an already-absent cookie is not an error at
// this layer (callers needing the typed reply check existence first).
func (s *State) destroyObject(cookie core.ObjectCookie) ([]destroyServiceEvent, destroyObjectEvent, bool) {
	uuid, ok := s.objectsByCookie[cookie]
	if !ok {
		return nil, destroyObjectEvent{}, false
	}
	obj := s.objectsByUUID[uuid]

	var destroyedServices []destroyServiceEvent
	for svcUuid := range obj.service {
		if ev, ok := s.destroyServiceByUUID(svcUuid); ok {
			destroyedServices = append(destroyedServices, ev)
		}
	}

	delete(s.objectsByCookie, cookie)
	delete(s.objectsByUUID, uuid)
	if cs, ok := s.conns[obj.owner]; ok {
		delete(cs.objects, uuid)
	}

	return destroyedServices, destroyObjectEvent{id: obj.id}, true
}
