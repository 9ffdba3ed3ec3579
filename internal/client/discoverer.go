// discoverer.go composes a bus listener with a specification of "one
// or more sets of required services per object" and yields fully
// matching objects as events, handling the partial-match accumulation
// entirely client-side.
package client

import (
	"context"

	"github.com/adred-codev/aldrin/internal/core"
)

// ServiceSet is one alternative a matching object may satisfy: every
// uuid in the set must be present as a service on the object.
type ServiceSet []core.ServiceUuid

// DiscovererEventKind distinguishes a newly fully-matched object from
// one that has stopped matching.
type DiscovererEventKind int

const (
	DiscovererObjectMatched DiscovererEventKind = iota
	DiscovererObjectUnmatched
)

// DiscovererEvent reports a change in an object's match status.
// Services is populated only for DiscovererObjectMatched, mapping each
// required service uuid in the set that matched to its current
// identity.
type DiscovererEvent struct {
	Kind     DiscovererEventKind
	Object   core.ObjectId
	Services map[core.ServiceUuid]core.ServiceId
}

// Discoverer accumulates ServiceCreated/ServiceDestroyed/
// ObjectDestroyed notifications from an underlying bus listener and
// emits one event per object each time its match status flips.
type Discoverer struct {
	bl   BusListener
	sets []ServiceSet

	services     map[core.ObjectUuid]map[core.ServiceUuid]core.ServiceId
	fullyMatched map[core.ObjectUuid]struct{}

	out chan DiscovererEvent
}

// NewDiscoverer creates and starts a bus listener filtered to exactly
// the service uuids named across sets, then runs the accumulation loop
// in its own goroutine until ctx is canceled or the discoverer is
// closed.
func NewDiscoverer(ctx context.Context, h Handle, sets []ServiceSet) (*Discoverer, error) {
	bl, err := h.CreateBusListener(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[core.ServiceUuid]struct{})
	for _, set := range sets {
		for _, uuid := range set {
			if _, ok := seen[uuid]; ok {
				continue
			}
			seen[uuid] = struct{}{}
			u := uuid
			bl.AddFilter(ctx, core.BusListenerFilter{Service: &u})
		}
	}

	if err := bl.Start(ctx, core.BusListenerScopeAll); err != nil {
		bl.Destroy(ctx)
		return nil, err
	}

	d := &Discoverer{
		bl:           bl,
		sets:         sets,
		services:     make(map[core.ObjectUuid]map[core.ServiceUuid]core.ServiceId),
		fullyMatched: make(map[core.ObjectUuid]struct{}),
		out:          make(chan DiscovererEvent, 32),
	}
	go d.run(ctx)
	return d, nil
}

func (d *Discoverer) run(ctx context.Context) {
	defer close(d.out)
	events := d.bl.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.handle(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Discoverer) handle(ev core.BusEvent) {
	switch ev.Kind {
	case core.BusEventServiceCreated:
		objUuid := ev.Object.Uuid
		if d.services[objUuid] == nil {
			d.services[objUuid] = make(map[core.ServiceUuid]core.ServiceId)
		}
		d.services[objUuid][ev.Service.Uuid] = ev.Service
		d.evaluate(ev.Object)

	case core.BusEventServiceDestroyed:
		objUuid := ev.Object.Uuid
		if svcs, ok := d.services[objUuid]; ok {
			delete(svcs, ev.Service.Uuid)
		}
		d.unmatch(ev.Object)
		d.evaluate(ev.Object)

	case core.BusEventObjectDestroyed:
		objUuid := ev.Object.Uuid
		delete(d.services, objUuid)
		d.unmatch(ev.Object)
	}
}

func (d *Discoverer) evaluate(obj core.ObjectId) {
	if _, already := d.fullyMatched[obj.Uuid]; already {
		return
	}
	svcs := d.services[obj.Uuid]
	for _, set := range d.sets {
		full := true
		for _, uuid := range set {
			if _, ok := svcs[uuid]; !ok {
				full = false
				break
			}
		}
		if !full {
			continue
		}
		d.fullyMatched[obj.Uuid] = struct{}{}
		snapshot := make(map[core.ServiceUuid]core.ServiceId, len(svcs))
		for k, v := range svcs {
			snapshot[k] = v
		}
		d.out <- DiscovererEvent{Kind: DiscovererObjectMatched, Object: obj, Services: snapshot}
		return
	}
}

func (d *Discoverer) unmatch(obj core.ObjectId) {
	if _, ok := d.fullyMatched[obj.Uuid]; !ok {
		return
	}
	delete(d.fullyMatched, obj.Uuid)
	d.out <- DiscovererEvent{Kind: DiscovererObjectUnmatched, Object: obj}
}

// Events returns the channel on which match/unmatch events arrive,
// closed once the underlying bus listener's event channel closes.
func (d *Discoverer) Events() <-chan DiscovererEvent { return d.out }

// Close destroys the underlying bus listener.
func (d *Discoverer) Close(ctx context.Context) error {
	return d.bl.Destroy(ctx)
}
