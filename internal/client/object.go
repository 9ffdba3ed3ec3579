package client

import (
	"context"
	"fmt"

	"github.com/adred-codev/aldrin/internal/core"
)

// Object is a handle to one object this session created. It stays
// valid until Destroy is called or the broker reports the object
// destroyed by some other means (there is none for objects created by
// this session, since only the owner can destroy them).
type Object struct {
	h  Handle
	id core.ObjectId
}

// CreateObject registers a new object under uuid (or a fresh uuid if
// the zero value is passed) and returns a handle to it.
func (h Handle) CreateObject(ctx context.Context, uuid core.ObjectUuid) (Object, error) {
	if uuid == (core.ObjectUuid{}) {
		uuid = core.NewObjectUuid()
	}
	reply := make(chan createObjectResult, 1)
	var serial core.Serial
	h.c.submit(func(c *Client) {
		serial = c.nextSerial()
		c.pendingCreateObject[serial] = reply
		c.conn.Send(ctx, core.CreateObjectMessage{Serial: serial, Uuid: uuid})
		c.conn.Flush(ctx)
	})

	select {
	case res := <-reply:
		if res.err != nil {
			return Object{}, res.err
		}
		return Object{h: h, id: core.ObjectId{Uuid: uuid, Cookie: res.cookie}}, nil
	case <-ctx.Done():
		return Object{}, ctx.Err()
	case <-h.Done():
		return Object{}, core.ErrShutdown
	}
}

// Id returns this object's broker-assigned identity.
func (o Object) Id() core.ObjectId { return o.id }

// Destroy removes the object (and cascades to every service it owns,
// per the broker's teardown rules).
func (o Object) Destroy(ctx context.Context) error {
	reply := make(chan error, 1)
	var serial core.Serial
	o.h.c.submit(func(c *Client) {
		serial = c.nextSerial()
		c.pendingDestroyObject[serial] = reply
		c.conn.Send(ctx, core.DestroyObjectMessage{Serial: serial, Cookie: o.id.Cookie})
		c.conn.Flush(ctx)
	})

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-o.h.Done():
		return core.ErrShutdown
	}
}

// CreateService registers a new service named uuid under this object.
func (o Object) CreateService(ctx context.Context, uuid core.ServiceUuid) (Service, error) {
	if uuid == (core.ServiceUuid{}) {
		uuid = core.NewServiceUuid()
	}
	reply := make(chan createServiceResult, 1)
	var serial core.Serial
	o.h.c.submit(func(c *Client) {
		serial = c.nextSerial()
		c.pendingCreateService[serial] = reply
		c.conn.Send(ctx, core.CreateServiceMessage{Serial: serial, Object: o.id, Uuid: uuid})
		c.conn.Flush(ctx)
	})

	select {
	case res := <-reply:
		if res.err != nil {
			return Service{}, res.err
		}
		svcId := core.ServiceId{Object: o.id, Uuid: uuid, Cookie: res.cookie}
		return Service{h: o.h, id: svcId}, nil
	case <-ctx.Done():
		return Service{}, ctx.Err()
	case <-o.h.Done():
		return Service{}, core.ErrShutdown
	}
}

func (o Object) String() string {
	return fmt.Sprintf("Object(%s)", o.id.Uuid)
}
