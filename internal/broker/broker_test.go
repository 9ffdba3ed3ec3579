package broker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adred-codev/aldrin/internal/broker"
	"github.com/adred-codev/aldrin/internal/client"
	"github.com/adred-codev/aldrin/internal/config"
	"github.com/adred-codev/aldrin/internal/core"
	"github.com/adred-codev/aldrin/internal/transport/inproc"
	"github.com/rs/zerolog"
)

func testBroker(t *testing.T) (*inproc.Listener, func()) {
	t.Helper()
	cfg := &config.Config{
		MaxConnections:           100,
		MaxControlMessagesPerSec: 10000,
		MaxBusEventsPerSec:       10000,
		MaxGoroutines:            1000,
		CPURejectThreshold:       75,
		CPUPauseThreshold:        80,
		ProtocolMajor:            1,
		ProtocolMinor:            17,
		MetricsInterval:          time.Second,
	}
	b := broker.NewBroker(cfg, zerolog.Nop())
	l := inproc.NewListener()
	b.AddListener(l)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx)
	}()

	return l, func() {
		cancel()
		shCtx, shCancel := context.WithTimeout(context.Background(), time.Second)
		defer shCancel()
		b.Shutdown(shCtx)
		<-done
	}
}

func dialClient(t *testing.T, l *inproc.Listener) client.Handle {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	conn, err := l.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c, h, err := client.Connect(ctx, conn, 1, 17, core.None, zerolog.Nop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	go c.Run(context.Background())
	return h
}

// A second CreateObject with the same uuid from a different connection
// must be rejected: object uuids are globally unique on the bus.
func TestDuplicateObjectRejected(t *testing.T) {
	l, stop := testBroker(t)
	defer stop()

	a := dialClient(t, l)
	defer a.Shutdown()
	b := dialClient(t, l)
	defer b.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	uuid := core.NewObjectUuid()
	if _, err := a.CreateObject(ctx, uuid); err != nil {
		t.Fatalf("first CreateObject: %v", err)
	}
	if _, err := b.CreateObject(ctx, uuid); !errors.Is(err, core.ErrDuplicateObject) {
		t.Fatalf("expected ErrDuplicateObject, got %v", err)
	}
}

// ServiceDestroyed must reach only connections that held an event
// subscription on the destroyed service, not every connected session.
func TestServiceDestroyedTargetsSubscribersOnly(t *testing.T) {
	l, stop := testBroker(t)
	defer stop()

	owner := dialClient(t, l)
	defer owner.Shutdown()
	subscriber := dialClient(t, l)
	defer subscriber.Shutdown()
	bystander := dialClient(t, l)
	defer bystander.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	obj, err := owner.CreateObject(ctx, core.NewObjectUuid())
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	svc, err := obj.CreateService(ctx, core.NewServiceUuid())
	if err != nil {
		t.Fatalf("CreateService: %v", err)
	}

	remoteForSub := client.ServiceFromCookie(subscriber, svc.Id())
	events, err := remoteForSub.SubscribeEvent(ctx, 1)
	if err != nil {
		t.Fatalf("SubscribeEvent: %v", err)
	}

	if err := svc.Destroy(ctx); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	// The subscriber's event channel is closed once ServiceDestroyed
	// arrives; the bystander (never subscribed) has no channel to
	// observe and nothing to assert beyond "no crash, no spurious
	// delivery", which notifyServiceDestroyed's subscriber-only fan-out
	// ensures by construction (see internal/broker/service.go).
	select {
	case _, ok := <-events:
		if ok {
			t.Fatalf("expected event channel to close on service destruction, got a value")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event channel to close after ServiceDestroyed")
	}
}
