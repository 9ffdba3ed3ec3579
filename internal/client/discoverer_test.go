package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/adred-codev/aldrin/internal/client"
	"github.com/adred-codev/aldrin/internal/core"
)

func TestDiscovererMatchesOnFullServiceSet(t *testing.T) {
	l, stop := testBroker(t)
	defer stop()

	_, owner := dialClient(t, l)
	defer owner.Shutdown()
	_, watcher := dialClient(t, l)
	defer watcher.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	want1 := core.NewServiceUuid()
	want2 := core.NewServiceUuid()

	d, err := client.NewDiscoverer(ctx, watcher, []client.ServiceSet{{want1, want2}})
	if err != nil {
		t.Fatalf("NewDiscoverer: %v", err)
	}
	defer d.Close(ctx)

	obj, err := owner.CreateObject(ctx, core.NewObjectUuid())
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	svc1, err := obj.CreateService(ctx, want1)
	if err != nil {
		t.Fatalf("CreateService 1: %v", err)
	}

	// Only one of the two required services exists: no match yet.
	select {
	case ev := <-d.Events():
		t.Fatalf("unexpected early match: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	svc2, err := obj.CreateService(ctx, want2)
	if err != nil {
		t.Fatalf("CreateService 2: %v", err)
	}

	select {
	case ev := <-d.Events():
		if ev.Kind != client.DiscovererObjectMatched || ev.Object.Uuid != obj.Id().Uuid {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.Services[want1].Cookie != svc1.Id().Cookie || ev.Services[want2].Cookie != svc2.Id().Cookie {
			t.Fatalf("matched services snapshot incomplete: %+v", ev.Services)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for full match")
	}

	if err := svc1.Destroy(ctx); err != nil {
		t.Fatalf("Destroy svc1: %v", err)
	}

	select {
	case ev := <-d.Events():
		if ev.Kind != client.DiscovererObjectUnmatched || ev.Object.Uuid != obj.Id().Uuid {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for unmatch after a required service was destroyed")
	}
}
