package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/adred-codev/aldrin/internal/core"
)

func TestBusListenerCurrentScope(t *testing.T) {
	l, stop := testBroker(t)
	defer stop()

	_, owner := dialClient(t, l)
	defer owner.Shutdown()
	_, watcher := dialClient(t, l)
	defer watcher.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	obj, err := owner.CreateObject(ctx, core.NewObjectUuid())
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	// Give the broker's event loop a beat to finish registering the
	// object before the listener enumerates current matches.
	time.Sleep(20 * time.Millisecond)

	bl, err := watcher.CreateBusListener(ctx)
	if err != nil {
		t.Fatalf("CreateBusListener: %v", err)
	}
	if err := bl.Start(ctx, core.BusListenerScopeCurrent); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case ev := <-bl.Events():
		if ev.Kind != core.BusEventObjectCreated || ev.Object.Uuid != obj.Id().Uuid {
			t.Fatalf("unexpected enumerated event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for current-scope enumeration")
	}

	select {
	case <-bl.Finished():
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for BusListenerCurrentFinished")
	}

	// A later topology change must not be delivered: Current scope only
	// ever sees the one-shot enumeration.
	newObj, err := owner.CreateObject(ctx, core.NewObjectUuid())
	if err != nil {
		t.Fatalf("CreateObject (second): %v", err)
	}
	_ = newObj
	select {
	case ev := <-bl.Events():
		t.Fatalf("unexpected event delivered to a Current-scope listener: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
