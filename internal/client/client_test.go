package client_test

import (
	"context"
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
	logger := zerolog.Nop()
	b := broker.NewBroker(cfg, logger)
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

func dialClient(t *testing.T, l *inproc.Listener) (*client.Client, client.Handle) {
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
	return c, h
}

func TestCreateObjectAndService(t *testing.T) {
	l, stop := testBroker(t)
	defer stop()

	_, h := dialClient(t, l)
	defer h.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	obj, err := h.CreateObject(ctx, core.NewObjectUuid())
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	if obj.Id().Uuid == (core.ObjectUuid{}) {
		t.Fatalf("expected a populated object uuid")
	}

	svc, err := obj.CreateService(ctx, core.NewServiceUuid())
	if err != nil {
		t.Fatalf("CreateService: %v", err)
	}
	if svc.Id().Object.Cookie != obj.Id().Cookie {
		t.Fatalf("service's owning object cookie mismatch")
	}

	if err := svc.Destroy(ctx); err != nil {
		t.Fatalf("Destroy service: %v", err)
	}
	if err := obj.Destroy(ctx); err != nil {
		t.Fatalf("Destroy object: %v", err)
	}
}

func TestFunctionCallRoundTrip(t *testing.T) {
	l, stop := testBroker(t)
	defer stop()

	_, callee := dialClient(t, l)
	defer callee.Shutdown()
	_, caller := dialClient(t, l)
	defer caller.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	obj, err := callee.CreateObject(ctx, core.NewObjectUuid())
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	svc, err := obj.CreateService(ctx, core.NewServiceUuid())
	if err != nil {
		t.Fatalf("CreateService: %v", err)
	}

	calls := svc.Serve()
	go func() {
		for call := range calls {
			call.Reply(context.Background(), core.CallFunctionOk, call.Args)
		}
	}()

	// Give the broker a moment to make the new service visible; a
	// production caller would resolve svc.Id() via a bus listener or
	// discoverer instead of sleeping.
	time.Sleep(20 * time.Millisecond)

	remote := client.ServiceFromCookie(caller, svc.Id())
	reply, err := remote.Call(ctx, 1, core.Value{Kind: core.KindString, String: "ping"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if reply.Kind != core.KindString || reply.String != "ping" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}
