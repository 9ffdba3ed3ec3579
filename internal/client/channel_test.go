package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/adred-codev/aldrin/internal/core"
)

func TestChannelFlowControl(t *testing.T) {
	l, stop := testBroker(t)
	defer stop()

	_, producer := dialClient(t, l)
	defer producer.Shutdown()
	_, consumer := dialClient(t, l)
	defer consumer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	cookie, err := producer.CreateChannel(ctx)
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	receiver, err := consumer.ClaimReceiver(ctx, cookie, 1)
	if err != nil {
		t.Fatalf("ClaimReceiver: %v", err)
	}
	sender, err := producer.ClaimSender(ctx, cookie)
	if err != nil {
		t.Fatalf("ClaimSender: %v", err)
	}

	if err := sender.Send(ctx, core.Value{Kind: core.KindU32, U32: 1}); err != nil {
		t.Fatalf("first Send within credit: %v", err)
	}
	if err := sender.Send(ctx, core.Value{Kind: core.KindU32, U32: 2}); err == nil {
		t.Fatalf("expected second Send to fail: credit exhausted")
	}

	select {
	case item := <-receiver.Items():
		if item.U32 != 1 {
			t.Fatalf("unexpected item: %+v", item)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for item")
	}

	receiver.AddCapacity(ctx, 1)
	time.Sleep(20 * time.Millisecond)

	if err := sender.Send(ctx, core.Value{Kind: core.KindU32, U32: 3}); err != nil {
		t.Fatalf("Send after AddCapacity: %v", err)
	}
	select {
	case item := <-receiver.Items():
		if item.U32 != 3 {
			t.Fatalf("unexpected item: %+v", item)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for item after AddCapacity")
	}

	receiver.Close(ctx)
	select {
	case <-sender.Closed():
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for sender to observe receiver close")
	}
}

// Claiming the sender end before the receiver end must still deliver
// the receiver's advertised capacity to the sender once the receiver
// claims, via ChannelEndClaimedMessage.
func TestChannelSenderClaimedBeforeReceiver(t *testing.T) {
	l, stop := testBroker(t)
	defer stop()

	_, producer := dialClient(t, l)
	defer producer.Shutdown()
	_, consumer := dialClient(t, l)
	defer consumer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	cookie, err := producer.CreateChannel(ctx)
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	sender, err := producer.ClaimSender(ctx, cookie)
	if err != nil {
		t.Fatalf("ClaimSender: %v", err)
	}
	if _, err := consumer.ClaimReceiver(ctx, cookie, 3); err != nil {
		t.Fatalf("ClaimReceiver: %v", err)
	}

	// The sender claimed before the receiver advertised any capacity;
	// it only learns about it via the ChannelEndClaimed notification
	// sent when the receiver claims second.
	time.Sleep(20 * time.Millisecond)

	if err := sender.Send(ctx, core.Value{Kind: core.KindU32, U32: 1}); err != nil {
		t.Fatalf("Send should succeed once the receiver's capacity is relayed: %v", err)
	}
}
