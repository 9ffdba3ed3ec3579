package inproc

import (
	"context"
	"testing"
	"time"

	"github.com/adred-codev/aldrin/internal/core"
)

func TestPairDeliversInOrder(t *testing.T) {
	a, b := Pair()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msgs := []core.Message{
		core.SyncMessage{Serial: 1},
		core.SyncMessage{Serial: 2},
		core.SyncMessage{Serial: 3},
	}
	for _, m := range msgs {
		if err := a.Send(ctx, m); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	for _, want := range msgs {
		got, err := b.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		sm, ok := got.(core.SyncMessage)
		if !ok || sm.Serial != want.(core.SyncMessage).Serial {
			t.Fatalf("out of order or wrong message: got %+v want %+v", got, want)
		}
	}
}

func TestCloseUnblocksReceiver(t *testing.T) {
	a, b := Pair()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := b.Receive(ctx); err == nil {
		t.Fatalf("expected error receiving from closed peer")
	}
}
