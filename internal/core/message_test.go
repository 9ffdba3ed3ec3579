package core

import "testing"

func TestMessageRoundTripCreateObject(t *testing.T) {
	uuid := NewObjectUuid()
	msg := CreateObjectMessage{Serial: 7, Uuid: uuid}
	buf, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	got, err := DecodeMessage(buf)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	co, ok := got.(CreateObjectMessage)
	if !ok {
		t.Fatalf("expected CreateObjectMessage, got %T", got)
	}
	if co.Serial != 7 || co.Uuid != uuid {
		t.Fatalf("mismatch: %+v", co)
	}
}

func TestMessageRoundTripCallFunction(t *testing.T) {
	svc := ServiceId{
		Object: ObjectId{Uuid: NewObjectUuid(), Cookie: NewObjectCookie()},
		Uuid:   NewServiceUuid(),
		Cookie: NewServiceCookie(),
	}
	msg := CallFunctionMessage{
		Serial:   42,
		Service:  svc,
		Function: 3,
		Args:     StringValue("hello"),
	}
	buf, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	got, err := DecodeMessage(buf)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	cf, ok := got.(CallFunctionMessage)
	if !ok {
		t.Fatalf("expected CallFunctionMessage, got %T", got)
	}
	if cf.Serial != 42 || cf.Function != 3 || cf.Args.String != "hello" {
		t.Fatalf("mismatch: %+v", cf)
	}
	if cf.Service.Object.Uuid != svc.Object.Uuid || cf.Service.Uuid != svc.Uuid {
		t.Fatalf("service id mismatch: %+v vs %+v", cf.Service, svc)
	}
}

func TestMessageRoundTripShutdown(t *testing.T) {
	buf, err := EncodeMessage(ShutdownMessage{})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	got, err := DecodeMessage(buf)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if _, ok := got.(ShutdownMessage); !ok {
		t.Fatalf("expected ShutdownMessage, got %T", got)
	}
}

func TestMessageRoundTripBusListenerFilter(t *testing.T) {
	objUuid := NewObjectUuid()
	msg := AddBusListenerFilterMessage{
		Cookie: NewBusListenerCookie(),
		Filter: BusListenerFilter{Object: &objUuid},
	}
	buf, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	got, err := DecodeMessage(buf)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	af, ok := got.(AddBusListenerFilterMessage)
	if !ok {
		t.Fatalf("expected AddBusListenerFilterMessage, got %T", got)
	}
	if af.Filter.Object == nil || *af.Filter.Object != objUuid {
		t.Fatalf("filter object mismatch: %+v", af.Filter)
	}
	if af.Filter.Service != nil {
		t.Fatalf("expected nil service filter, got %+v", af.Filter.Service)
	}
}
