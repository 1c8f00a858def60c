package bus

import (
	"context"
	"testing"
	"time"
)

func TestBusRoundTripAndHandlers(t *testing.T) {
	t.Parallel()

	mb := NewMessageBus()
	defer mb.Close()

	if !mb.PublishInbound(InboundMessage{ChatID: "c1", Action: ActionText, Content: "milk"}) {
		t.Fatalf("expected inbound accepted")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	if !ok || msg.Content != "milk" {
		t.Fatalf("unexpected inbound: %+v %v", msg, ok)
	}

	called := false
	mb.RegisterHandler("c1", func(OutboundMessage) error { called = true; return nil })
	h, ok := mb.GetHandler("c1")
	if !ok {
		t.Fatalf("expected handler")
	}
	_ = h(OutboundMessage{ChatID: "c1", Type: EventMessage})
	if !called {
		t.Fatalf("expected handler called")
	}
	mb.UnregisterHandler("c1")
	if _, ok := mb.GetHandler("c1"); ok {
		t.Fatalf("expected handler removed")
	}
}

func TestBusClosedRejectsPublish(t *testing.T) {
	t.Parallel()

	mb := NewMessageBus()
	mb.Close()
	mb.Close()
	if mb.PublishInbound(InboundMessage{ChatID: "c"}) || mb.PublishOutbound(OutboundMessage{ChatID: "c"}) {
		t.Fatalf("expected publish on closed bus to fail")
	}
	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Fatalf("expected closed inbound channel")
	}
}
